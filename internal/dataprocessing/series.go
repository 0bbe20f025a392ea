package dataprocessing

import (
	"time"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/pkg/contracts/domain"
)

const secondsPerDay = 24 * 60 * 60

// BuildSeries counts rows per day over [minDate, maxDate] and per month over
// [month(minDate), month(maxDate)], inserting zero buckets for gaps.
// An empty set has no span and returns an EmptyRangeError.
func BuildSeries(rows domain.AppointmentSet) (domain.TimeSeries, error) {
	minDate, maxDate, ok := rows.DateBounds()
	if !ok {
		return domain.TimeSeries{}, apperrors.NewEmptyRangeError("cannot derive a date span from zero rows")
	}

	return domain.TimeSeries{
		Daily:   dailyCounts(rows, minDate, maxDate),
		Monthly: monthlyCounts(rows, minDate, maxDate),
	}, nil
}

func dailyCounts(rows domain.AppointmentSet, minDate, maxDate time.Time) []domain.DailyCount {
	base := dayIndex(minDate)
	counts := make([]int, dayIndex(maxDate)-base+1)
	for _, row := range rows {
		counts[dayIndex(row.Date)-base]++
	}

	out := make([]domain.DailyCount, len(counts))
	for i, n := range counts {
		day := minDate.AddDate(0, 0, i)
		out[i] = domain.DailyCount{Date: day, Day: day.Format(domain.DateLayout), Count: n}
	}
	return out
}

func monthlyCounts(rows domain.AppointmentSet, minDate, maxDate time.Time) []domain.MonthlyCount {
	base := monthIndex(minDate)
	counts := make([]int, monthIndex(maxDate)-base+1)
	for _, row := range rows {
		counts[monthIndex(row.Date)-base]++
	}

	out := make([]domain.MonthlyCount, len(counts))
	for i, n := range counts {
		first := time.Date(minDate.Year(), minDate.Month()+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		out[i] = domain.MonthlyCount{
			Year:  first.Year(),
			Month: first.Month(),
			Key:   first.Format(domain.MonthLayout),
			Count: n,
		}
	}
	return out
}

// dayIndex numbers UTC calendar days from the Unix epoch
func dayIndex(t time.Time) int {
	return int(t.Unix() / secondsPerDay)
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

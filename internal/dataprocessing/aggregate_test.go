package dataprocessing

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/pkg/contracts/domain"
)

func scenarioRows(t *testing.T) domain.AppointmentSet {
	t.Helper()
	rows, _, err := newTestNormalizer().Normalize(context.Background(), []byte(scenarioCSV), domain.FormatDelimited)
	require.NoError(t, err)
	return rows
}

func TestSummarize_Scenario(t *testing.T) {
	now := time.Date(2024, 2, 1, 15, 30, 0, 0, time.UTC)

	summary := Summarize(scenarioRows(t), now)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Upcoming)
	assert.Equal(t, 2, summary.Historical)
	assert.Equal(t, map[string]int{"Dentist": 2, "Meeting": 1}, summary.Categories)
}

func TestSummarize_BoundaryIsInclusive(t *testing.T) {
	rows := domain.AppointmentSet{
		{Date: day(2024, 2, 1), Time: domain.TimeOfDay{Hour: 0, Minute: 0}, Description: "today early"},
		{Date: day(2024, 1, 31), Time: domain.TimeOfDay{Hour: 23, Minute: 59}, Description: "yesterday late"},
	}

	tests := []struct {
		name string
		now  time.Time
	}{
		{"late in the day", time.Date(2024, 2, 1, 23, 59, 0, 0, time.UTC)},
		{"midnight", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"non-utc location keeps local calendar date", time.Date(2024, 2, 1, 1, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := Summarize(rows, tt.now)
			assert.Equal(t, 1, summary.Upcoming)
			assert.Equal(t, 1, summary.Historical)
		})
	}
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(domain.AppointmentSet{}, time.Now())

	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0, summary.Upcoming)
	assert.Equal(t, 0, summary.Historical)
	assert.NotNil(t, summary.Categories)
	assert.Empty(t, summary.Categories)
}

func TestTopCategories_Order(t *testing.T) {
	summary := domain.InsightSummary{Categories: map[string]int{"Gym": 2, "Dentist": 2, "Meeting": 5, "Call": 1}}

	top := summary.TopCategories()

	require.Len(t, top, 4)
	assert.Equal(t, []string{"Meeting", "Dentist", "Gym", "Call"},
		[]string{top[0].Description, top[1].Description, top[2].Description, top[3].Description})
}

func TestBuildSeries_Scenario(t *testing.T) {
	series, err := BuildSeries(scenarioRows(t))
	require.NoError(t, err)

	require.Len(t, series.Daily, 60)
	assert.Equal(t, "2024-01-01", series.Daily[0].Day)
	assert.Equal(t, "2024-03-01", series.Daily[59].Day)

	nonZero := map[string]int{}
	for _, d := range series.Daily {
		if d.Count > 0 {
			nonZero[d.Day] = d.Count
		}
	}
	assert.Equal(t, map[string]int{"2024-01-01": 1, "2024-01-03": 1, "2024-03-01": 1}, nonZero)

	require.Len(t, series.Monthly, 3)
	assert.Equal(t, "2024-01", series.Monthly[0].Key)
	assert.Equal(t, 2, series.Monthly[0].Count)
	assert.Equal(t, "2024-02", series.Monthly[1].Key)
	assert.Equal(t, 0, series.Monthly[1].Count)
	assert.Equal(t, "2024-03", series.Monthly[2].Key)
	assert.Equal(t, 1, series.Monthly[2].Count)
}

func TestBuildSeries_EmptyRange(t *testing.T) {
	series, err := BuildSeries(domain.AppointmentSet{})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrEmptyRange)
	assert.True(t, series.IsEmpty())
}

func TestBuildSeries_SingleDay(t *testing.T) {
	rows := domain.AppointmentSet{
		{Date: day(2024, 5, 5), Description: "a"},
		{Date: day(2024, 5, 5), Description: "b"},
	}

	series, err := BuildSeries(rows)
	require.NoError(t, err)
	require.Len(t, series.Daily, 1)
	assert.Equal(t, 2, series.Daily[0].Count)
	require.Len(t, series.Monthly, 1)
	assert.Equal(t, "2024-05", series.Monthly[0].Key)
}

func TestBuildSeries_YearBoundaryAndLeapDay(t *testing.T) {
	rows := domain.AppointmentSet{
		{Date: day(2023, 12, 31)},
		{Date: day(2024, 2, 29)},
	}

	series, err := BuildSeries(rows)
	require.NoError(t, err)
	assert.Len(t, series.Daily, 61)
	assert.Equal(t, []string{"2023-12", "2024-01", "2024-02"},
		[]string{series.Monthly[0].Key, series.Monthly[1].Key, series.Monthly[2].Key})
}

// Property checks over random sets: length, ordering, totals, and the upcoming/historical split.
func TestAggregates_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := day(2022, 11, 15)
	descriptions := []string{"Dentist", "Meeting", "Gym", "Call"}

	for iter := 0; iter < 50; iter++ {
		t.Run(fmt.Sprintf("set %d", iter), func(t *testing.T) {
			size := 1 + rng.Intn(200)
			rows := make(domain.AppointmentSet, size)
			for i := range rows {
				rows[i] = domain.AppointmentRow{
					Date:        base.AddDate(0, 0, rng.Intn(900)),
					Time:        domain.TimeOfDay{Hour: rng.Intn(24), Minute: rng.Intn(60)},
					Description: descriptions[rng.Intn(len(descriptions))],
				}
			}
			now := base.AddDate(0, 0, rng.Intn(900)).Add(time.Duration(rng.Intn(86400)) * time.Second)

			summary := Summarize(rows, now)
			assert.Equal(t, summary.Total, summary.Upcoming+summary.Historical)
			catTotal := 0
			for _, n := range summary.Categories {
				catTotal += n
			}
			assert.Equal(t, summary.Total, catTotal)

			series, err := BuildSeries(rows)
			require.NoError(t, err)

			minDate, maxDate, _ := rows.DateBounds()
			wantDays := int(maxDate.Sub(minDate).Hours()/24) + 1
			assert.Len(t, series.Daily, wantDays)
			assert.Equal(t, size, series.DailyTotal())
			for i := 1; i < len(series.Daily); i++ {
				assert.True(t, series.Daily[i].Date.After(series.Daily[i-1].Date))
				assert.GreaterOrEqual(t, series.Daily[i].Count, 0)
			}

			wantMonths := (maxDate.Year()-minDate.Year())*12 + int(maxDate.Month()) - int(minDate.Month()) + 1
			assert.Len(t, series.Monthly, wantMonths)
			assert.Equal(t, size, series.MonthlyTotal())
			for i := 1; i < len(series.Monthly); i++ {
				assert.Less(t, series.Monthly[i-1].Key, series.Monthly[i].Key)
			}
		})
	}
}

func TestBuildCharts(t *testing.T) {
	rows := scenarioRows(t)
	series, err := BuildSeries(rows)
	require.NoError(t, err)

	charts := BuildCharts(Summarize(rows, day(2024, 2, 1)), series)

	require.Len(t, charts, 3)
	assert.Equal(t, ChartMonthlyTrend, charts[0].ID)
	assert.Equal(t, domain.ChartLine, charts[0].Kind)
	assert.Equal(t, []domain.ChartPoint{{Label: "2024-01", Value: 2}, {Label: "2024-02", Value: 0}, {Label: "2024-03", Value: 1}}, charts[1].Points)
	assert.Equal(t, domain.ChartPie, charts[2].Kind)
	assert.Equal(t, "Dentist", charts[2].Points[0].Label)
}

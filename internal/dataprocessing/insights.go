package dataprocessing

import (
	"time"

	"nebulaviz/pkg/contracts/domain"
)

// StartOfDay returns the calendar date of now, in now's location, as midnight UTC.
// Row dates use the same representation so they compare directly.
func StartOfDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Summarize counts rows on or after the start of now's day as upcoming and the
// rest as historical, and builds the description histogram over all rows.
func Summarize(rows domain.AppointmentSet, now time.Time) domain.InsightSummary {
	summary := domain.InsightSummary{
		Total:      len(rows),
		Categories: make(map[string]int),
	}

	boundary := StartOfDay(now)
	for _, row := range rows {
		if row.Date.Before(boundary) {
			summary.Historical++
		} else {
			summary.Upcoming++
		}
		summary.Categories[row.Description]++
	}
	return summary
}

package domain

import (
	"sort"
	"time"
)

// MonthLayout is the year-month key layout used by monthly series
const MonthLayout = "2006-01"

// InsightSummary holds the appointment statistics for one run
type InsightSummary struct {
	Total      int            `json:"total"`
	Upcoming   int            `json:"upcoming"`
	Historical int            `json:"historical"`
	Categories map[string]int `json:"categories"`
}

// CategoryCount pairs a description with its occurrence count
type CategoryCount struct {
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// TopCategories returns categories ordered by count descending, then by name
func (s InsightSummary) TopCategories() []CategoryCount {
	out := make([]CategoryCount, 0, len(s.Categories))
	for desc, n := range s.Categories {
		out = append(out, CategoryCount{Description: desc, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Description < out[j].Description
	})
	return out
}

// DailyCount is the number of appointments on one calendar day
type DailyCount struct {
	Date  time.Time `json:"-"`
	Day   string    `json:"date"`
	Count int       `json:"count"`
}

// MonthlyCount is the number of appointments in one calendar month
type MonthlyCount struct {
	Year  int        `json:"-"`
	Month time.Month `json:"-"`
	Key   string     `json:"month"`
	Count int        `json:"count"`
}

// TimeSeries holds the zero-filled daily and monthly counts over the observed span
type TimeSeries struct {
	Daily   []DailyCount   `json:"daily"`
	Monthly []MonthlyCount `json:"monthly"`
}

// IsEmpty reports whether the series has no buckets
func (ts TimeSeries) IsEmpty() bool {
	return len(ts.Daily) == 0 && len(ts.Monthly) == 0
}

// DailyTotal sums the daily buckets
func (ts TimeSeries) DailyTotal() int {
	total := 0
	for _, d := range ts.Daily {
		total += d.Count
	}
	return total
}

// MonthlyTotal sums the monthly buckets
func (ts TimeSeries) MonthlyTotal() int {
	total := 0
	for _, m := range ts.Monthly {
		total += m.Count
	}
	return total
}

// ChartKind names how a dataset is meant to be drawn
type ChartKind string

const (
	ChartLine ChartKind = "line"
	ChartBar  ChartKind = "bar"
	ChartPie  ChartKind = "pie"
)

// ChartPoint is one labelled value of a chart dataset
type ChartPoint struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// ChartDataset is a render-agnostic description of one chart
type ChartDataset struct {
	ID     string       `json:"id"`
	Kind   ChartKind    `json:"kind"`
	Title  string       `json:"title"`
	XLabel string       `json:"x_label,omitempty"`
	YLabel string       `json:"y_label,omitempty"`
	Points []ChartPoint `json:"points"`
}

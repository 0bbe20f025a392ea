package dataprocessing

import (
	"nebulaviz/pkg/contracts/domain"
)

// Chart identifiers
const (
	ChartMonthlyTrend = "monthly_trend"
	ChartMonthlyBar   = "monthly_bar"
	ChartCategories   = "categories"
)

// BuildCharts describes the dashboard charts: the monthly trend line, the
// per-month bar chart and the category pie. Rendering is left to the consumer.
func BuildCharts(summary domain.InsightSummary, series domain.TimeSeries) []domain.ChartDataset {
	monthly := make([]domain.ChartPoint, len(series.Monthly))
	for i, m := range series.Monthly {
		monthly[i] = domain.ChartPoint{Label: m.Key, Value: m.Count}
	}

	top := summary.TopCategories()
	categories := make([]domain.ChartPoint, len(top))
	for i, c := range top {
		categories[i] = domain.ChartPoint{Label: c.Description, Value: c.Count}
	}

	return []domain.ChartDataset{
		{
			ID:     ChartMonthlyTrend,
			Kind:   domain.ChartLine,
			Title:  "Appointment Trends Over Time (Monthly)",
			XLabel: "Month",
			YLabel: "Appointments",
			Points: monthly,
		},
		{
			ID:     ChartMonthlyBar,
			Kind:   domain.ChartBar,
			Title:  "Appointments Per Month",
			XLabel: "Month",
			YLabel: "Appointments",
			Points: monthly,
		},
		{
			ID:     ChartCategories,
			Kind:   domain.ChartPie,
			Title:  "Appointments by Category",
			Points: categories,
		},
	}
}

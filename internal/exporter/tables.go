// Package exporter writes run results to CSV, JSON and XLSX files.
//
// Every format is derived from the same tabular view (see Tables), so the
// columns of a CSV file and of the matching workbook sheet are identical.
package exporter

import (
	"strconv"
	"time"

	"nebulaviz/pkg/contracts/domain"
)

// Table names, also used as CSV file suffixes and sheet names
const (
	TableSummary      = "summary"
	TableDaily        = "daily"
	TableMonthly      = "monthly"
	TableCategories   = "categories"
	TableAppointments = "appointments"
)

// Report is the exportable part of a run
type Report struct {
	RunID        string                `json:"run_id"`
	GeneratedAt  time.Time             `json:"generated_at"`
	Summary      domain.InsightSummary `json:"summary"`
	Series       domain.TimeSeries     `json:"series"`
	Appointments domain.AppointmentSet `json:"appointments"`
	Charts       []domain.ChartDataset `json:"charts"`
}

// Table is one named grid of string cells
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Tables flattens a report. Appointments are omitted unless withAppointments is set.
func Tables(r Report, withAppointments bool) []Table {
	tables := []Table{
		summaryTable(r.Summary),
		dailyTable(r.Series.Daily),
		monthlyTable(r.Series.Monthly),
		categoryTable(r.Summary),
	}
	if withAppointments {
		tables = append(tables, appointmentTable(r.Appointments))
	}
	return tables
}

func summaryTable(s domain.InsightSummary) Table {
	return Table{
		Name:    TableSummary,
		Headers: []string{"metric", "value"},
		Rows: [][]string{
			{"total", strconv.Itoa(s.Total)},
			{"upcoming", strconv.Itoa(s.Upcoming)},
			{"historical", strconv.Itoa(s.Historical)},
			{"categories", strconv.Itoa(len(s.Categories))},
		},
	}
}

func dailyTable(days []domain.DailyCount) Table {
	rows := make([][]string, len(days))
	for i, d := range days {
		rows[i] = []string{d.Day, strconv.Itoa(d.Count)}
	}
	return Table{Name: TableDaily, Headers: []string{"date", "count"}, Rows: rows}
}

func monthlyTable(months []domain.MonthlyCount) Table {
	rows := make([][]string, len(months))
	for i, m := range months {
		rows[i] = []string{m.Key, strconv.Itoa(m.Count)}
	}
	return Table{Name: TableMonthly, Headers: []string{"month", "count"}, Rows: rows}
}

func categoryTable(s domain.InsightSummary) Table {
	top := s.TopCategories()
	rows := make([][]string, len(top))
	for i, c := range top {
		rows[i] = []string{c.Description, strconv.Itoa(c.Count)}
	}
	return Table{Name: TableCategories, Headers: []string{"description", "count"}, Rows: rows}
}

func appointmentTable(set domain.AppointmentSet) Table {
	rows := make([][]string, len(set))
	for i, row := range set {
		rows[i] = []string{row.DateString(), row.Time.String(), row.Description}
	}
	return Table{Name: TableAppointments, Headers: []string{"date", "time", "description"}, Rows: rows}
}

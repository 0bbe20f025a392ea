package exporter

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"nebulaviz/pkg/contracts/domain"
)

const (
	defaultSheet     = "Sheet1"
	chartSheetPrefix = "chart_"
	maxSheetName     = 31
)

var chartTypes = map[domain.ChartKind]excelize.ChartType{
	domain.ChartLine: excelize.Line,
	domain.ChartBar:  excelize.Col,
	domain.ChartPie:  excelize.Pie,
}

// BuildWorkbook renders every table as a sheet and every non-empty chart
// dataset as a sheet holding its points plus a native chart.
// The caller owns the returned file and must Close it.
func BuildWorkbook(r Report, withAppointments bool) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(defaultSheet, TableSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename default sheet: %w", err)
	}

	for _, t := range Tables(r, withAppointments) {
		if err := addTableSheet(f, t); err != nil {
			f.Close()
			return nil, err
		}
	}

	for _, chart := range r.Charts {
		if len(chart.Points) == 0 {
			continue
		}
		if err := addChartSheet(f, chart); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// addTableSheet reuses the sheet when it already exists
func addTableSheet(f *excelize.File, t Table) error {
	sheet := sheetName(t.Name)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	if err := setRow(f, sheet, 1, toCells(t.Headers)); err != nil {
		return err
	}
	for i, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
			if isNumericColumn(t.Headers[j]) {
				if n, err := strconv.Atoi(v); err == nil {
					cells[j] = n
				}
			}
		}
		if err := setRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func addChartSheet(f *excelize.File, chart domain.ChartDataset) error {
	sheet := sheetName(chartSheetPrefix + chart.ID)
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}

	xLabel, yLabel := chart.XLabel, chart.YLabel
	if xLabel == "" {
		xLabel = "label"
	}
	if yLabel == "" {
		yLabel = "value"
	}
	if err := setRow(f, sheet, 1, []interface{}{xLabel, yLabel}); err != nil {
		return err
	}
	for i, p := range chart.Points {
		if err := setRow(f, sheet, i+2, []interface{}{p.Label, p.Value}); err != nil {
			return err
		}
	}

	chartType, ok := chartTypes[chart.Kind]
	if !ok {
		chartType = excelize.Col
	}
	last := len(chart.Points) + 1
	def := &excelize.Chart{
		Type: chartType,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("'%s'!$B$1", sheet),
			Categories: fmt.Sprintf("'%s'!$A$2:$A$%d", sheet, last),
			Values:     fmt.Sprintf("'%s'!$B$2:$B$%d", sheet, last),
		}},
		Title:  []excelize.RichTextRun{{Text: chart.Title}},
		Legend: excelize.ChartLegend{Position: "bottom"},
	}
	if chartType != excelize.Pie {
		def.XAxis = excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: xLabel}}}
		def.YAxis = excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: yLabel}}}
		def.Legend = excelize.ChartLegend{Position: "none"}
	}

	if err := f.AddChart(sheet, "D2", def); err != nil {
		return fmt.Errorf("failed to add chart %s: %w", chart.ID, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func isNumericColumn(header string) bool {
	return header == "count" || header == "value"
}

func sheetName(name string) string {
	if len(name) > maxSheetName {
		return name[:maxSheetName]
	}
	return name
}

package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/operations"
	"nebulaviz/pkg/contracts/domain"
)

func testReport() Report {
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }
	return Report{
		RunID:       "0123456789abcdef",
		GeneratedAt: time.Date(2024, 2, 15, 10, 30, 0, 0, time.UTC),
		Summary: domain.InsightSummary{
			Total: 3, Upcoming: 1, Historical: 2,
			Categories: map[string]int{"Dentist": 2, "Meeting, weekly": 1},
		},
		Series: domain.TimeSeries{
			Daily: []domain.DailyCount{
				{Date: day(1, 1), Day: "2024-01-01", Count: 2},
				{Date: day(1, 2), Day: "2024-01-02", Count: 0},
				{Date: day(1, 3), Day: "2024-01-03", Count: 1},
			},
			Monthly: []domain.MonthlyCount{{Year: 2024, Month: 1, Key: "2024-01", Count: 3}},
		},
		Appointments: domain.AppointmentSet{
			{Date: day(1, 1), Time: domain.TimeOfDay{Hour: 9}, Description: "Dentist"},
			{Date: day(1, 1), Time: domain.TimeOfDay{Hour: 14, Minute: 30}, Description: "Dentist"},
			{Date: day(1, 3), Time: domain.TimeOfDay{Hour: 8}, Description: "Meeting, weekly"},
		},
		Charts: []domain.ChartDataset{
			{ID: "monthly_trend", Kind: domain.ChartLine, Title: "Trend", XLabel: "Month", YLabel: "Appointments",
				Points: []domain.ChartPoint{{Label: "2024-01", Value: 3}}},
			{ID: "categories", Kind: domain.ChartPie, Title: "Categories",
				Points: []domain.ChartPoint{{Label: "Dentist", Value: 2}, {Label: "Meeting, weekly", Value: 1}}},
			{ID: "empty", Kind: domain.ChartBar, Title: "Nothing"},
		},
	}
}

func newTestExporter(t *testing.T, withAppointments bool) (*Exporter, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "exports")
	e, err := New(Options{
		Dir:                 dir,
		IncludeAppointments: withAppointments,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return e, dir
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "csv", want: FormatCSV},
		{in: " JSON ", want: FormatJSON},
		{in: "Xlsx", want: FormatXLSX},
		{in: "pdf", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Equal(t, apperrors.ErrTypeValidation, apperrors.Kind(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTables(t *testing.T) {
	tables := Tables(testReport(), false)
	names := make([]string, len(tables))
	for i, tb := range tables {
		names[i] = tb.Name
	}
	assert.Equal(t, []string{TableSummary, TableDaily, TableMonthly, TableCategories}, names)

	withRows := Tables(testReport(), true)
	require.Len(t, withRows, 5)
	appts := withRows[4]
	assert.Equal(t, []string{"date", "time", "description"}, appts.Headers)
	assert.Equal(t, []string{"2024-01-01", "14:30", "Dentist"}, appts.Rows[1])

	// categories ordered by count then name
	assert.Equal(t, [][]string{{"Dentist", "2"}, {"Meeting, weekly", "1"}}, tables[3].Rows)
}

func TestWriteCSV_BOM(t *testing.T) {
	table := Table{Name: "x", Headers: []string{"a", "b"}, Rows: [][]string{{"1", "two, three"}}}

	var withBOM bytes.Buffer
	require.NoError(t, WriteCSV(&withBOM, table, true))
	assert.True(t, bytes.HasPrefix(withBOM.Bytes(), utf8BOM))
	assert.Contains(t, withBOM.String(), `"two, three"`)

	var plain bytes.Buffer
	require.NoError(t, WriteCSV(&plain, table, false))
	assert.Equal(t, "a,b\n1,\"two, three\"\n", plain.String())
}

func TestExport_CSV(t *testing.T) {
	e, dir := newTestExporter(t, true)

	paths, err := e.Export(context.Background(), testReport(), FormatCSV)
	require.NoError(t, err)
	require.Len(t, paths, 5)

	for _, p := range paths {
		assert.Equal(t, dir, filepath.Dir(p))
		assert.True(t, strings.HasPrefix(filepath.Base(p), "agenda_20240215_103000_01234567_"))
	}

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"date", "count"},
		{"2024-01-01", "2"},
		{"2024-01-02", "0"},
		{"2024-01-03", "1"},
	}, records)
}

func TestExport_JSON(t *testing.T) {
	e, _ := newTestExporter(t, false)

	paths, err := e.Export(context.Background(), testReport(), FormatJSON)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "0123456789abcdef", decoded["run_id"])
	summary := decoded["summary"].(map[string]interface{})
	assert.Equal(t, float64(3), summary["total"])
	series := decoded["series"].(map[string]interface{})
	assert.Len(t, series["daily"], 3)
}

func TestExport_XLSX(t *testing.T) {
	e, _ := newTestExporter(t, true)

	paths, err := e.Export(context.Background(), testReport(), FormatXLSX)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	f, err := excelize.OpenFile(paths[0])
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Equal(t, []string{
		TableSummary, TableDaily, TableMonthly, TableCategories, TableAppointments,
		"chart_monthly_trend", "chart_categories",
	}, sheets)

	rows, err := f.GetRows(TableDaily)
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "count"}, rows[0])
	assert.Equal(t, []string{"2024-01-03", "1"}, rows[3])

	cellType, err := f.GetCellType(TableDaily, "B2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, cellType)

	chartRows, err := f.GetRows("chart_categories")
	require.NoError(t, err)
	assert.Equal(t, []string{"label", "value"}, chartRows[0])
	assert.Equal(t, []string{"Meeting, weekly", "1"}, chartRows[2])
}

func TestExport_Errors(t *testing.T) {
	_, err := New(Options{})
	assert.Equal(t, apperrors.ErrTypeConfig, apperrors.Kind(err))

	e, _ := newTestExporter(t, false)
	_, err = e.Export(context.Background(), testReport(), Format("pdf"))
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.Kind(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Export(ctx, testReport(), FormatCSV)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportFromResult(t *testing.T) {
	ok := operations.Result{
		RunID:     "run-1",
		Status:    operations.StatusSucceeded,
		Summary:   domain.InsightSummary{Total: 1},
		StartedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("x", 3600)),
	}
	r, err := ReportFromResult(ok)
	require.NoError(t, err)
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, time.UTC, r.GeneratedAt.Location())

	failed := operations.Result{
		Status:    operations.StatusFailed,
		Err:       apperrors.NewParseError("bad", nil),
		ErrorKind: apperrors.ErrTypeParse,
	}
	_, err = ReportFromResult(failed)
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.Kind(err))
	assert.ErrorIs(t, err, apperrors.ErrParse)
}

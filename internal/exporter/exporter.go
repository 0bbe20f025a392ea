package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/internal/operations"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts a format name in any case
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", apperrors.NewAppValidationError(fmt.Sprintf("unknown export format %q (want csv, json or xlsx)", s))
}

// ReportFromResult builds an exportable report from a completed run.
// Failed runs cannot be exported.
func ReportFromResult(result operations.Result) (Report, error) {
	if result.Failed() {
		return Report{}, apperrors.NewAppError(apperrors.ErrTypeValidation, "cannot export a failed run", result.Err)
	}
	return Report{
		RunID:        result.RunID,
		GeneratedAt:  result.StartedAt.UTC(),
		Summary:      result.Summary,
		Series:       result.Series,
		Appointments: result.Appointments,
		Charts:       result.Charts,
	}, nil
}

// Exporter writes reports into a directory
type Exporter struct {
	dir              string
	withAppointments bool
	logger           *slog.Logger
}

// Options configures an Exporter
type Options struct {
	Dir string
	// IncludeAppointments adds the full appointment table
	IncludeAppointments bool
	Logger              *slog.Logger
}

// New creates an exporter writing into opts.Dir
func New(opts Options) (*Exporter, error) {
	if opts.Dir == "" {
		return nil, apperrors.NewConfigError("export directory is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		dir:              opts.Dir,
		withAppointments: opts.IncludeAppointments,
		logger:           logger.With(slog.String("component", "exporter")),
	}, nil
}

// Export writes r in the given format and returns the created file paths.
// CSV produces one file per table; JSON and XLSX produce a single file.
func (e *Exporter) Export(ctx context.Context, r Report, format Format) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.dir, dirPerm); err != nil {
		return nil, apperrors.NewStorageError("failed to create export directory", err)
	}

	base := e.baseName(r)
	var (
		paths []string
		err   error
	)
	switch format {
	case FormatCSV:
		paths, err = e.exportCSV(ctx, r, base)
	case FormatJSON:
		path := filepath.Join(e.dir, base+".json")
		err = writeJSONFile(path, r)
		paths = []string{path}
	case FormatXLSX:
		path := filepath.Join(e.dir, base+".xlsx")
		err = e.writeXLSX(path, r)
		paths = []string{path}
	default:
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("unknown export format %q", format))
	}
	if err != nil {
		return nil, apperrors.NewStorageError("export failed", err)
	}

	e.logger.InfoContext(ctx, "report exported",
		slog.String("run_id", r.RunID),
		slog.String("format", string(format)),
		slog.Int("files", len(paths)))
	return paths, nil
}

func (e *Exporter) exportCSV(ctx context.Context, r Report, base string) ([]string, error) {
	tables := Tables(r, e.withAppointments)
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		path := filepath.Join(e.dir, fmt.Sprintf("%s_%s.csv", base, t.Name))
		if err := writeCSVFile(path, t); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (e *Exporter) writeXLSX(path string, r Report) error {
	f, err := BuildWorkbook(r, e.withAppointments)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func (e *Exporter) baseName(r Report) string {
	ts := r.GeneratedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	name := "agenda_" + ts.Format("20060102_150405")
	if len(r.RunID) >= 8 {
		name += "_" + r.RunID[:8]
	}
	return name
}

// WriteJSON writes r as indented JSON
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeJSONFile(path string, r Report) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := WriteJSON(file, r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

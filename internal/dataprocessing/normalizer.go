package dataprocessing

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/pkg/contracts/domain"
)

// Canonical field names
const (
	FieldDate        = "Date"
	FieldTime        = "Time"
	FieldDescription = "Description"
)

var canonicalFields = []string{FieldDate, FieldTime, FieldDescription}

// aliases maps lower-cased field names onto the canonical schema
var aliases = map[string]string{
	"date":        FieldDate,
	"time":        FieldTime,
	"description": FieldDescription,
}

// envelopeKeys are the object members searched for a record array in structured input
var envelopeKeys = []string{"records", "appointments", "items"}

// RawRecord is one parsed record before renaming and coercion
type RawRecord map[string]string

// NormalizerConfig holds configuration options for the Normalizer.
type NormalizerConfig struct {
	DateLayouts []string // Accepted date layouts, tried in order
	Comma       rune     // Field delimiter for delimited text
}

// DefaultNormalizerConfig returns the layouts the agenda writer and common spreadsheet exports produce
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		DateLayouts: []string{
			domain.DateLayout,
			"2006/01/02",
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02 15:04",
			"02.01.2006",
			"01/02/2006",
		},
		Comma: ',',
	}
}

// NormalizeStats describes what happened to each record during normalization
type NormalizeStats struct {
	Format         domain.Format `json:"format"`
	Records        int           `json:"records"`
	Kept           int           `json:"kept"`
	DroppedDate    int           `json:"dropped_date"`
	DroppedTime    int           `json:"dropped_time"`
	HeaderDetected bool          `json:"header_detected"`
}

// Dropped returns the number of excluded rows
func (s NormalizeStats) Dropped() int {
	return s.DroppedDate + s.DroppedTime
}

// Normalizer parses plaintext into an AppointmentSet
type Normalizer struct {
	logger *slog.Logger
	config NormalizerConfig
}

// NewNormalizer creates a normalizer. A nil logger falls back to slog.Default.
func NewNormalizer(logger *slog.Logger, config NormalizerConfig) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if len(config.DateLayouts) == 0 {
		config.DateLayouts = DefaultNormalizerConfig().DateLayouts
	}
	if config.Comma == 0 {
		config.Comma = ','
	}
	return &Normalizer{
		logger: logger.With(slog.String("component", "normalizer")),
		config: config,
	}
}

// Normalize parses text with the parser for format, maps fields onto the canonical
// schema and coerces date and time. Rows that fail coercion are dropped.
// Empty or whitespace-only text yields an empty set and no error.
func (n *Normalizer) Normalize(ctx context.Context, text []byte, format domain.Format) (domain.AppointmentSet, NormalizeStats, error) {
	stats := NormalizeStats{Format: format}

	body := trimLeading(text)
	if len(bytes.TrimSpace(body)) == 0 {
		n.logger.InfoContext(ctx, "agenda is empty", slog.String("format", format.String()))
		return domain.AppointmentSet{}, stats, nil
	}

	var (
		records []RawRecord
		err     error
	)
	switch format {
	case domain.FormatStructured:
		records, err = parseStructured(body)
	case domain.FormatDelimited:
		records, stats.HeaderDetected, err = n.parseDelimited(body)
	default:
		err = apperrors.NewParseError(fmt.Sprintf("unsupported format %s", format), nil)
	}
	if err != nil {
		return nil, stats, err
	}
	stats.Records = len(records)

	canonical := make([]RawRecord, len(records))
	for i, rec := range records {
		canonical[i] = renameFields(rec)
	}
	if err := checkSchema(canonical); err != nil {
		return nil, stats, err
	}

	rows := make(domain.AppointmentSet, 0, len(canonical))
	for i, rec := range canonical {
		date, ok := n.coerceDate(rec[FieldDate])
		if !ok {
			stats.DroppedDate++
			n.logger.DebugContext(ctx, "row dropped", slog.Int("record", i), slog.String("reason", "date"))
			continue
		}
		tod, err := domain.ParseTimeOfDay(strings.TrimSpace(rec[FieldTime]))
		if err != nil {
			stats.DroppedTime++
			n.logger.DebugContext(ctx, "row dropped", slog.Int("record", i), slog.String("reason", "time"))
			continue
		}
		rows = append(rows, domain.AppointmentRow{
			Date:        date,
			Time:        tod,
			Description: strings.TrimSpace(rec[FieldDescription]),
		})
	}
	stats.Kept = len(rows)

	n.logger.InfoContext(ctx, "agenda normalized",
		slog.String("format", format.String()),
		slog.Int("records", stats.Records),
		slog.Int("kept", stats.Kept),
		slog.Int("dropped", stats.Dropped()),
		slog.Bool("header", stats.HeaderDetected))

	return rows, stats, nil
}

// parseDelimited reads comma separated text. When every non-empty cell of the
// first row is a known field name it is used as a header, otherwise columns
// are positional Date,Time,Description.
func (n *Normalizer) parseDelimited(body []byte) ([]RawRecord, bool, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.Comma = n.config.Comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, false, apperrors.NewParseError("invalid delimited text", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}

	columns := canonicalFields
	header := isHeader(rows[0])
	if header {
		columns = make([]string, len(rows[0]))
		for i, cell := range rows[0] {
			columns[i] = strings.TrimSpace(cell)
		}
		rows = rows[1:]
	}

	records := make([]RawRecord, 0, len(rows))
	for _, row := range rows {
		rec := make(RawRecord, len(columns))
		for i, cell := range row {
			if i >= len(columns) {
				break
			}
			if columns[i] == "" {
				continue
			}
			rec[columns[i]] = cell
		}
		records = append(records, rec)
	}
	return records, header, nil
}

// isHeader reports whether row names fields only. Empty cells are skipped so
// a trailing comma does not hide a header.
func isHeader(row []string) bool {
	named := false
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if _, ok := aliases[strings.ToLower(cell)]; !ok {
			return false
		}
		named = true
	}
	return named
}

// parseStructured accepts a JSON array of objects, an object wrapping such an
// array under a known key, or a single object.
// Unmarshal scans body in place; a streaming decoder would keep its own
// unwiped copy of the plaintext.
func parseStructured(body []byte) ([]RawRecord, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperrors.NewParseError("invalid structured record data", err)
	}

	var items []interface{}
	switch v := doc.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		items = []interface{}{v}
		for _, key := range envelopeKeys {
			if inner, ok := lookupFold(v, key); ok {
				if arr, ok := inner.([]interface{}); ok {
					items = arr
					break
				}
			}
		}
	default:
		return nil, apperrors.NewParseError("structured data must be an object or an array", nil)
	}

	records := make([]RawRecord, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, apperrors.NewParseError(fmt.Sprintf("record %d is not an object", i), nil)
		}
		rec := make(RawRecord, len(obj))
		for k, val := range obj {
			rec[k] = stringify(val)
		}
		records = append(records, rec)
	}
	return records, nil
}

func lookupFold(obj map[string]interface{}, key string) (interface{}, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// renameFields maps aliases onto canonical names and drops everything else.
// An exact canonical key wins over a differently cased alias.
func renameFields(rec RawRecord) RawRecord {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(RawRecord, len(canonicalFields))
	for _, k := range keys {
		canonical, ok := aliases[strings.ToLower(strings.TrimSpace(k))]
		if !ok {
			continue
		}
		if _, exists := out[canonical]; exists && k != canonical {
			continue
		}
		out[canonical] = rec[k]
	}
	return out
}

// checkSchema fails when a canonical field is absent from every record
func checkSchema(records []RawRecord) error {
	if len(records) == 0 {
		return nil
	}
	var missing []string
	for _, field := range canonicalFields {
		present := false
		for _, rec := range records {
			if _, ok := rec[field]; ok {
				present = true
				break
			}
		}
		if !present {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewSchemaError(fmt.Sprintf("field(s) %s absent from every record", strings.Join(missing, ", "))).
			WithContext("missing", missing)
	}
	return nil
}

// coerceDate returns the calendar date as midnight UTC
func (n *Normalizer) coerceDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range n.config.DateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

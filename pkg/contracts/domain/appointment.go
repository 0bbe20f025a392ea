package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DateLayout is the canonical calendar date layout used on every output surface
const DateLayout = "2006-01-02"

// TimeLayout is the only accepted time-of-day literal (24h, zero padded)
const TimeLayout = "15:04"

// Format identifies the wire format of a decrypted agenda
type Format int

const (
	// FormatDelimited is comma separated text: date,time,description (header optional)
	FormatDelimited Format = iota
	// FormatStructured is a JSON record collection
	FormatStructured
)

// String returns the format name
func (f Format) String() string {
	switch f {
	case FormatStructured:
		return "structured"
	case FormatDelimited:
		return "delimited"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// MarshalText implements encoding.TextMarshaler
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// TimeOfDay is a wall clock time without a date
type TimeOfDay struct {
	Hour   int
	Minute int
}

// String renders the time as HH:MM
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// MarshalText implements encoding.TextMarshaler
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimeOfDay parses a strict HH:MM literal
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != len(TimeLayout) {
		return TimeOfDay{}, fmt.Errorf("time %q does not match HH:MM", s)
	}
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time %q does not match HH:MM: %w", s, err)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// AppointmentRow is one normalized agenda entry. Date is always midnight UTC.
type AppointmentRow struct {
	Date        time.Time `json:"date"`
	Time        TimeOfDay `json:"time"`
	Description string    `json:"description"`
}

// DateString returns the row date as YYYY-MM-DD
func (r AppointmentRow) DateString() string {
	return r.Date.Format(DateLayout)
}

type appointmentRowJSON struct {
	Date        string    `json:"date"`
	Time        TimeOfDay `json:"time"`
	Description string    `json:"description"`
}

// MarshalJSON writes the date as YYYY-MM-DD
func (r AppointmentRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(appointmentRowJSON{Date: r.DateString(), Time: r.Time, Description: r.Description})
}

// UnmarshalJSON reads a YYYY-MM-DD date as midnight UTC
func (r *AppointmentRow) UnmarshalJSON(data []byte) error {
	var raw appointmentRowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("date %q does not match YYYY-MM-DD: %w", raw.Date, err)
	}
	*r = AppointmentRow{Date: date, Time: raw.Time, Description: raw.Description}
	return nil
}

// AppointmentSet holds normalized rows in arrival order.
// Consumers must treat it as read-only.
type AppointmentSet []AppointmentRow

// Len returns the number of rows
func (s AppointmentSet) Len() int { return len(s) }

// SortedByDate returns a copy ordered by date, then time. Ties keep arrival order.
func (s AppointmentSet) SortedByDate() AppointmentSet {
	out := make(AppointmentSet, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time.Minutes() < out[j].Time.Minutes()
	})
	return out
}

// DateBounds returns the earliest and latest row dates. ok is false for an empty set.
func (s AppointmentSet) DateBounds() (minDate, maxDate time.Time, ok bool) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}, false
	}
	minDate, maxDate = s[0].Date, s[0].Date
	for _, row := range s[1:] {
		if row.Date.Before(minDate) {
			minDate = row.Date
		}
		if row.Date.After(maxDate) {
			maxDate = row.Date
		}
	}
	return minDate, maxDate, true
}

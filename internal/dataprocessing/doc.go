// Package dataprocessing turns decrypted agenda plaintext into typed appointment
// rows and derives the statistics and series the dashboards are drawn from.
//
// # Data Flow
//
//	plaintext []byte → Detect → Normalizer.Normalize → AppointmentSet
//	                                                     ├→ Summarize   → InsightSummary
//	                                                     └→ BuildSeries → TimeSeries
//
// # Formats
//
// Detect looks only at the first non-whitespace byte. '{' or '[' selects the
// structured (JSON) parser, anything else the delimited (CSV) parser. A wrong
// guess surfaces as a ParseError from the chosen parser.
//
// # Row Policy
//
// Field names are matched case-insensitively against date, time and
// description. A row whose date or time cannot be coerced is dropped and
// counted in NormalizeStats; it never aborts the batch and is never filled
// with defaults. Time must be HH:MM on a 24 hour clock.
//
// # Plaintext Handling
//
// Normalize reads the plaintext as []byte and never converts the whole
// buffer to a string. Structured text goes through json.Unmarshal, which scans
// the caller's slice in place, so the caller's SecureBuffer is the only full
// copy. encoding/csv reads through bufio and keeps up to one 4 KiB chunk of
// the input in its own buffer, which Wipe cannot reach. Individual field
// values become strings and are not wiped either.
//
// Nothing in this package logs field values. Logs carry counts only.
package dataprocessing

package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// Entry is one captured log record. Line is the record rendered by slog's
// text handler, attributes and groups included.
type Entry struct {
	Level   slog.Level
	Message string
	Line    string
}

type captureState struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	entries []Entry
}

// CaptureHandler renders every record at every level and keeps it for inspection.
// Handlers derived with WithAttrs or WithGroup share the same capture.
type CaptureHandler struct {
	state *captureState
	inner slog.Handler
}

// NewCaptureHandler creates an empty capture
func NewCaptureHandler() *CaptureHandler {
	state := &captureState{}
	return &CaptureHandler{
		state: state,
		inner: slog.NewTextHandler(&state.buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
}

// NewLogger returns a debug-level logger backed by a fresh capture.
// Captured lines are echoed to t.Log when the test fails.
func NewLogger(t testing.TB) (*slog.Logger, *CaptureHandler) {
	t.Helper()
	h := NewCaptureHandler()
	t.Cleanup(func() {
		if t.Failed() {
			for _, e := range h.Entries() {
				t.Log(strings.TrimRight(e.Line, "\n"))
			}
		}
	})
	return slog.New(h), h
}

// Enabled implements slog.Handler
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements slog.Handler
func (h *CaptureHandler) Handle(ctx context.Context, r slog.Record) error {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	start := h.state.buf.Len()
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	h.state.entries = append(h.state.entries, Entry{
		Level:   r.Level,
		Message: r.Message,
		Line:    h.state.buf.String()[start:],
	})
	return nil
}

// WithAttrs implements slog.Handler
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CaptureHandler{state: h.state, inner: h.inner.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	return &CaptureHandler{state: h.state, inner: h.inner.WithGroup(name)}
}

// Entries returns a copy of everything captured so far
func (h *CaptureHandler) Entries() []Entry {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	out := make([]Entry, len(h.state.entries))
	copy(out, h.state.entries)
	return out
}

// Output returns every rendered line concatenated
func (h *CaptureHandler) Output() string {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.buf.String()
}

// HasMessage reports whether a record at level carries msg
func (h *CaptureHandler) HasMessage(level slog.Level, msg string) bool {
	for _, e := range h.Entries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// AssertLogged fails t unless a record at level carries msg
func AssertLogged(t testing.TB, h *CaptureHandler, level slog.Level, msg string) {
	t.Helper()
	if !h.HasMessage(level, msg) {
		t.Errorf("expected %s record %q, got none", level, msg)
	}
}

// AssertNotLogged fails t if any fragment appears anywhere in the captured output.
// Empty fragments are ignored.
func AssertNotLogged(t testing.TB, h *CaptureHandler, fragments ...string) {
	t.Helper()
	for _, e := range h.Entries() {
		for _, f := range fragments {
			if f != "" && strings.Contains(e.Line, f) {
				t.Errorf("sensitive value leaked into %s record %q", e.Level, e.Message)
			}
		}
	}
}

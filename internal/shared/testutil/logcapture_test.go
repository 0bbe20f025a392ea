package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureHandler_SharesStateAcrossDerivedLoggers(t *testing.T) {
	logger, logs := NewLogger(t)

	logger.Debug("plain")
	logger.With(slog.String("component", "pipeline")).Info("run finished", slog.Int("total", 3))
	logger.WithGroup("stats").Warn("rows dropped", slog.Int("dropped", 2))

	entries := logs.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, slog.LevelDebug, entries[0].Level)
	assert.Contains(t, entries[1].Line, "component=pipeline")
	assert.Contains(t, entries[1].Line, "total=3")
	assert.Contains(t, entries[2].Line, "stats.dropped=2")
	assert.True(t, logs.HasMessage(slog.LevelInfo, "run finished"))
	assert.False(t, logs.HasMessage(slog.LevelError, "run finished"))
	assert.Contains(t, logs.Output(), "msg=plain")
}

func TestAssertNotLogged(t *testing.T) {
	logger, logs := NewLogger(t)
	logger.Info("loaded key", slog.Int("bytes", 32))

	AssertNotLogged(t, logs, "deadbeef", "")
	AssertLogged(t, logs, slog.LevelInfo, "loaded key")

	rec := &recorder{TB: t}
	logger.Info("oops", slog.String("key", "deadbeef"))
	AssertNotLogged(rec, logs, "deadbeef")
	assert.True(t, rec.failed)
}

// recorder swallows failures so a failing assertion can itself be tested
type recorder struct {
	testing.TB
	failed bool
}

func (r *recorder) Helper() {}

func (r *recorder) Errorf(string, ...any) { r.failed = true }

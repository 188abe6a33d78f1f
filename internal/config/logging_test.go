package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"message":"shown"`)
	require.Contains(t, buf.String(), `"service":"orbit"`)
	require.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	logger := newLogger(LoggingConfig{Level: "chatty"}, &bytes.Buffer{})
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LoggingConfig{Level: "info", Format: "console"}, &buf)
	logger.Info().Msg("sweep done")

	require.Contains(t, buf.String(), "sweep done")
	require.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestNewSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(zerolog.New(&buf).Level(zerolog.InfoLevel).With().Str("service", "orbit").Logger())

	logger.Debug("dropped")
	require.Zero(t, buf.Len())

	logger.With("queue", "maintenance").Error("job failed",
		"error", errors.New("db closed"),
		slog.Group("job", "kind", "retention_sweep", "attempt", 1),
	)

	got := lastLine(t, &buf)
	require.Equal(t, "error", got["level"])
	require.Equal(t, "job failed", got["message"])
	require.Equal(t, "orbit", got["service"])
	require.Equal(t, "maintenance", got["queue"])
	require.Contains(t, fmt.Sprint(got["error"]), "db closed")

	job, ok := got["job"].(map[string]any)
	require.True(t, ok, "groups nest")
	require.Equal(t, "retention_sweep", job["kind"])
	require.InDelta(t, 1, job["attempt"], 0)
}

func TestNewSlogLogger_Levels(t *testing.T) {
	tests := map[zerolog.Level]slog.Level{
		zerolog.TraceLevel: slog.LevelDebug,
		zerolog.DebugLevel: slog.LevelDebug,
		zerolog.InfoLevel:  slog.LevelInfo,
		zerolog.WarnLevel:  slog.LevelWarn,
		zerolog.ErrorLevel: slog.LevelError,
		zerolog.Disabled:   slog.LevelError,
	}
	for in, want := range tests {
		require.Equal(t, want, slogLevel(in), in.String())
	}

	var buf bytes.Buffer
	logger := NewSlogLogger(zerolog.New(&buf).Level(zerolog.WarnLevel))
	logger.Info("quiet")
	require.Zero(t, buf.Len())
	logger.Warn("loud")
	require.Equal(t, "warn", lastLine(t, &buf)["level"])
}

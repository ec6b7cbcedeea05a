package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSON_WritesStructuredRecord(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := New(&buf, slog.LevelInfo, true)
	log.Info("hello", "key", "value")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "hello", record["msg"])
	require.Equal(t, "value", record["key"])
}

func TestNew_Text_WritesNonEmptyOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := New(&buf, slog.LevelInfo, false)
	log.Info("hello")

	require.Contains(t, buf.String(), "hello")
}

func TestNew_LevelFiltersBelowThreshold(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := New(&buf, slog.LevelWarn, true)
	log.Info("should not appear")

	require.Empty(t, buf.Bytes())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in    string
		want  slog.Level
		valid bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"bogus", slog.LevelInfo, false},
	}

	for _, tc := range cases {
		got, ok := ParseLevel(tc.in)
		require.Equal(t, tc.want, got, tc.in)
		require.Equal(t, tc.valid, ok, tc.in)
	}
}

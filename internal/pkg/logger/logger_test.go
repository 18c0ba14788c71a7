package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, WARN)
	l.Info("skipped")
	l.Warn("kept", "tenant", "T1")
	l.Error("failed", "error", errors.New("boom"), "count", 3)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "T1", lines[0]["tenant"])
	assert.Equal(t, "boom", lines[1]["error"])
	assert.Equal(t, float64(3), lines[1]["count"])
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DEBUG).With("component", "scheduler")
	l.Debug("tick", "tenant", "T1", "dangling")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "scheduler", lines[0]["component"])
	assert.Equal(t, "T1", lines[0]["tenant"])
	assert.NotContains(t, lines[0], "dangling")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": DEBUG, "": INFO, "INFO": INFO, "warning": WARN, "error": ERROR}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

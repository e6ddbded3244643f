package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", "text")
	l.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json")
	l.Info("dropped")
	assert.Zero(t, buf.Len())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Replace(New(&buf, "info", "json"))

	WithComponent("test-comp").Info("hello")

	out := decodeLine(t, &buf)
	assert.Equal(t, "test-comp", out["component"])
	assert.Equal(t, "hello", out["msg"])
}

func TestWithQueue(t *testing.T) {
	var buf bytes.Buffer
	Replace(New(&buf, "info", "json"))

	WithQueue("mailer", "send").Info("queue msg")

	out := decodeLine(t, &buf)
	assert.Equal(t, "mailer", out["owner"])
	assert.Equal(t, "send", out["queue"])
}

func TestWithTask(t *testing.T) {
	var buf bytes.Buffer
	Replace(New(&buf, "info", "json"))

	WithTask(42).Info("task msg")

	out := decodeLine(t, &buf)
	assert.EqualValues(t, 42, out["task_id"])
}

package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func TestInfoEmitsJSONWithFields(t *testing.T) {
	buf := capture(t)

	Info("upload session created", "session", "sess-1", "max_pages", 10)

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "upload session created", entry["msg"])
	assert.Equal(t, "sess-1", entry["session"])
	assert.Equal(t, "10", entry["max_pages"])
	assert.NotEmpty(t, entry["time"])
}

func TestLevelFiltersBelowMinimum(t *testing.T) {
	buf := capture(t)

	SetLevel(WARN)
	Debug("noise")
	Info("noise")
	Warn("kept")
	Error("kept")

	lines := bytes.Count(bytes.TrimSpace(buf.Bytes()), []byte("\n")) + 1
	assert.Equal(t, 2, lines)
	assert.NotContains(t, buf.String(), "noise")
}

func TestTrailingKeyIsDropped(t *testing.T) {
	buf := capture(t)

	Info("odd fields", "session", "sess-1", "dangling")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sess-1", entry["session"])
	assert.NotContains(t, entry, "dangling")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" WARNING "))
	assert.Equal(t, ERROR, ParseLevel("Error"))
	// Unknown names fall back to INFO.
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

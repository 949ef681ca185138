package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalOutputCarriesCategory(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	l := New(&buf)

	l.Info("payment", "settled p-1")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "[PAYMENT   ]")
	assert.Contains(t, out, "settled p-1")
	assert.Contains(t, out, "logger_test.go")
}

func TestLevelFilter(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	l := New(&buf)
	l.SetLevel("warn")

	l.Info("APP", "hidden")
	l.Warn("APP", "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN")
}

func TestFileLoggerWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLogger(dir)
	l.LogTicket("CANCEL", "t-1", "cancelled by user")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "settlement-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var found bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		if entry["category"] == "TICKET" {
			found = true
			assert.Equal(t, "[CANCEL] t-1 - cancelled by user", entry["msg"])
			assert.Equal(t, "info", entry["level"])
		}
	}
	assert.True(t, found)
}

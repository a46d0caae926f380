package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"":        INFO,
		"WARNING": WARN,
		"error":   ERROR,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: WARN, Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", map[string]interface{}{"battle_id": "b1"})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "battle_id=b1")
}

func TestLoggerContextIsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: DEBUG, Output: &buf, Prefix: "battled"})
	require.NoError(t, err)

	logger.Info("ordered", map[string]interface{}{"z": 1}, map[string]interface{}{"a": 2})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[battled] "))
	assert.Less(t, strings.Index(out, "a=2"), strings.Index(out, "z=1"))
}

func TestFileOutputHasNoColor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "app.log")

	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: DEBUG, Colored: true, LogToFile: true, LogFilePath: path, Output: &buf})
	require.NoError(t, err)

	logger.Error("boom")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "boom")
	assert.NotContains(t, string(data), ColorRed)
	assert.Contains(t, buf.String(), ColorRed)
}

func TestLogBattleEventUsesDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitDefaultLogger(Config{Level: DEBUG, Output: &buf}))

	LogBattleEvent("battle_created", "b42", map[string]interface{}{"title": "X"})

	out := buf.String()
	assert.Contains(t, out, "Battle Event")
	assert.Contains(t, out, "event=battle_created")
	assert.Contains(t, out, "battle_id=b42")
	assert.Contains(t, out, "title=X")
}

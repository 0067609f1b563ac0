package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"warning": LevelWarn,
		"warn":    LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Output: &buf})

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))
}

func TestJSONFieldsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelDebug, Format: "json", Output: &buf})

	log.WithComponent("server").WithField("pane", 3).Info("spawned", "pid", 42)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "spawned", rec["msg"])
	assert.Equal(t, "server", rec["component"])
	assert.EqualValues(t, 3, rec["pane"])
	assert.EqualValues(t, 42, rec["pid"])
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: LevelInfo, Format: "logfmt", Output: &buf})
	_ = parent.WithFields(map[string]any{"client": "abc"})

	parent.Info("plain")
	assert.False(t, strings.Contains(buf.String(), "client=abc"))
}

func TestOpenFileCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "server.log")
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	log := New(Config{Output: f})
	log.Info("hello")
	require.NoError(t, f.Sync())
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Error("nothing happens")
	assert.False(t, log.Enabled(LevelInfo))
}

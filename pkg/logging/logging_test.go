package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"ERROR":   LevelError,
		"warn":    LevelWarn,
		"Warning": LevelWarn,
		"INFO":    LevelInfo,
		" debug ": LevelDebug,
		"":        LevelInfo,
		"chatty":  LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, LevelWarn)

	Debug("hidden debug")
	Info("hidden info")
	Warn("duplicate file key", "key", "dup", "kept", "a.txt")
	Error("broken")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN: duplicate file key key=dup kept=a.txt")
	assert.Contains(t, out, "ERROR: broken")
}

func TestOddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, LevelInfo)

	Info("odd", "lonely")
	Info("non string key", 42, "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "INFO: odd lonely=MISSING_VALUE", lines[0])
	assert.Equal(t, "INFO: non string key NON_STRING_KEY_0=v", lines[1])
}

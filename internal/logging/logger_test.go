package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestNew_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "error", Verbose: true, Output: &buf})
	require.NoError(t, err)

	logger.Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestNew_JSONFormatWithCategory(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "json", Output: &buf})
	require.NoError(t, err)

	For(logger, CategoryDrafting).Info("state change", zap.String("to", "streaming"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "drafting", entry["logger"])
	assert.Equal(t, "state change", entry["msg"])
	assert.Equal(t, "streaming", entry["to"])
}

func TestNew_BadOptions(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestFor_NilLogger(t *testing.T) {
	l := For(nil, CategoryBoot)
	require.NotNil(t, l)
	l.Info("goes nowhere")
}

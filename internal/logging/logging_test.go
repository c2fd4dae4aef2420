package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadOptions(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	assert.ErrorContains(t, err, "invalid log level")

	_, _, err = New(Options{Format: "xml"})
	assert.ErrorContains(t, err, "invalid log format")
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secretary.log")
	logger, closer, err := New(Options{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	component := Component(logger, "storage")
	component.Info().Msg("hello")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &line))
	assert.Equal(t, "storage", line["component"])
	assert.Equal(t, "hello", line["message"])
}

func TestCriticalDoesNotExit(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	Critical(&logger).Msg("log file corrupted")

	assert.Contains(t, buf.String(), `"level":"fatal"`)
	assert.Contains(t, buf.String(), "log file corrupted")
}

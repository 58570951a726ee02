// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/jen-cli/internal/config"
)

func TestInitialize(t *testing.T) {
	t.Run("should emit console output with the service name", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "jen-test",
		}, zapcore.AddSync(&buf))

		GetLogger().Info("hello from the build")

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "hello from the build")
		assert.Contains(t, out, "jen-test.")
	})

	t.Run("should emit parseable json when configured", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "jen-test",
		}, zapcore.AddSync(&buf))

		GetLogger().Info("structured entry")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "structured entry", entry["msg"])
		assert.Equal(t, "INFO", entry["level"])
	})

	t.Run("should filter entries below the configured level", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))

		logger := GetLogger()
		logger.Info("too quiet")
		logger.Warn("loud enough")

		out := buf.String()
		assert.NotContains(t, out, "too quiet")
		assert.Contains(t, out, "loud enough")
	})

	t.Run("should fall back to info on an invalid level", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "shouting", Format: "json"}, zapcore.AddSync(&buf))

		logger := GetLogger()
		logger.Debug("dropped")
		logger.Info("kept")

		out := buf.String()
		assert.NotContains(t, out, "dropped")
		assert.Contains(t, out, "kept")
	})

	t.Run("should initialize exactly once", func(t *testing.T) {
		ResetForTest()
		var first, second bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&first))
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&second))

		GetLogger().Info("routed to the first writer")
		assert.Contains(t, first.String(), "routed to the first writer")
		assert.Empty(t, second.String())
	})

	t.Run("should tee json entries into the log file", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer
		logFile := filepath.Join(t.TempDir(), "jen.log")

		Initialize(config.LoggerConfig{
			Level:   "info",
			Format:  "console",
			LogFile: logFile,
		}, zapcore.AddSync(&buf))

		GetLogger().Info("persisted entry")

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(data, &entry))
		assert.Equal(t, "persisted entry", entry["msg"])
	})
}

func TestGetLogger_FallbackBeforeInit(t *testing.T) {
	ResetForTest()
	assert.NotNil(t, GetLogger(), "a usable logger exists even before Initialize")
}

func TestSync_NoopBeforeInit(t *testing.T) {
	ResetForTest()
	Sync() // must not panic with no logger installed
}

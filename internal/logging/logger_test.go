package logging_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"maga/internal/logging"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Options{Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("should not log")
	logger.Warn("should log")

	out := buf.String()
	require.NotContains(t, out, "should not log")
	require.Contains(t, out, "should log")
}

func TestNewLogger_RejectsUnknownFormat(t *testing.T) {
	_, err := logging.NewLogger(logging.Options{Format: "xml"})
	require.Error(t, err)
}

func TestNewLogger_PrefixAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Options{Format: "json", Prefix: "MAGA", Output: &buf})
	require.NoError(t, err)

	logger.Info("client ready", "app_secret", "ali-uc-password-123", "key", "ngclient#2dcd")

	out := buf.String()
	require.Contains(t, out, `"component":"MAGA"`)
	require.Contains(t, out, "[REDACTED]")
	require.NotContains(t, out, "ali-uc-password-123")
	require.Contains(t, out, "ngclient#2dcd")
}

func TestNewLogger_WritesFile(t *testing.T) {
	logfile := filepath.Join(t.TempDir(), "maga.log")
	var console bytes.Buffer
	logger, err := logging.NewLogger(logging.Options{Level: "warn", File: logfile, Output: &console})
	require.NoError(t, err)

	logger.Info("should not log")
	logger.Error("test at file")

	content, err := os.ReadFile(logfile)
	require.NoError(t, err)
	require.Contains(t, string(content), "test at file")
	require.False(t, strings.Contains(string(content), "should not log"))
}

func TestNewLogger_CloseReleasesFile(t *testing.T) {
	logfile := filepath.Join(t.TempDir(), "maga.log")
	logger, err := logging.NewLogger(logging.Options{File: logfile, Output: &bytes.Buffer{}})
	require.NoError(t, err)

	logger.Info("before close")
	require.NoError(t, logging.Close(logger))
	require.ErrorIs(t, logging.Close(logger), os.ErrClosed)

	content, err := os.ReadFile(logfile)
	require.NoError(t, err)
	require.Contains(t, string(content), "before close")

	// Without a file there is nothing to release.
	require.NoError(t, logging.Close(logging.Discard()))
	require.NoError(t, logging.Close(panicLogger{}))
}

func TestNewLogger_BadFormatOpensNothing(t *testing.T) {
	logfile := filepath.Join(t.TempDir(), "maga.log")
	_, err := logging.NewLogger(logging.Options{Format: "xml", File: logfile})
	require.Error(t, err)
	_, err = os.Stat(logfile)
	require.ErrorIs(t, err, os.ErrNotExist)
}

type panicLogger struct{}

func (panicLogger) Debug(string, ...any) { panic("debug") }
func (panicLogger) Info(string, ...any)  { panic("info") }
func (panicLogger) Warn(string, ...any)  { panic("warn") }
func (panicLogger) Error(string, ...any) { panic("error") }

func TestSafe_RecoversPanics(t *testing.T) {
	logger := logging.Safe(panicLogger{})
	require.NotPanics(t, func() {
		logger.Debug("x")
		logger.Info("x")
		logger.Warn("x")
		logger.Error("x")
	})
	require.NotPanics(t, func() { logging.Safe(nil).Error("x") })
}

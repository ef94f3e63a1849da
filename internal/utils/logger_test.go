package utils

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{sugar: zap.New(core).Sugar()}, logs
}

func TestLogger_BrowserError(t *testing.T) {
	logger, logs := observedLogger()

	// chromedp passes the decode error as an argument
	logger.BrowserError("could not unmarshal event: %v",
		errors.New(`parse error: unknown value "cookiePart" for type network.CookieBlockedReason`))
	assert.Zero(t, logs.Len())

	logger.BrowserError("could not retrieve document: %v", errors.New("target closed"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "could not retrieve document: target closed", entry.Message)
}

func TestLogger_DebugKeepsMessages(t *testing.T) {
	logger, logs := observedLogger()

	logger.Debug("could not unmarshal event: %v", "cookiePart")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "could not unmarshal event: cookiePart", logs.All()[0].Message)
}

func TestNewLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, true)
	require.NoError(t, err)
	logger.Info("hello %s", "file")
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "scraper_*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"retest_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestResolveLevel(t *testing.T) {
	cases := []struct {
		level string
		mode  string
		want  zapcore.Level
	}{
		{"", "debug", zap.DebugLevel},
		{"", "release", zap.InfoLevel},
		{"warn", "debug", zap.WarnLevel},
		{"ERROR", "release", zap.ErrorLevel},
	}
	for _, tc := range cases {
		got, err := ResolveLevel(config.LogConfig{Level: tc.level}, tc.mode)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "level=%q mode=%q", tc.level, tc.mode)
	}

	_, err := ResolveLevel(config.LogConfig{Level: "loud"}, "release")
	assert.ErrorContains(t, err, "log.level")
}

func TestBuildWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "app.log")

	l, err := build(config.LogConfig{Level: "info", Filename: file, MaxSizeMB: 1, Console: true}, "release", &console)
	require.NoError(t, err)

	l.Debug("dropped")
	l.Info("Retest submission recorded", zap.Uint("studentID", 7))
	require.NoError(t, l.Sync())

	assert.Contains(t, console.String(), "Retest submission recorded")
	assert.NotContains(t, console.String(), "dropped")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"studentID":7`)
}

func TestBuildRequiresAnOutput(t *testing.T) {
	_, err := build(config.LogConfig{}, "debug", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestInitLoggerFallsBackOnBadLevel(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	InitLogger(&config.Config{Log: config.LogConfig{Level: "loud"}, Server: config.ServerConfig{Mode: "release"}})
	require.NotNil(t, Log)
	assert.True(t, Log.Core().Enabled(zap.InfoLevel))
	assert.False(t, Log.Core().Enabled(zap.DebugLevel))
}

package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/iam-service/internal/config"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		name  string
		level string
		want  zapcore.Level
	}{
		{"debug", "debug", zapcore.DebugLevel},
		{"upper case", "WARN", zapcore.WarnLevel},
		{"unknown falls back", "chatty", zapcore.InfoLevel},
		{"empty falls back", "", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := NewLogger(config.LoggerConfig{Level: tc.level, Output: "stderr"})
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tc.want))
			if tc.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tc.want-1))
			}
		})
	}
}

func TestNewLoggerConsoleWithFields(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "info", Format: "console", Output: "stderr"},
		zap.String("service", "iam-service"))
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

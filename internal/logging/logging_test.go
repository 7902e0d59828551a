package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, tc := range []struct {
		level, format string
		wantErr       bool
	}{
		{"info", "json", false},
		{"DEBUG", "console", false},
		{"warn", "", false},
		{"loud", "json", true},
		{"info", "xml", true},
	} {
		_, err := NewLogger(tc.level, tc.format)
		if tc.wantErr {
			assert.Error(t, err, "level=%s format=%s", tc.level, tc.format)
		} else {
			assert.NoError(t, err, "level=%s format=%s", tc.level, tc.format)
		}
	}
}

func TestLoggerKeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := (&Logger{sugar: zap.New(core).Sugar()}).Named("versions").With("account_id", "acc-1")

	logger.Info("Version created", "workflow_id", "wf-1", "version", 3)
	logger.Warn("Retrying allocation")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "versions", entries[0].LoggerName)
	assert.Equal(t, "Version created", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "acc-1", fields["account_id"])
	assert.Equal(t, "wf-1", fields["workflow_id"])
	assert.EqualValues(t, 3, fields["version"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

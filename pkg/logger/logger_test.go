package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPrintfHelpers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	Info("loan %s approved", "abc")
	Warn("retrying %d", 2)
	Error("failed: %v", assert.AnError)
	Debug("noise")

	entries := logs.All()
	if assert.Len(t, entries, 4) {
		assert.Equal(t, "loan abc approved", entries[0].Message)
		assert.Equal(t, zap.WarnLevel, entries[1].Level)
		assert.Contains(t, entries[2].Message, "failed")
	}
}

func TestInitLevel(t *testing.T) {
	defer Init("info")

	Init("error")
	assert.False(t, L().Core().Enabled(zap.InfoLevel))

	Init("debug")
	assert.True(t, L().Core().Enabled(zap.DebugLevel))

	Init("garbage")
	assert.True(t, L().Core().Enabled(zap.InfoLevel))
	assert.False(t, L().Core().Enabled(zap.DebugLevel))
}

func TestCallerIsTheLoggingSite(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := Replace(zap.New(core, zap.AddCaller()))
	defer restore()

	L().Info("structured")
	Info("printf %d", 1)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		for _, e := range entries {
			assert.True(t, e.Caller.Defined, e.Message)
			assert.Equal(t, "logger_test.go", filepath.Base(e.Caller.File), e.Message)
		}
	}
}

package vconsole

import (
	"errors"
	"testing"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newConsole() (*Console, *observer.ObservedLogs) {
	core, logs := observer.New(logging.TraceLevel)
	return New(logging.Wrap(zap.New(core))), logs
}

func TestInternalErrorIgnoresImages(t *testing.T) {
	c, logs := newConsole()

	c.InternalError(errors.New("Could not load img: http://example.com/a.png"))
	assert.Zero(t, logs.Len())
}

func TestInternalErrorTagged(t *testing.T) {
	c, logs := newConsole()

	c.InternalError(map[string]any{"message": "script failed", "stack": "at x.js:1", "code": "E1"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "script failed", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "Internal", ctx["tag"])
	assert.Equal(t, "at x.js:1", ctx["stack"])
}

func TestErrorCarriesArgs(t *testing.T) {
	c, logs := newConsole()

	c.Error("render failed", 1, "two")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, []any{1, "two"}, entry.ContextMap()["args"])
}

func TestVerboseLevelsLogAtTrace(t *testing.T) {
	c, logs := newConsole()

	c.Warn("w")
	c.Info("i")
	c.Log("l")
	c.Debug("d")

	require.Equal(t, 4, logs.Len())
	for i, level := range []string{"warn", "info", "log", "debug"} {
		entry := logs.All()[i]
		assert.Equal(t, logging.TraceLevel, entry.Level)
		assert.Equal(t, level, entry.ContextMap()["level"])
	}
}

func TestClosedConsoleDropsEverything(t *testing.T) {
	c, logs := newConsole()
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())

	assert.NotPanics(t, func() {
		c.InternalError(errors.New("late"))
		c.Error("late")
		c.Warn("late")
		c.Log("late")
	})
	assert.Zero(t, logs.Len())
}

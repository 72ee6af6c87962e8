// Package vconsole routes sandbox console output into the render logger.
package vconsole

import (
	"strings"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/errinfo"
	"go.uber.org/zap"
)

// ignoredInternal prefixes internal errors that are expected during SSR.
// Images are never fetched by the sandbox.
const ignoredInternal = "Could not load img"

// Console receives events from a sandbox. It is safe for concurrent use and
// drops everything after Close.
type Console struct {
	logger *logging.Logger
	closed atomic.Bool
}

// New creates a console logging through logger.
func New(logger *logging.Logger) *Console {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Console{logger: logger}
}

// Close detaches the console. It never fails.
func (c *Console) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (c *Console) Closed() bool {
	return c.closed.Load()
}

// InternalError reports a failure raised by the sandbox itself, such as an
// uncaught exception in a timer or a failed sub-resource load.
func (c *Console) InternalError(err any) {
	if c.closed.Load() || err == nil {
		return
	}
	info := errinfo.Extract(err)
	msg := info.Error
	if strings.HasPrefix(msg, ignoredInternal) {
		return
	}
	fields := append([]zap.Field{zap.String("tag", "Internal")}, info.Fields()...)
	c.logger.Error(msg, fields...)
}

// Error logs console.error output.
func (c *Console) Error(msg string, args ...any) {
	if c.closed.Load() {
		return
	}
	c.logger.Error(msg, zap.Any("args", args))
}

// Warn logs console.warn output.
func (c *Console) Warn(msg string, args ...any) { c.verbose("warn", msg, args) }

// Info logs console.info output.
func (c *Console) Info(msg string, args ...any) { c.verbose("info", msg, args) }

// Log logs console.log output.
func (c *Console) Log(msg string, args ...any) { c.verbose("log", msg, args) }

// Debug logs console.debug output.
func (c *Console) Debug(msg string, args ...any) { c.verbose("debug", msg, args) }

func (c *Console) verbose(level, msg string, args []any) {
	if c.closed.Load() {
		return
	}
	c.logger.Trace(msg, zap.String("level", level), zap.Any("args", args))
}

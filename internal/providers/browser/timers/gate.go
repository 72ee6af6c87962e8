// Package timers isolates scheduled sandbox callbacks from teardown.
//
// A Gate wraps the global scheduling functions of a goja runtime. Scheduling
// itself is untouched: the original function runs immediately and its
// handle is returned as is, so clearTimeout keeps working. Only the callback
// is guarded. Once the gate closes, callbacks that fire are dropped and the
// first one is reported as a dangling timer.
package timers

import (
	"fmt"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// DanglingMessage is logged once per gate when a callback fires after Close.
const DanglingMessage = "Dangling timer(s) detected"

// DefaultNames are the globals wrapped by a render.
var DefaultNames = []string{"setTimeout", "setInterval", "requestAnimationFrame"}

// Gate guards timer callbacks. It starts open.
type Gate struct {
	open       atomic.Bool
	warned     atomic.Bool
	logger     *logging.Logger
	onDangling func()
}

// Option configures a Gate.
type Option func(*Gate)

// WithDanglingHook runs fn the first time a dangling timer is detected.
func WithDanglingHook(fn func()) Option {
	return func(g *Gate) {
		g.onDangling = fn
	}
}

// New creates an open gate.
func New(logger *logging.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = logging.NewNop()
	}
	g := &Gate{logger: logger}
	g.open.Store(true)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open lets callbacks run.
func (g *Gate) Open() { g.open.Store(true) }

// Close suppresses every callback that fires from now on.
func (g *Gate) Close() { g.open.Store(false) }

// IsOpen reports the gate state.
func (g *Gate) IsOpen() bool { return g.open.Load() }

// Allow reports whether a callback may run. A denied callback is reported
// as dangling, once per gate.
func (g *Gate) Allow() bool {
	if g.open.Load() {
		return true
	}
	if g.warned.CompareAndSwap(false, true) {
		g.logger.Warn(DanglingMessage)
		if g.onDangling != nil {
			g.onDangling()
		}
	}
	return false
}

// Guard wraps a Go callback with the gate check.
func (g *Gate) Guard(fn func()) func() {
	return func() {
		if g.Allow() {
			fn()
		}
	}
}

// Install replaces each named global function of vm with a gated version.
// Names that are not functions are skipped. Must run on the loop that owns vm.
func (g *Gate) Install(vm *goja.Runtime, names ...string) error {
	if len(names) == 0 {
		names = DefaultNames
	}
	global := vm.GlobalObject()

	for _, name := range names {
		original, ok := goja.AssertFunction(global.Get(name))
		if !ok {
			g.logger.Debug("timer function not present, skipping", zap.String("function", name))
			continue
		}
		if err := global.Set(name, g.wrap(vm, original)); err != nil {
			return fmt.Errorf("failed to wrap %s: %w", name, err)
		}
	}
	return nil
}

func (g *Gate) wrap(vm *goja.Runtime, original goja.Callable) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := append([]goja.Value(nil), call.Arguments...)
		if len(args) > 0 {
			if cb, ok := goja.AssertFunction(args[0]); ok {
				args[0] = vm.ToValue(g.guardCallable(vm, cb))
			}
		}

		handle, err := original(call.This, args...)
		if err != nil {
			throw(vm, err)
		}
		return handle
	}
}

func (g *Gate) guardCallable(vm *goja.Runtime, cb goja.Callable) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !g.Allow() {
			return goja.Undefined()
		}
		v, err := cb(call.This, call.Arguments...)
		if err != nil {
			throw(vm, err)
		}
		return v
	}
}

// throw re-raises err as a JS exception from inside a Go function.
func throw(vm *goja.Runtime, err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex.Value())
	}
	panic(vm.NewGoError(err))
}

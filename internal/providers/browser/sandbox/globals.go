package sandbox

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const frameInterval = 16 * time.Millisecond

const prelude = `(function (g) {
  class Event {
    constructor(type, init) {
      this.type = String(type);
      this.bubbles = !!(init && init.bubbles);
      this.cancelable = !!(init && init.cancelable);
      this.defaultPrevented = false;
      this.target = null;
      this.currentTarget = null;
      this.timeStamp = g.performance.now();
    }
    preventDefault() { if (this.cancelable) this.defaultPrevented = true; }
    stopPropagation() {}
    stopImmediatePropagation() {}
  }
  class CustomEvent extends Event {
    constructor(type, init) {
      super(type, init);
      this.detail = init && init.detail !== undefined ? init.detail : null;
    }
  }
  g.Event = Event;
  g.CustomEvent = CustomEvent;
  g.queueMicrotask = function (fn) { Promise.resolve().then(fn); };
})(globalThis);`

// install defines the browser globals. Runs on the loop.
func (w *Window) install(vm *goja.Runtime) error {
	global := vm.GlobalObject()
	for _, name := range []string{"window", "self", "top", "parent", "frames"} {
		if err := global.Set(name, global); err != nil {
			return err
		}
	}

	values := map[string]any{
		"console":          w.consoleObject(vm),
		"location":         w.locationObject(vm),
		"navigator":        w.navigatorObject(vm),
		"performance":      w.performanceObject(vm),
		"document":         w.dom.wrap(w.dom.doc),
		"innerWidth":       1024,
		"innerHeight":      768,
		"devicePixelRatio": 1,
		"atob":             w.atob(vm),
		"btoa":             w.btoa(vm),
		"close":            func(goja.FunctionCall) goja.Value { return goja.Undefined() },
		"getComputedStyle": func(call goja.FunctionCall) goja.Value { return vm.NewObject() },
	}
	for name, v := range values {
		if err := global.Set(name, v); err != nil {
			return fmt.Errorf("failed to define %s: %w", name, err)
		}
	}
	w.dom.bindTarget(global, windowTarget{})

	for _, name := range []string{"setTimeout", "setInterval", "setImmediate"} {
		if err := w.reportTimerErrors(vm, name); err != nil {
			return err
		}
	}
	if w.opts.PretendToBeVisual {
		if err := w.installAnimationFrames(vm); err != nil {
			return err
		}
	}

	if _, err := vm.RunString(prelude); err != nil {
		return fmt.Errorf("failed to run prelude: %w", err)
	}
	w.dom.inserted(w.dom.doc)
	return nil
}

func (w *Window) consoleObject(vm *goja.Runtime) *goja.Object {
	c := vm.NewObject()
	bind := func(name string, fn func(string, ...any)) {
		_ = c.Set(name, func(call goja.FunctionCall) goja.Value {
			msg, args := consoleArgs(call.Arguments)
			fn(msg, args...)
			return goja.Undefined()
		})
	}
	bind("log", w.console.Log)
	bind("info", w.console.Info)
	bind("warn", w.console.Warn)
	bind("error", w.console.Error)
	bind("debug", w.console.Debug)
	bind("trace", w.console.Debug)
	bind("dir", w.console.Log)
	return c
}

func consoleArgs(values []goja.Value) (string, []any) {
	if len(values) == 0 {
		return "", nil
	}
	args := make([]any, 0, len(values)-1)
	for _, v := range values[1:] {
		args = append(args, exportArg(v))
	}
	return values[0].String(), args
}

// exportArg keeps log arguments encodable.
func exportArg(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if _, ok := goja.AssertFunction(v); ok {
		return v.String()
	}
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Error" {
		return obj.String()
	}
	return v.Export()
}

func (w *Window) locationObject(vm *goja.Runtime) *goja.Object {
	u := w.url
	origin := "null"
	if u.Scheme == "http" || u.Scheme == "https" {
		origin = u.Scheme + "://" + u.Host
	}
	search, hash := "", ""
	if u.RawQuery != "" {
		search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		hash = "#" + u.EscapedFragment()
	}
	pathname := u.EscapedPath()
	if pathname == "" && u.Host != "" {
		pathname = "/"
	}
	if u.Opaque != "" {
		pathname = u.Opaque
	}

	loc := vm.NewObject()
	fields := map[string]string{
		"href":     u.String(),
		"protocol": u.Scheme + ":",
		"host":     u.Host,
		"hostname": u.Hostname(),
		"port":     u.Port(),
		"pathname": pathname,
		"search":   search,
		"hash":     hash,
		"origin":   origin,
	}
	for k, v := range fields {
		_ = loc.Set(k, v)
	}
	_ = loc.Set("toString", func(goja.FunctionCall) goja.Value { return vm.ToValue(u.String()) })
	navigate := func(call goja.FunctionCall) goja.Value {
		w.logger.Debug("navigation is not supported", zap.String("target", call.Argument(0).String()))
		return goja.Undefined()
	}
	_ = loc.Set("assign", navigate)
	_ = loc.Set("replace", navigate)
	_ = loc.Set("reload", navigate)
	return loc
}

func (w *Window) navigatorObject(vm *goja.Runtime) *goja.Object {
	nav := vm.NewObject()
	_ = nav.Set("userAgent", w.opts.UserAgent)
	_ = nav.Set("language", "en-US")
	_ = nav.Set("languages", []any{"en-US", "en"})
	_ = nav.Set("onLine", true)
	_ = nav.Set("cookieEnabled", false)
	_ = nav.Set("platform", "")
	return nav
}

func (w *Window) performanceObject(vm *goja.Runtime) *goja.Object {
	perf := vm.NewObject()
	_ = perf.Set("now", func(goja.FunctionCall) goja.Value { return vm.ToValue(w.now()) })
	_ = perf.Set("timeOrigin", float64(w.start.UnixMicro())/1000)
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = perf.Set("mark", noop)
	_ = perf.Set("measure", noop)
	return perf
}

func (w *Window) atob(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		b, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError("The string to be decoded is not correctly encoded."))
		}
		// binary string: one UTF-16 unit per byte
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return vm.ToValue(string(runes))
	}
}

func (w *Window) btoa(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		b := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xff {
				panic(vm.NewTypeError("The string to be encoded contains characters outside of the Latin1 range."))
			}
			b = append(b, byte(r))
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString(b))
	}
}

// reportTimerErrors routes exceptions thrown by scheduled callbacks to the
// console instead of dropping them.
func (w *Window) reportTimerErrors(vm *goja.Runtime, name string) error {
	original, ok := goja.AssertFunction(vm.Get(name))
	if !ok {
		return nil
	}
	return vm.Set(name, func(call goja.FunctionCall) goja.Value {
		args := append([]goja.Value(nil), call.Arguments...)
		if len(args) > 0 {
			if cb, ok := goja.AssertFunction(args[0]); ok {
				args[0] = vm.ToValue(func(c goja.FunctionCall) goja.Value {
					if _, err := cb(c.This, c.Arguments...); err != nil {
						w.uncaught(err)
					}
					return goja.Undefined()
				})
			}
		}
		handle, err := original(call.This, args...)
		if err != nil {
			throw(vm, err)
		}
		return handle
	})
}

// throw re-raises err as a JS exception from inside a Go function.
func throw(vm *goja.Runtime, err error) {
	if ie, ok := err.(*goja.InterruptedError); ok {
		// keep the interrupt pending for the caller
		vm.Interrupt(ie.Value())
	}
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex.Value())
	}
	panic(vm.NewGoError(err))
}

func (w *Window) installAnimationFrames(vm *goja.Runtime) error {
	request := func(call goja.FunctionCall) goja.Value {
		cb, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("Failed to execute 'requestAnimationFrame': parameter 1 is not of type 'Function'."))
		}
		w.nextFrame++
		handle := w.nextFrame
		w.frames[handle] = w.loop.SetTimeout(func(vm *goja.Runtime) {
			delete(w.frames, handle)
			if _, err := cb(goja.Undefined(), vm.ToValue(w.now())); err != nil {
				w.uncaught(err)
			}
		}, frameInterval)
		return vm.ToValue(handle)
	}
	cancel := func(call goja.FunctionCall) goja.Value {
		handle := call.Argument(0).ToInteger()
		if t, ok := w.frames[handle]; ok {
			w.loop.ClearTimeout(t)
			delete(w.frames, handle)
		}
		return goja.Undefined()
	}
	if err := vm.Set("requestAnimationFrame", request); err != nil {
		return err
	}
	return vm.Set("cancelAnimationFrame", cancel)
}

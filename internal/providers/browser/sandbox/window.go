package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/browser/vconsole"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/errinfo"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Window is one disposable DOM environment.
type Window struct {
	opts    Options
	logger  *logging.Logger
	console *vconsole.Console
	loop    *eventloop.EventLoop
	vm      atomic.Pointer[goja.Runtime]
	url     *url.URL
	start   time.Time

	// loop only
	dom       *dom
	frames    map[int64]*eventloop.Timer
	nextFrame int64
	inline    int

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	inflight map[*future.Future[[]byte]]struct{}
}

// NewWindow parses the initial document, starts the event loop and installs
// the browser globals.
func NewWindow(ctx context.Context, opts Options) (*Window, error) {
	if opts.URL == "" {
		opts.URL = "about:blank"
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid window url %q: %w", opts.URL, err)
	}
	if opts.HTML == "" {
		opts.HTML = MinimalDocument
	}
	doc, err := html.Parse(strings.NewReader(opts.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	console := opts.Console
	if console == nil {
		console = vconsole.New(logger)
	}

	w := &Window{
		opts:     opts,
		logger:   logger,
		console:  console,
		url:      u,
		start:    time.Now(),
		frames:   make(map[int64]*eventloop.Timer),
		done:     make(chan struct{}),
		inflight: make(map[*future.Future[[]byte]]struct{}),
	}
	w.loop = eventloop.NewEventLoop(eventloop.EnableConsole(false))
	w.loop.Start()

	if err := w.Run(ctx, func(vm *goja.Runtime) error {
		w.vm.Store(vm)
		w.dom = newDOM(w, vm, doc)
		return w.install(vm)
	}); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to set up window: %w", err)
	}
	return w, nil
}

// URL returns the document URL.
func (w *Window) URL() *url.URL {
	return w.url
}

// Console returns the console the window reports to.
func (w *Window) Console() *vconsole.Console {
	return w.console
}

// Closed reports whether Close was called.
func (w *Window) Closed() bool {
	return w.closed.Load()
}

// Run executes fn on the event loop and waits for it. Ending ctx interrupts
// running script. JavaScript exceptions come back as *ScriptError.
func (w *Window) Run(ctx context.Context, fn func(vm *goja.Runtime) error) error {
	if w.closed.Load() {
		return ErrWindowClosed
	}

	res := make(chan error, 1)
	w.loop.RunOnLoop(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Recovered from panic in sandbox job",
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())))
				res <- fmt.Errorf("panic in sandbox: %v", r)
			}
		}()

		if w.closed.Load() {
			res <- ErrWindowClosed
			return
		}
		vm.ClearInterrupt()
		if err := ctx.Err(); err != nil {
			res <- err
			return
		}

		stop := w.watch(ctx, vm)
		defer stop()
		res <- w.scriptError(ctx, fn(vm))
	})

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrWindowClosed
	}
}

// watch interrupts vm when ctx ends. The returned func stops watching and
// clears an interrupt that raced with completion.
func (w *Window) watch(ctx context.Context, vm *goja.Runtime) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		vm.ClearInterrupt()
	}
}

// scriptError maps goja failures onto package errors. Runs on the loop.
func (w *Window) scriptError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("script interrupted: %w", ctxErr)
		}
		if w.closed.Load() {
			return ErrWindowClosed
		}
		return fmt.Errorf("script interrupted: %w", err)
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &ScriptError{Info: errinfo.Extract(ex), Cause: ex}
	}
	return err
}

func rejection(v goja.Value) error {
	return &ScriptError{Info: errinfo.Extract(v), Cause: ErrPromiseRejected}
}

// Await runs call on the loop and, when it yields a thenable, waits for it to
// settle. convert runs on the loop with the settled value.
func Await[T any](ctx context.Context, w *Window, call func(vm *goja.Runtime) (goja.Value, error), convert func(vm *goja.Runtime, v goja.Value) (T, error)) (T, error) {
	var zero T
	type settled struct {
		val T
		err error
	}
	out := make(chan settled, 1)
	deliver := func(v T, err error) {
		select {
		case out <- settled{val: v, err: err}:
		default:
		}
	}

	err := w.Run(ctx, func(vm *goja.Runtime) error {
		v, err := call(vm)
		if err != nil {
			return err
		}
		obj, _ := v.(*goja.Object)
		var then goja.Callable
		if obj != nil {
			then, _ = goja.AssertFunction(obj.Get("then"))
		}
		if then == nil {
			deliver(convert(vm, v))
			return nil
		}

		onFulfilled := func(c goja.FunctionCall) goja.Value {
			deliver(convert(vm, c.Argument(0)))
			return goja.Undefined()
		}
		onRejected := func(c goja.FunctionCall) goja.Value {
			deliver(zero, rejection(c.Argument(0)))
			return goja.Undefined()
		}
		_, err = then(obj, vm.ToValue(onFulfilled), vm.ToValue(onRejected))
		return err
	})
	if err != nil {
		return zero, err
	}

	select {
	case s := <-out:
		return s.val, s.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-w.done:
		return zero, ErrWindowClosed
	}
}

// Eval runs src as a script and returns its exported, settled value.
func (w *Window) Eval(ctx context.Context, src string) (any, error) {
	return Await(ctx, w,
		func(vm *goja.Runtime) (goja.Value, error) { return vm.RunString(src) },
		func(_ *goja.Runtime, v goja.Value) (any, error) {
			if v == nil {
				return nil, nil
			}
			return v.Export(), nil
		})
}

// Execute decodes and runs one script file. Globals it defines stay visible
// to later scripts.
func (w *Window) Execute(ctx context.Context, name string, src []byte) error {
	code, err := DecodeScript(src)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	prog, err := goja.Compile(name, code, false)
	if err != nil {
		return &ScriptError{Info: errinfo.Extract(err), Cause: err}
	}
	return w.Run(ctx, func(vm *goja.Runtime) error {
		_, err := vm.RunProgram(prog)
		return err
	})
}

// Serialize renders the current document.
func (w *Window) Serialize(ctx context.Context) (string, error) {
	var out string
	err := w.Run(ctx, func(*goja.Runtime) error {
		out = htmlquery.OutputHTML(w.dom.doc, true)
		return nil
	})
	return out, err
}

// Close tears the window down. It must not be called from the loop.
func (w *Window) Close() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.done)

		w.mu.Lock()
		pending := w.inflight
		w.inflight = make(map[*future.Future[[]byte]]struct{})
		w.mu.Unlock()
		for f := range pending {
			f.Abort()
		}

		if vm := w.vm.Load(); vm != nil {
			vm.Interrupt(ErrWindowClosed)
		}
		w.loop.Terminate()
		_ = w.console.Close()
	})
	return nil
}

// uncaught reports an exception nobody could catch. Runs on the loop.
func (w *Window) uncaught(err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		// nested calls swallow the interrupt; raise it again for the caller
		if vm := w.vm.Load(); vm != nil {
			vm.Interrupt(interrupted.Value())
		}
		return
	}
	w.console.InternalError(err)
}

func (w *Window) now() float64 {
	return float64(time.Since(w.start).Microseconds()) / 1000
}

func (w *Window) track(f *future.Future[[]byte]) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() {
		return false
	}
	w.inflight[f] = struct{}{}
	return true
}

func (w *Window) untrack(f *future.Future[[]byte]) {
	w.mu.Lock()
	delete(w.inflight, f)
	w.mu.Unlock()
}

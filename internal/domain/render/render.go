package render

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/browser/timers"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/browser/vconsole"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/loader"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Resource names used for teardown logging and metrics.
const (
	ResourceGate   = "gate"
	ResourceWindow = "window"
	ResourceLoader = "loader"
	ResourceSetup  = "after_env_setup"
)

// Stage names recorded when a render fails.
const (
	StageLoader       = "acquire_loader"
	StageFileList     = "acquire_file_list"
	StageFetch        = "fetch_files"
	StageSandbox      = "build_sandbox"
	StageExecute      = "execute_files"
	StageRegistration = "await_registration"
	StageSetup        = "after_env_setup"
	StageInvoke       = "invoke"
)

// Environment renders URLs with one Configuration.
type Environment struct {
	cfg        Configuration
	metrics    *monitoring.Metrics
	wrapCloser func(resource string, c io.Closer) io.Closer
}

// Option configures an Environment.
type Option func(*Environment)

// WithMetrics records render outcomes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Environment) {
		e.metrics = m
	}
}

// WithCloserWrapper decorates every resource closed during teardown.
func WithCloserWrapper(fn func(resource string, c io.Closer) io.Closer) Option {
	return func(e *Environment) {
		e.wrapCloser = fn
	}
}

// New validates cfg and returns an Environment.
func New(cfg *Configuration, opts ...Option) (*Environment, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Environment{cfg: *cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// resources are closed in field order.
type resources struct {
	gate   io.Closer
	window io.Closer
	loader io.Closer
	setup  io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (e *Environment) track(resource string, c io.Closer) io.Closer {
	if c == nil || e.wrapCloser == nil {
		return c
	}
	return e.wrapCloser(resource, c)
}

// Render executes the configured scripts for url and returns what their
// render callback produced. Every acquired resource is closed before it
// returns.
func (e *Environment) Render(ctx context.Context, url string, api *API) (result *Result, err error) {
	if api == nil {
		api = NewAPI(ctx, nil, nil, nil)
	}
	logger := api.Logger
	timer := monitoring.NewTimer(e.metrics)
	sess := api.Trace("render", url)

	var res resources
	defer func() {
		e.teardown(api, &res)
		outcome := "success"
		if err != nil {
			outcome = "failure"
			sess.AddLabel("error", err)
		}
		sess.AddLabel("outcome", outcome)
		sess.End()
		timer.Stop(outcome)
	}()

	fail := func(stage string, err error) error {
		e.metrics.RecordStageFailure(stage)
		logger.Debug("render stage failed", zap.String("stage", stage), zap.Error(err))
		return err
	}

	ld, err := e.cfg.GetResourceLoader(url, api)
	if err != nil {
		return nil, fail(StageLoader, fmt.Errorf("failed to acquire resource loader: %w", err))
	}
	if ld == nil {
		return nil, fail(StageLoader, fmt.Errorf("%w: GetResourceLoader returned no loader", ErrMissingConfiguration))
	}
	res.loader = e.track(ResourceLoader, ld)

	fetch := func(path string) *future.Future[[]byte] {
		return ld.Fetch(path, loader.FetchOptions{Headers: api.Headers})
	}

	files, err := e.fileList(ctx, url, api, fetch)
	if err != nil {
		return nil, fail(StageFileList, err)
	}
	sess.AddLabel("files", len(files))

	bodies, err := fetchAll(ctx, files, fetch)
	if err != nil {
		return nil, fail(StageFetch, err)
	}

	window, err := sandbox.NewWindow(ctx, sandbox.Options{
		URL:               url,
		RunScripts:        true,
		Loader:            ld,
		Headers:           api.Headers,
		PretendToBeVisual: true,
		Console:           vconsole.New(logger),
		Logger:            logger,
	})
	if err != nil {
		return nil, fail(StageSandbox, fmt.Errorf("failed to create sandbox window: %w", err))
	}
	res.window = e.track(ResourceWindow, window)

	gate := timers.New(logger, timers.WithDanglingHook(e.metrics.IncDanglingTimers))
	res.gate = e.track(ResourceGate, closerFunc(func() error {
		gate.Close()
		return nil
	}))

	registered := make(chan goja.Callable, 1)
	if err := window.Run(ctx, func(vm *goja.Runtime) error {
		if err := gate.Install(vm, timers.DefaultNames...); err != nil {
			return err
		}
		return vm.Set(e.cfg.RegistrationCallbackName, registration(vm, registered, logger))
	}); err != nil {
		return nil, fail(StageSandbox, fmt.Errorf("failed to prepare sandbox: %w", err))
	}

	execCtx, cancel := e.boundedContext(ctx)
	defer cancel()

	for i, path := range files {
		if err := window.Execute(execCtx, path, bodies[i]); err != nil {
			return nil, fail(StageExecute, e.timeoutError(ctx, err))
		}
	}

	var callback goja.Callable
	select {
	case callback = <-registered:
	default:
		return nil, fail(StageRegistration, ErrNoRenderCallback)
	}

	if e.cfg.AfterEnvSetup != nil {
		c, err := e.cfg.AfterEnvSetup(ctx, url, files, api, window)
		if c != nil {
			res.setup = e.track(ResourceSetup, c)
		}
		if err != nil {
			return nil, fail(StageSetup, fmt.Errorf("after env setup failed: %w", err))
		}
	}

	result, err = sandbox.Await(execCtx, window,
		func(vm *goja.Runtime) (goja.Value, error) {
			return callback(goja.Undefined(), vm.ToValue(url), renderOptions(vm, api.Headers))
		},
		toResult,
	)
	if err != nil {
		return nil, fail(StageInvoke, e.timeoutError(ctx, err))
	}
	return result, nil
}

func (e *Environment) fileList(ctx context.Context, url string, api *API, fetch FetchFunc) ([]string, error) {
	sess := api.Trace("render.files", "acquire file list")
	defer sess.End()

	files, err := e.cfg.GetFileList(ctx, url, api, fetch)
	if err != nil {
		sess.AddLabel("error", err)
		return nil, fmt.Errorf("failed to acquire file list: %w", err)
	}
	sess.AddLabel("count", len(files))
	return files, nil
}

// fetchAll starts every fetch at once and collects results in list order.
// The first failure aborts the remaining fetches.
func fetchAll(ctx context.Context, files []string, fetch FetchFunc) ([][]byte, error) {
	futures := make([]*future.Future[[]byte], len(files))
	for i, path := range files {
		futures[i] = fetch(path)
	}
	abortRest := func(from int) {
		for _, f := range futures[from:] {
			if f != nil {
				f.Abort()
			}
		}
	}

	bodies := make([][]byte, len(files))
	for i, path := range files {
		if futures[i] == nil {
			abortRest(i + 1)
			return nil, &MissingFileError{Path: path}
		}
		body, err := futures[i].Wait(ctx)
		if err != nil {
			abortRest(i)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
		}
		if body == nil {
			abortRest(i + 1)
			return nil, &MissingFileError{Path: path}
		}
		bodies[i] = body
	}
	return bodies, nil
}

func (e *Environment) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.cfg.RenderTimeout
	switch {
	case timeout < 0:
		return context.WithCancel(ctx)
	case timeout == 0:
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// timeoutError names an expired render bound, as opposed to the caller
// cancelling the request.
func (e *Environment) timeoutError(parent context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: %w", ErrRenderTimeout, err)
	}
	return err
}

// registration returns the host function scripts hand their render callback
// to. Only the first callback is kept.
func registration(vm *goja.Runtime, out chan<- goja.Callable, logger *logging.Logger) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		cb, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("render callback must be a function"))
		}
		select {
		case out <- cb:
		default:
			logger.Warn("render callback already registered, ignoring")
		}
		return goja.Undefined()
	}
}

func renderOptions(vm *goja.Runtime, headers map[string]string) *goja.Object {
	h := vm.NewObject()
	for k, v := range headers {
		_ = h.Set(k, v)
	}
	opts := vm.NewObject()
	_ = opts.Set("headers", h)
	return opts
}

package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/loader"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
)

// DefaultTimeout bounds script execution and the render callback when the
// configuration leaves RenderTimeout at zero.
const DefaultTimeout = 30 * time.Second

var (
	// ErrMissingConfiguration is returned by Render when a required
	// Configuration field is unset
	ErrMissingConfiguration = errors.New("render configuration is incomplete")
	// ErrFileMissing wraps a file list entry the loader could not retrieve
	ErrFileMissing = errors.New("file missing")
	// ErrNoRenderCallback means the bundle finished without registering the
	// render callback
	ErrNoRenderCallback = errors.New("No render callback was registered.")
	// ErrInvalidResult means the callback resolved to something other than a
	// {markup, statusCode} object
	ErrInvalidResult = errors.New("render callback returned an invalid result")
	// ErrRenderTimeout means the render context expired before a result
	ErrRenderTimeout = errors.New("render timed out")
)

// MissingFileError reports a file the loader could not provide.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("Unable to retrieve %s. ResourceLoader returned null.", e.Path)
}

func (e *MissingFileError) Is(target error) bool {
	return target == ErrFileMissing
}

// FetchFunc fetches a path through the render's resource loader.
type FetchFunc func(path string) *future.Future[[]byte]

// Configuration describes how to render. It is not modified by the
// Environment.
type Configuration struct {
	// RegistrationCallbackName is the global function scripts call with
	// their render callback.
	RegistrationCallbackName string
	// GetFileList returns the scripts to execute, in order.
	GetFileList func(ctx context.Context, url string, api *API, fetch FetchFunc) ([]string, error)
	// GetResourceLoader returns a fresh loader for one render.
	GetResourceLoader func(url string, api *API) (loader.ResourceLoader, error)
	// AfterEnvSetup runs after the scripts and before the render callback.
	// A returned Closer is closed during teardown. Optional.
	AfterEnvSetup func(ctx context.Context, url string, files []string, api *API, global *sandbox.Window) (io.Closer, error)
	// RenderTimeout bounds script execution and the render callback. Zero
	// means DefaultTimeout; negative disables the bound.
	RenderTimeout time.Duration
}

func (c *Configuration) validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: configuration is nil", ErrMissingConfiguration)
	case c.RegistrationCallbackName == "":
		return fmt.Errorf("%w: RegistrationCallbackName is required", ErrMissingConfiguration)
	case c.GetFileList == nil:
		return fmt.Errorf("%w: GetFileList is required", ErrMissingConfiguration)
	case c.GetResourceLoader == nil:
		return fmt.Errorf("%w: GetResourceLoader is required", ErrMissingConfiguration)
	}
	return nil
}

// API is what a render exposes to its configuration callbacks.
type API struct {
	Headers map[string]string
	Logger  *logging.Logger
	Tracer  *tracing.Tracer
	ctx     context.Context
}

// NewAPI creates the per-request API. Nil logger and tracer are allowed.
func NewAPI(ctx context.Context, headers map[string]string, logger *logging.Logger, tracer *tracing.Tracer) *API {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if headers == nil {
		headers = map[string]string{}
	}
	return &API{Headers: headers, Logger: logger, Tracer: tracer, ctx: ctx}
}

// Context returns the request context.
func (a *API) Context() context.Context {
	return a.ctx
}

// Trace opens a trace session scoped to the request.
func (a *API) Trace(action, message string) tracing.Session {
	if a.Tracer == nil {
		return tracing.Nop()
	}
	return a.Tracer.Trace(a.ctx, action, message, a.Logger)
}

// Result is what a render callback produces.
type Result struct {
	Body    string            `json:"body"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
}

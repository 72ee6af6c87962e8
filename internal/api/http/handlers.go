package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/domain/render"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/errinfo"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// maxRequestBody bounds the JSON body of a render request.
const maxRequestBody = 1 << 20

// statusClientClosedRequest is logged when the caller went away mid-render.
const statusClientClosedRequest = 499

// Renderer is satisfied by *render.Environment.
type Renderer interface {
	Render(ctx context.Context, url string, api *render.API) (*render.Result, error)
}

// Options configures Handlers.
type Options struct {
	Logger  *logging.Logger
	Tracer  *tracing.Tracer
	Metrics *monitoring.Metrics
	// Verbose puts the error message on error pages. Off in production.
	Verbose bool
}

// Handlers serves the gateway routes.
type Handlers struct {
	renderer  Renderer
	logger    *logging.Logger
	tracer    *tracing.Tracer
	metrics   *monitoring.Metrics
	verbose   bool
	sanitizer *bluemonday.Policy
}

// NewHandlers creates a new handler set
func NewHandlers(renderer Renderer, opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		renderer:  renderer,
		logger:    logger,
		tracer:    opts.Tracer,
		metrics:   opts.Metrics,
		verbose:   opts.Verbose,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// RenderRequest is the body of POST /render.
type RenderRequest struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// Root handles GET /
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "ssr",
	})
}

// Health reports render totals
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"renders": h.metrics.GetSnapshot(),
	})
}

// Render handles POST /render
func (h *Handlers) Render(c *gin.Context) {
	logger := middleware.RequestLogger(c, h.logger)

	var req RenderRequest
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody+1))
	if err == nil && len(body) > maxRequestBody {
		err = fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	if err == nil {
		err = sonic.Unmarshal(body, &req)
	}
	if err == nil {
		err = validateURL(req.URL)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger = logger.Child(zap.String("url", req.URL))
	api := render.NewAPI(c.Request.Context(), req.Headers, logger, h.tracer)

	res, err := h.renderer.Render(c.Request.Context(), req.URL, api)
	if err != nil {
		h.renderFailed(c, logger, err)
		return
	}
	h.writeResult(c, res.Status, res)
}

func (h *Handlers) renderFailed(c *gin.Context, logger *logging.Logger, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	if status == statusClientClosedRequest {
		logger.Info("render abandoned by client", zap.Error(err))
		c.Status(status)
		return
	}

	logger.Error("render failed", errinfo.Extract(err).Fields()...)
	detail := ""
	if h.verbose {
		detail = h.sanitizer.Sanitize(err.Error())
	}
	h.writeResult(c, status, &render.Result{
		Body:    errorPage(status, detail),
		Status:  status,
		Headers: map[string]string{"content-type": "text/html; charset=utf-8"},
	})
}

func (h *Handlers) writeResult(c *gin.Context, status int, res *render.Result) {
	data, err := sonic.Marshal(res)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be absolute http(s)", raw)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, manifest.ErrNoRoute):
		return http.StatusNotFound
	case errors.Is(err, render.ErrRenderTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, render.ErrFileMissing):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorPage renders a minimal page. detail must already be sanitized.
func errorPage(status int, detail string) string {
	page := fmt.Sprintf("<!DOCTYPE html><html><head><title>%d %s</title></head><body><h1>%d %s</h1>",
		status, http.StatusText(status), status, http.StatusText(status))
	if detail != "" {
		page += "<pre>" + detail + "</pre>"
	}
	return page + "</body></html>"
}

package tracing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/id"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TraceID represents a unique trace identifier
type TraceID string

// SpanID represents a unique span identifier
type SpanID string

// Span represents a single traced action
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	Message   string
	Service   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     error

	mu     sync.Mutex
	labels map[string]any
}

// Labels returns a copy of the labels recorded so far.
func (s *Span) Labels() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.labels))
	for k, v := range s.labels {
		out[k] = v
	}
	return out
}

// Session is a single traced action. End is idempotent.
type Session interface {
	AddLabel(key string, value any)
	End()
}

// Tracer collects finished spans and mirrors them into OpenTelemetry.
type Tracer struct {
	service string
	logger  *logging.Logger
	otel    trace.Tracer
	spans   chan *Span

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithTracerProvider routes spans to the given provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *Tracer) {
		t.otel = tp.Tracer(t.service)
	}
}

// New creates a new tracer instance
func New(service string, logger *logging.Logger, opts ...Option) *Tracer {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger,
		otel:    otel.Tracer(service),
		spans:   make(chan *Span, 1000),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.collectSpans()

	return t
}

// Trace opens a session for action. The returned session logs through
// logger when it ends, so request-scoped fields are kept.
func (t *Tracer) Trace(ctx context.Context, action, message string, logger *logging.Logger) Session {
	s, _ := t.Start(ctx, action, message, logger)
	return s
}

// Start is Trace that also returns the context carrying the new span, for
// callers that open nested sessions.
func (t *Tracer) Start(ctx context.Context, action, message string, logger *logging.Logger) (Session, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = t.logger
	}

	span, ctx := t.startSpan(ctx, action)
	span.Message = message

	ctx, otelSpan := t.otel.Start(ctx, action,
		trace.WithAttributes(
			attribute.String("ssr.message", message),
			attribute.String("ssr.trace_id", string(span.TraceID)),
		),
	)

	return &session{tracer: t, span: span, otel: otelSpan, logger: logger}, ctx
}

func (t *Tracer) startSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}

	parentID, _ := ctx.Value(spanIDKey).(SpanID)

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.NewSpanID()),
		ParentID:  parentID,
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		labels:    make(map[string]any),
	}

	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, spanIDKey, span.SpanID)

	return span, newCtx
}

// collectSpans processes completed spans
func (t *Tracer) collectSpans() {
	defer close(t.done)
	for span := range t.spans {
		t.processSpan(span)
	}
}

func (t *Tracer) processSpan(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.String("service", span.Service),
	}

	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}

	if span.Error != nil {
		fields = append(fields, zap.Error(span.Error))
		t.logger.Error("span completed with error", fields...)
	} else {
		t.logger.Debug("span completed", fields...)
	}
}

// Submit sends a span to the collector
func (t *Tracer) Submit(span *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}

	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
		)
	}
}

// Close drains the collector. Spans submitted afterwards are dropped.
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.spans)
	t.mu.Unlock()
	<-t.done
}

type session struct {
	tracer *Tracer
	span   *Span
	otel   trace.Span
	logger *logging.Logger
	once   sync.Once
}

func (s *session) AddLabel(key string, value any) {
	s.span.mu.Lock()
	s.span.labels[key] = value
	s.span.mu.Unlock()
	s.otel.SetAttributes(attributeOf(key, value))

	if err, ok := value.(error); ok && key == "error" {
		s.span.Error = err
	}
}

func (s *session) End() {
	s.once.Do(func() {
		s.span.EndTime = time.Now()
		s.span.Duration = s.span.EndTime.Sub(s.span.StartTime)
		if s.span.Error != nil {
			s.otel.RecordError(s.span.Error)
			s.otel.SetStatus(codes.Error, s.span.Error.Error())
		}
		s.otel.End()
		s.logger.Trace("trace session ended",
			zap.String("action", s.span.Name),
			zap.String("message", s.span.Message),
			zap.Duration("duration", s.span.Duration),
			zap.Any("labels", s.span.Labels()),
		)
		s.tracer.Submit(s.span)
	})
}

func attributeOf(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

type nopSession struct{}

func (nopSession) AddLabel(string, any) {}
func (nopSession) End()                 {}

// Nop returns a session that records nothing.
func Nop() Session { return nopSession{} }

// ExtractTraceContext extracts trace context from headers
func ExtractTraceContext(headers map[string]string) (TraceID, SpanID) {
	traceID := TraceID(headers[TraceIDHeader])
	spanID := SpanID(headers[SpanIDHeader])
	return traceID, spanID
}

// InjectTraceContext injects trace context into headers
func InjectTraceContext(ctx context.Context, headers map[string]string) {
	if traceID, ok := ctx.Value(traceIDKey).(TraceID); ok {
		headers[TraceIDHeader] = string(traceID)
	}
	if spanID, ok := ctx.Value(spanIDKey).(SpanID); ok {
		headers[SpanIDHeader] = string(spanID)
	}
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return traceID
	}
	return ""
}

// GetSpanID retrieves the span ID from context
func GetSpanID(ctx context.Context) SpanID {
	if spanID, ok := ctx.Value(spanIDKey).(SpanID); ok {
		return spanID
	}
	return ""
}

// WithTraceID seeds ctx with an existing trace id, e.g. the gateway request id.
func WithTraceID(ctx context.Context, traceID TraceID) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func withSpanID(ctx context.Context, spanID SpanID) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

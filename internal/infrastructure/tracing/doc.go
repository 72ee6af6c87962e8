/*
Package tracing provides trace sessions for renders and their sub-requests.

# Overview

A Session marks one traced action: acquiring a file list, downloading a
script, serving a gateway request. Sessions carry labels (retry counts,
cache provenance, status codes) and end exactly once. Ended spans are
logged through a buffered collector and mirrored into OpenTelemetry, so an
OTLP exporter configured by InitTracer sees the same actions.

# Usage

	tracer := tracing.New("ssr", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer, tracing.WithRequestID(middleware.GetRequestID)))

	sess := tracer.Trace(ctx, "render.files", "acquire file list", reqLog)
	defer sess.End()
	sess.AddLabel("count", len(files))

# Propagation

The gateway reads X-Trace-ID and X-Span-ID for the logged span and a W3C
traceparent for the OpenTelemetry span. Responses echo all three.
*/
package tracing

/*
Package tracing wires OpenTelemetry into the Shepherd clients.

# Overview

Setup installs the global TracerProvider (stdout exporter or noop) and the
W3C trace-context propagator. Generation sessions open a span per request
and inject traceparent into the streaming POST; the dev server continues
that trace through HTTPMiddleware.

# Usage

	shutdown, err := tracing.Setup(ctx, tracing.Config{Enabled: true, Exporter: "stdout"})
	defer shutdown(ctx)

	ctx, span := tracing.StartSpan(ctx, "generation.start", tracing.String("content_kind", kind))
	defer span.End()
	tracing.InjectHeaders(ctx, req.Header)
*/
package tracing

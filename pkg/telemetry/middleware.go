// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	mcpparser "github.com/stacklok/mcpgate/pkg/mcp"
)

// NewHTTPMiddleware wraps a handler with otelhttp server spans and metrics.
// Spans are named "<serviceName> <METHOD>".
func NewHTTPMiddleware(
	serviceName string,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(tracerProvider),
			otelhttp.WithMeterProvider(meterProvider),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return serviceName + " " + r.Method
			}),
		)
	}
}

// MCPSpanAttributes copies the parsed JSON-RPC method and, for tools/call,
// the tool name onto the active span. It must run after the parsing middleware.
func MCPSpanAttributes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		if parsed := mcpparser.GetParsedMCPRequest(r.Context()); parsed != nil && span.IsRecording() {
			attrs := []attribute.KeyValue{attribute.String("mcp.method.name", parsed.Method)}
			if parsed.Method == mcpparser.MethodToolsCall && parsed.ResourceID != "" {
				attrs = append(attrs, attribute.String("mcp.tool.name", parsed.ResourceID))
			}
			if parsed.IsBatch {
				attrs = append(attrs, attribute.Bool("mcp.batch", true))
			}
			span.SetAttributes(attrs...)
		}
		next.ServeHTTP(w, r)
	})
}

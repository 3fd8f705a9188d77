// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package dispatch merges per-call providers into the MCP tools/list and
// tools/call operations.
//
// The Dispatcher middleware resolves the spec a call refers to, acquires an
// outbound client for the duration of the call, builds the provider and
// stores it on the request context. SessionContextFunc and ToolFilter then
// expose the provider to the mcp-go server for that request only.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/gateway/callctx"
	"github.com/stacklok/mcpgate/pkg/gateway/client"
	"github.com/stacklok/mcpgate/pkg/gateway/provider"
	"github.com/stacklok/mcpgate/pkg/gateway/spec"
	mcpparser "github.com/stacklok/mcpgate/pkg/mcp"
	"github.com/stacklok/mcpgate/pkg/transport/middleware"
)

const instrumentationName = "github.com/stacklok/mcpgate/pkg/gateway/dispatch"

// StaticToolLookup reports whether a statically registered tool exists.
type StaticToolLookup func(name string) bool

// Config holds the collaborators of a Dispatcher.
type Config struct {
	Resolver spec.Resolver
	Manager  *client.Manager
	Builder  *provider.Builder
	// Policy selects the inbound headers forwarded upstream. Nil forwards
	// everything except restricted and transport headers.
	Policy *middleware.Policy
	// StaticTool answers whether a tool name is served without a provider.
	StaticTool StaticToolLookup
	// MeterProvider records dispatch metrics. Defaults to a no-op provider.
	MeterProvider metric.MeterProvider
}

// Dispatcher is the per-call provider middleware.
type Dispatcher struct {
	resolver   spec.Resolver
	manager    *client.Manager
	builder    *provider.Builder
	policy     *middleware.Policy
	staticTool StaticToolLookup

	inFlight atomic.Int64

	callsTotal  metric.Int64Counter
	errorsTotal metric.Int64Counter
}

// New validates cfg and returns a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Resolver == nil || cfg.Manager == nil || cfg.Builder == nil {
		return nil, errors.New("dispatch: resolver, manager and builder are required")
	}
	if cfg.StaticTool == nil {
		cfg.StaticTool = func(string) bool { return false }
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = noop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter(instrumentationName)
	callsTotal, err := meter.Int64Counter(
		"mcpgate_dynamic_calls",
		metric.WithDescription("Total number of calls dispatched with a per-call provider"))
	if err != nil {
		return nil, fmt.Errorf("failed to create calls counter: %w", err)
	}
	errorsTotal, err := meter.Int64Counter(
		"mcpgate_dynamic_call_errors",
		metric.WithDescription("Total number of per-call provider failures by kind"))
	if err != nil {
		return nil, fmt.Errorf("failed to create errors counter: %w", err)
	}

	return &Dispatcher{
		resolver:    cfg.Resolver,
		manager:     cfg.Manager,
		builder:     cfg.Builder,
		policy:      cfg.Policy,
		staticTool:  cfg.StaticTool,
		callsTotal:  callsTotal,
		errorsTotal: errorsTotal,
	}, nil
}

// InFlight is the number of calls currently holding a provider.
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

// Middleware must run after mcpparser.ParsingMiddleware. Requests other than
// tools/list and tools/call, notifications and batches pass through
// untouched.
func (d *Dispatcher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parsed := mcpparser.GetParsedMCPRequest(r.Context())
		if parsed == nil || parsed.IsBatch || !parsed.IsRequest ||
			(parsed.Method != mcpparser.MethodToolsList && parsed.Method != mcpparser.MethodToolsCall) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := callctx.WithCallID(r.Context())
		logger := slog.With("call_id", callctx.CallIDFromContext(ctx), "method", parsed.Method)
		toolName := ""
		if parsed.Method == mcpparser.MethodToolsCall {
			toolName = parsed.ResourceID
			logger = logger.With("tool", toolName)
		}

		forwarded := middleware.ForwardedHeaders(r, d.policy)
		ref, ok, err := spec.ReferenceFromRequest(parsed.Params, r.Header, forwarded)
		if err != nil {
			d.fail(ctx, w, r, logger, parsed, err)
			return
		}
		if !ok {
			if toolName != "" && !d.staticTool(toolName) {
				d.fail(ctx, w, r, logger, parsed, fmt.Errorf("%w: %q", gateway.ErrToolNotFound, toolName))
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		d.inFlight.Add(1)
		defer d.inFlight.Add(-1)
		d.callsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("mcp.method.name", parsed.Method)))
		logger.Debug("resolving per-call spec", "source", ref.Source())

		if err := d.serve(ctx, w, r, next, logger, ref, forwarded, toolName); err != nil {
			d.fail(ctx, w, r, logger, parsed, err)
		}
	})
}

// serve runs the resolve, acquire, build and dispatch steps. The client is
// released before serve returns on every path.
func (d *Dispatcher) serve(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	next http.Handler,
	logger *slog.Logger,
	ref spec.Reference,
	forwarded http.Header,
	toolName string,
) error {
	apiSpec, err := d.resolver.Resolve(ctx, ref)
	if err != nil {
		return err
	}

	return d.manager.WithClient(ctx, apiSpec.ServerURL, forwarded, func(c client.OutboundClient) error {
		p, err := d.builder.Build(ctx, apiSpec, c, forwarded)
		if err != nil {
			return err
		}
		if toolName != "" {
			if _, ok := p.Tool(toolName); !ok && !d.staticTool(toolName) {
				return fmt.Errorf("%w: %q", gateway.ErrToolNotFound, toolName)
			}
		}
		logger.Debug("dispatching with per-call provider", "tools", p.Len(), "base_url", c.BaseURL())
		next.ServeHTTP(w, r.WithContext(callctx.WithProvider(ctx, p)))
		return nil
	})
}

func (d *Dispatcher) fail(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	logger *slog.Logger,
	parsed *mcpparser.ParsedMCPRequest,
	err error,
) {
	kind := gateway.Kind(err)
	if r.Context().Err() != nil {
		// the client went away, nobody reads the answer
		kind = gateway.KindCancelled
	}
	d.errorsTotal.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("mcp.method.name", parsed.Method),
		attribute.String("error.type", kind),
	))

	switch kind {
	case gateway.KindCancelled:
		if r.Context().Err() != nil {
			logger.Debug("call cancelled", "error", err)
			return
		}
		logger.Warn("per-call dispatch timed out", "error", err)
	case gateway.KindInternal:
		logger.Error("per-call dispatch failed", "error", err)
	default:
		logger.Warn("per-call dispatch rejected", "kind", kind, "error", err)
	}
	writeRPCError(w, parsed.ID, err)
}

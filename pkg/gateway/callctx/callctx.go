// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package callctx carries per-call state on context.Context.
//
// Values live on the context derived for one inbound request and vanish with
// it. Nothing here is shared between requests, so concurrent calls can never
// see each other's provider.
package callctx

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stacklok/mcpgate/pkg/gateway/provider"
)

type providerKey struct{}

type callIDKey struct{}

// WithProvider returns a context carrying p. A context can carry at most one
// provider: if ctx already has one, ctx is returned unchanged.
func WithProvider(ctx context.Context, p *provider.Provider) context.Context {
	if p == nil {
		return ctx
	}
	if _, ok := ProviderFromContext(ctx); ok {
		slog.Warn("call already has a provider, ignoring the second one", "call_id", CallIDFromContext(ctx))
		return ctx
	}
	return context.WithValue(ctx, providerKey{}, p)
}

// ProviderFromContext returns the provider of the current call, if any.
func ProviderFromContext(ctx context.Context) (*provider.Provider, bool) {
	p, ok := ctx.Value(providerKey{}).(*provider.Provider)
	return p, ok && p != nil
}

// WithCallID returns a context carrying a new call ID, unless ctx has one.
func WithCallID(ctx context.Context) context.Context {
	if CallIDFromContext(ctx) != "" {
		return ctx
	}
	return context.WithValue(ctx, callIDKey{}, uuid.NewString())
}

// CallIDFromContext returns the call ID, or "" outside a call.
func CallIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

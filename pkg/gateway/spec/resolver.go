// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package spec resolves API description references into parsed documents.
package spec

//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks -source=resolver.go Resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/networking"
)

const (
	// DefaultFetchTimeout bounds a single resolve, retries included.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultRetries is the number of attempts for a spec fetch.
	DefaultRetries = 3
	// DefaultMaxBytes is the largest accepted document.
	DefaultMaxBytes = networking.DefaultMaxResponseSize
)

// Resolver turns a Reference into a parsed ApiSpec.
type Resolver interface {
	// Resolve fetches and parses the referenced document. Errors wrap
	// gateway.ErrSpecFetch, gateway.ErrSpecParse or gateway.ErrProviderBuild.
	Resolve(ctx context.Context, ref Reference) (*gateway.ApiSpec, error)
}

// Option configures a DefaultResolver.
type Option func(*DefaultResolver)

// WithFetchTimeout sets the per-resolve timeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *DefaultResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRetries sets the number of fetch attempts.
func WithRetries(n int) Option {
	return func(r *DefaultResolver) {
		if n > 0 {
			r.retries = n
		}
	}
}

// WithMaxBytes sets the largest accepted document.
func WithMaxBytes(n int64) Option {
	return func(r *DefaultResolver) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// DefaultResolver fetches over HTTP with bounded retries and parses with
// kin-openapi. It holds no per-call state.
type DefaultResolver struct {
	client   networking.HTTPClient
	timeout  time.Duration
	retries  int
	maxBytes int64
}

// NewResolver creates a resolver that fetches with client.
func NewResolver(client networking.HTTPClient, opts ...Option) *DefaultResolver {
	r := &DefaultResolver{
		client:   client,
		timeout:  DefaultFetchTimeout,
		retries:  DefaultRetries,
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements Resolver.
func (r *DefaultResolver) Resolve(ctx context.Context, ref Reference) (*gateway.ApiSpec, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: empty reference", gateway.ErrSpecFetch)
	}

	data := ref.Document
	if len(data) == 0 {
		fetched, err := r.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		data = fetched
	} else if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: inline document exceeds %d bytes", gateway.ErrSpecFetch, r.maxBytes)
	}

	doc, err := Parse(ctx, data)
	if err != nil {
		return nil, err
	}

	serverURL, err := ServerURL(doc, ref.APIURL, ref.URL)
	if err != nil {
		return nil, err
	}

	return &gateway.ApiSpec{
		Source:    ref.Source(),
		Document:  doc,
		ServerURL: serverURL,
	}, nil
}

func (r *DefaultResolver) fetch(ctx context.Context, ref Reference) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	operation := func() ([]byte, error) {
		body, err := networking.FetchBytes(ctx, r.client, ref.URL,
			networking.WithHeaders(ref.Headers),
			networking.WithHeader("Accept", "application/json, application/yaml;q=0.9, */*;q=0.8"),
			networking.WithMaxResponseSize(r.maxBytes),
		)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, networking.ErrResponseTooLarge) || errors.Is(err, context.Canceled) ||
			(networking.IsHTTPError(err, 0) && !networking.IsRetryableHTTPError(err)) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(r.retries)), // #nosec G115 -- retries is validated positive
		backoff.WithNotify(func(err error, d time.Duration) {
			slog.Debug("spec fetch failed, retrying", "url", ref.URL, "error", err, "backoff", d)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", gateway.ErrSpecFetch, ref.URL, err)
	}
	return body, nil
}

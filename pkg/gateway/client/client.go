// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client owns the outbound HTTP clients that dynamic tools call
// their target API with. A client is created for one call, carries that
// call's forwarded headers and is released exactly once when the call ends.
package client

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go OutboundClient,Factory

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/networking"
)

// OutboundClient is an HTTP client bound to one target API and one set of
// forwarded headers.
type OutboundClient interface {
	// Do sends req. It fails with gateway.ErrClientClosed after Close.
	Do(req *http.Request) (*http.Response, error)
	// BaseURL is the target API base URL without a trailing slash.
	BaseURL() string
	// Headers returns a copy of the headers sent with every request.
	Headers() http.Header
	// Close releases idle connections. It is safe to call more than once.
	Close() error
	// Closed reports whether Close has been called.
	Closed() bool
}

// Factory creates outbound clients.
type Factory interface {
	New(baseURL string, headers http.Header) (OutboundClient, error)
}

type httpClient struct {
	baseURL string
	headers http.Header
	client  *http.Client
	// idle is the transport below instrumentation
	idle interface{ CloseIdleConnections() }

	once   sync.Once
	closed atomic.Bool
}

var _ OutboundClient = (*httpClient)(nil)

func (c *httpClient) Do(req *http.Request) (*http.Response, error) {
	if c.closed.Load() {
		return nil, gateway.ErrClientClosed
	}
	return c.client.Do(req)
}

func (c *httpClient) BaseURL() string {
	return c.baseURL
}

func (c *httpClient) Headers() http.Header {
	return c.headers.Clone()
}

func (c *httpClient) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		c.client.CloseIdleConnections()
		if c.idle != nil {
			c.idle.CloseIdleConnections()
		}
	})
	return nil
}

func (c *httpClient) Closed() bool {
	return c.closed.Load()
}

// HTTPFactory builds clients on networking.HttpClientBuilder. Every client
// gets its own transport, so connections are never pooled across calls.
type HTTPFactory struct {
	timeout         time.Duration
	caBundle        string
	allowPrivateIPs bool
	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider
}

// FactoryOption configures an HTTPFactory.
type FactoryOption func(*HTTPFactory)

// WithTimeout sets the overall timeout of each outbound request.
func WithTimeout(d time.Duration) FactoryOption {
	return func(f *HTTPFactory) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithCABundle trusts the certificates in path in addition to the system pool.
func WithCABundle(path string) FactoryOption {
	return func(f *HTTPFactory) {
		f.caBundle = path
	}
}

// WithPrivateIPs controls whether clients may dial private addresses.
func WithPrivateIPs(allow bool) FactoryOption {
	return func(f *HTTPFactory) {
		f.allowPrivateIPs = allow
	}
}

// WithTelemetry instruments client transports with the given providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) FactoryOption {
	return func(f *HTTPFactory) {
		f.tracerProvider = tp
		f.meterProvider = mp
	}
}

// NewFactory returns an HTTPFactory.
func NewFactory(opts ...FactoryOption) *HTTPFactory {
	f := &HTTPFactory{
		timeout:         networking.HttpTimeout,
		allowPrivateIPs: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ Factory = (*HTTPFactory)(nil)

// New implements Factory.
func (f *HTTPFactory) New(baseURL string, headers http.Header) (OutboundClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid API base URL %q", gateway.ErrProviderBuild, baseURL)
	}

	otelOpts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "upstream " + r.Method
		}),
	}
	if f.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(f.tracerProvider))
	}
	if f.meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(f.meterProvider))
	}

	var inner http.RoundTripper
	hc, err := networking.NewHttpClientBuilder().
		WithTimeout(f.timeout).
		WithCABundle(f.caBundle).
		WithPrivateIPs(f.allowPrivateIPs).
		WithHeaders(headers).
		WithTransportWrapper(func(next http.RoundTripper) http.RoundTripper {
			inner = next
			return otelhttp.NewTransport(next, otelOpts...)
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build outbound client: %w", err)
	}

	c := &httpClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		headers: headers.Clone(),
		client:  hc,
	}
	if idle, ok := inner.(interface{ CloseIdleConnections() }); ok {
		c.idle = idle
	}
	return c, nil
}

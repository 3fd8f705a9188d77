// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the gateway over MCP streamable HTTP.
//
// A Server owns one mcp-go MCPServer carrying the static tools, and puts the
// dispatch middleware in front of its HTTP transport so that tools/list and
// tools/call requests naming a spec see that spec's tools for the duration
// of the request only.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/mcpgate/pkg/gateway/client"
	"github.com/stacklok/mcpgate/pkg/gateway/config"
	"github.com/stacklok/mcpgate/pkg/gateway/conversion"
	"github.com/stacklok/mcpgate/pkg/gateway/dispatch"
	"github.com/stacklok/mcpgate/pkg/gateway/provider"
	"github.com/stacklok/mcpgate/pkg/gateway/spec"
	"github.com/stacklok/mcpgate/pkg/logger"
	mcpparser "github.com/stacklok/mcpgate/pkg/mcp"
	"github.com/stacklok/mcpgate/pkg/networking"
	"github.com/stacklok/mcpgate/pkg/recovery"
	"github.com/stacklok/mcpgate/pkg/telemetry"
	"github.com/stacklok/mcpgate/pkg/transport/middleware"
	"github.com/stacklok/mcpgate/pkg/versions"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultMaxHeaderBytes    = 1 << 20
	defaultShutdownTimeout   = 10 * time.Second
)

// Config holds the Server configuration and optional collaborators.
type Config struct {
	// Gateway is the loaded, validated gateway configuration.
	Gateway *config.Config

	// TelemetryProvider instruments inbound and outbound HTTP and serves
	// /metrics. Nil disables telemetry.
	TelemetryProvider *telemetry.Provider

	// ClientFactory creates outbound clients. Nil uses an HTTP factory
	// configured from Gateway.Outbound.
	ClientFactory client.Factory

	// Resolver resolves spec references. Nil uses an HTTP resolver
	// configured from Gateway.Spec.
	Resolver spec.Resolver
}

// Server is the MCP gateway.
type Server struct {
	config *config.Config

	mcpServer        *server.MCPServer
	streamableServer *server.StreamableHTTPServer
	handler          http.Handler

	resolver   spec.Resolver
	manager    *client.Manager
	dispatcher *dispatch.Dispatcher
	telemetry  *telemetry.Provider

	staticTools    int
	staticReleases []func()

	httpServer *http.Server
	listener   net.Listener
	listenerMu sync.RWMutex

	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

// New builds a Server. Static specs are loaded here; any failure aborts.
func New(ctx context.Context, cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Gateway == nil {
		return nil, errors.New("server: gateway configuration is required")
	}
	gw := cfg.Gateway

	var (
		tp trace.TracerProvider = tracenoop.NewTracerProvider()
		mp metric.MeterProvider = noop.NewMeterProvider()
	)
	if cfg.TelemetryProvider != nil {
		tp = cfg.TelemetryProvider.TracerProvider()
		mp = cfg.TelemetryProvider.MeterProvider()
	}

	policy, err := middleware.NewPolicy(gw.Headers.ForwardAuthorization, gw.Headers.Add, gw.Headers.Drop)
	if err != nil {
		return nil, fmt.Errorf("invalid header policy: %w", err)
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver, err = newResolver(gw, tp, mp)
		if err != nil {
			return nil, err
		}
	}

	factory := cfg.ClientFactory
	if factory == nil {
		factory = client.NewFactory(
			client.WithTimeout(gw.Outbound.Timeout.Std()),
			client.WithCABundle(gw.Outbound.CABundle),
			client.WithPrivateIPs(gw.Outbound.PrivateIPsAllowed()),
			client.WithTelemetry(tp, mp),
		)
	}
	manager, err := client.NewManager(factory, client.WithMeterProvider(mp))
	if err != nil {
		return nil, err
	}

	builder := provider.NewBuilder(conversion.NewConverter(),
		provider.WithMaxResponseBytes(gw.Outbound.MaxResponseBytes))

	mcpServer := server.NewMCPServer(
		gw.Name,
		versions.GetVersionInfo().Version,
		server.WithToolCapabilities(false),
		server.WithToolFilter(dispatch.ToolFilter),
		server.WithRecovery(),
		server.WithLogging(),
	)

	dispatcher, err := dispatch.New(dispatch.Config{
		Resolver:      resolver,
		Manager:       manager,
		Builder:       builder,
		Policy:        policy,
		StaticTool:    func(name string) bool { return mcpServer.GetTool(name) != nil },
		MeterProvider: mp,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:     gw,
		mcpServer:  mcpServer,
		resolver:   resolver,
		manager:    manager,
		dispatcher: dispatcher,
		telemetry:  cfg.TelemetryProvider,
		ready:      make(chan struct{}),
	}

	if err := s.loadStaticSpecs(ctx, builder); err != nil {
		s.releaseStatic()
		return nil, err
	}

	s.streamableServer = server.NewStreamableHTTPServer(
		mcpServer,
		server.WithEndpointPath(gw.EndpointPath),
		server.WithStateLess(gw.Stateless),
		server.WithHTTPContextFunc(dispatch.SessionContextFunc(mcpServer)),
	)
	s.handler = s.buildHandler()
	return s, nil
}

func newResolver(gw *config.Config, tp trace.TracerProvider, mp metric.MeterProvider) (spec.Resolver, error) {
	httpClient, err := networking.NewHttpClientBuilder().
		WithTimeout(gw.Spec.FetchTimeout.Std()).
		WithPrivateIPs(gw.Spec.PrivateIPsAllowed()).
		WithCABundle(gw.Outbound.CABundle).
		WithTransportWrapper(func(next http.RoundTripper) http.RoundTripper {
			return otelhttp.NewTransport(next,
				otelhttp.WithTracerProvider(tp),
				otelhttp.WithMeterProvider(mp),
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "spec " + r.Method
				}))
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build spec fetch client: %w", err)
	}

	var resolver spec.Resolver = spec.NewResolver(httpClient,
		spec.WithFetchTimeout(gw.Spec.FetchTimeout.Std()),
		spec.WithRetries(gw.Spec.Retries),
		spec.WithMaxBytes(gw.Spec.MaxBytes),
	)
	if gw.Spec.CacheTTL > 0 {
		resolver = spec.NewCachingResolver(resolver, gw.Spec.CacheTTL.Std(), gw.Spec.CacheMaxEntries)
		logger.Infow("spec cache enabled", "ttl", gw.Spec.CacheTTL.Std(), "max_entries", gw.Spec.CacheMaxEntries)
	}
	return resolver, nil
}

// buildHandler assembles the HTTP routes. The MCP endpoint runs, in order:
// recovery, telemetry, JSON-RPC parsing, span enrichment, dispatch and the
// mcp-go transport.
func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ping", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReadiness)
	mux.HandleFunc("/status", s.handleStatus)

	if s.telemetry != nil {
		if prometheusHandler := s.telemetry.PrometheusHandler(); prometheusHandler != nil {
			mux.Handle("/metrics", prometheusHandler)
			logger.Info("Prometheus metrics endpoint enabled at /metrics")
		}
	}

	var mcpHandler http.Handler = s.streamableServer
	mcpHandler = s.dispatcher.Middleware(mcpHandler)
	if s.telemetry != nil {
		mcpHandler = telemetry.MCPSpanAttributes(mcpHandler)
	}
	mcpHandler = mcpparser.ParsingMiddleware(s.config.EndpointPath)(mcpHandler)
	if s.telemetry != nil {
		mcpHandler = s.telemetry.Middleware()(mcpHandler)
	}
	mcpHandler = recovery.Middleware(mcpHandler)

	mux.Handle(s.config.EndpointPath, mcpHandler)
	return mux
}

// Handler returns the gateway's HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is cancelled
// or the HTTP server fails. It stops the server before returning.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
	}

	listener, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	addr := listener.Addr().String()
	logger.Infow("starting MCP gateway",
		"address", addr,
		"endpoint", s.config.EndpointPath,
		"stateless", s.config.Stateless,
		"static_tools", s.staticTools)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	s.readyOnce.Do(func() { close(s.ready) })

	select {
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down server")
		return s.Stop(context.Background())
	case err := <-errCh:
		logger.Errorf("HTTP server error: %v", err)
		if stopErr := s.Stop(context.Background()); stopErr != nil {
			return fmt.Errorf("server error: %w; stop error: %v", err, stopErr)
		}
		return err
	}
}

// Stop shuts the HTTP server down and closes the static tools' clients.
// Calls after the first return the first call's result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		logger.Info("Stopping MCP gateway")
		var errs []error

		shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown HTTP server: %w", err))
			}
		}
		if err := s.streamableServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown MCP transport: %w", err))
		}

		s.listenerMu.Lock()
		s.listener = nil
		s.listenerMu.Unlock()

		s.releaseStatic()

		if len(errs) > 0 {
			s.stopErr = errors.Join(errs...)
			logger.Errorf("Errors during shutdown: %v", s.stopErr)
			return
		}
		logger.Info("MCP gateway stopped")
	})
	return s.stopErr
}

// Address returns the listen address, including the bound port when the
// configured port is 0.
func (s *Server) Address() string {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address()
}

// Ready is closed once the listener is serving.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// OpenClients is the number of outbound clients not yet released, static
// ones included.
func (s *Server) OpenClients() int64 {
	return s.manager.Open()
}

func (s *Server) releaseStatic() {
	for _, release := range s.staticReleases {
		release()
	}
	s.staticReleases = nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	return data, nil
}

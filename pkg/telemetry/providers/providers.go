// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package providers contains telemetry provider implementations and builder logic
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/telemetry/providers/otlp"
	"github.com/stacklok/mcpgate/pkg/telemetry/providers/prometheus"
)

// Config holds the telemetry configuration for all providers.
type Config struct {
	ServiceName    string
	ServiceVersion string

	OTLPEndpoint   string            // OTLPEndpoint is the collector endpoint, e.g. "localhost:4318"
	Headers        map[string]string // Headers are sent with OTLP requests
	Insecure       bool              // Insecure disables TLS for OTLP
	TracingEnabled bool
	MetricsEnabled bool
	SamplingRate   float64 // SamplingRate is the trace sampling ratio, 0.0 to 1.0

	EnablePrometheusMetricsPath bool
}

// ProviderOption is an option type used to configure the telemetry providers
type ProviderOption func(*Config) error

// WithServiceName sets the service name
func WithServiceName(serviceName string) ProviderOption {
	return func(config *Config) error {
		if serviceName == "" {
			return fmt.Errorf("service name cannot be empty")
		}
		config.ServiceName = serviceName
		return nil
	}
}

// WithServiceVersion sets the service version
func WithServiceVersion(serviceVersion string) ProviderOption {
	return func(config *Config) error {
		if serviceVersion == "" {
			return fmt.Errorf("service version cannot be empty")
		}
		config.ServiceVersion = serviceVersion
		return nil
	}
}

// WithOTLP sets the collector endpoint, headers and transport security.
func WithOTLP(endpoint string, headers map[string]string, insecure bool) ProviderOption {
	return func(config *Config) error {
		config.OTLPEndpoint = endpoint
		config.Headers = headers
		config.Insecure = insecure
		return nil
	}
}

// WithTracing enables OTLP tracing at the given sampling rate.
func WithTracing(enabled bool, samplingRate float64) ProviderOption {
	return func(config *Config) error {
		if samplingRate < 0 || samplingRate > 1 {
			return fmt.Errorf("sampling rate must be between 0 and 1, got %v", samplingRate)
		}
		config.TracingEnabled = enabled
		config.SamplingRate = samplingRate
		return nil
	}
}

// WithMetricsEnabled sets the metrics enabled flag
func WithMetricsEnabled(metricsEnabled bool) ProviderOption {
	return func(config *Config) error {
		config.MetricsEnabled = metricsEnabled
		return nil
	}
}

// WithEnablePrometheusMetricsPath sets the enable prometheus metrics path flag
func WithEnablePrometheusMetricsPath(enablePrometheusMetricsPath bool) ProviderOption {
	return func(config *Config) error {
		config.EnablePrometheusMetricsPath = enablePrometheusMetricsPath
		return nil
	}
}

func (c Config) otlpTracing() bool { return c.OTLPEndpoint != "" && c.TracingEnabled }
func (c Config) otlpMetrics() bool { return c.OTLPEndpoint != "" && c.MetricsEnabled }

func (c Config) otlpConfig() otlp.Config {
	return otlp.Config{
		Endpoint:     c.OTLPEndpoint,
		Headers:      c.Headers,
		Insecure:     c.Insecure,
		SamplingRate: c.SamplingRate,
	}
}

// CompositeProvider combines telemetry providers into a single interface.
// It manages tracer providers, meter providers, Prometheus handlers, and cleanup.
type CompositeProvider struct {
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	prometheusHandler http.Handler
	shutdownFuncs     []func(context.Context) error
}

// NewCompositeProvider creates the appropriate providers based on provided options
func NewCompositeProvider(ctx context.Context, options ...ProviderOption) (*CompositeProvider, error) {
	config := Config{}
	for _, option := range options {
		if err := option(&config); err != nil {
			return nil, err
		}
	}

	if !config.otlpTracing() && !config.otlpMetrics() && !config.EnablePrometheusMetricsPath {
		logger.Infof("No telemetry configured, using no-op providers")
		return &CompositeProvider{
			tracerProvider: tracenoop.NewTracerProvider(),
			meterProvider:  noop.NewMeterProvider(),
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource with service name '%s' and version '%s': %w",
			config.ServiceName, config.ServiceVersion, err)
	}

	composite := &CompositeProvider{}
	if err := composite.buildMeterProvider(ctx, config, res); err != nil {
		return nil, err
	}
	if err := composite.buildTracerProvider(ctx, config, res); err != nil {
		_ = composite.Shutdown(ctx)
		return nil, err
	}

	logger.Infow("telemetry providers created",
		"otlp_tracing", config.otlpTracing(),
		"otlp_metrics", config.otlpMetrics(),
		"prometheus", config.EnablePrometheusMetricsPath)
	return composite, nil
}

// buildMeterProvider creates one SDK meter provider fed to every enabled reader.
func (p *CompositeProvider) buildMeterProvider(ctx context.Context, config Config, res *resource.Resource) error {
	var readers []sdkmetric.Option

	if config.otlpMetrics() {
		reader, err := otlp.NewMetricReader(ctx, config.otlpConfig())
		if err != nil {
			return fmt.Errorf("failed to create meter provider (endpoint: %s): %w", config.OTLPEndpoint, err)
		}
		readers = append(readers, sdkmetric.WithReader(reader))
	}

	if config.EnablePrometheusMetricsPath {
		reader, handler, err := prometheus.NewReader()
		if err != nil {
			return fmt.Errorf("failed to create meter provider: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(reader))
		p.prometheusHandler = handler
	}

	if len(readers) == 0 {
		p.meterProvider = noop.NewMeterProvider()
		return nil
	}

	mp := sdkmetric.NewMeterProvider(append(readers, sdkmetric.WithResource(res))...)
	p.meterProvider = mp
	p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
	return nil
}

func (p *CompositeProvider) buildTracerProvider(ctx context.Context, config Config, res *resource.Resource) error {
	if !config.otlpTracing() {
		p.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	}

	tp, shutdown, err := otlp.NewTracerProvider(ctx, config.otlpConfig(), res)
	if err != nil {
		return fmt.Errorf("failed to create tracer provider (endpoint: %s): %w", config.OTLPEndpoint, err)
	}
	p.tracerProvider = tp
	if shutdown != nil {
		p.shutdownFuncs = append(p.shutdownFuncs, shutdown)
	}
	return nil
}

// TracerProvider returns the tracer provider
func (p *CompositeProvider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the primary meter provider
func (p *CompositeProvider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// PrometheusHandler returns the Prometheus metrics handler if configured
func (p *CompositeProvider) PrometheusHandler() http.Handler {
	return p.prometheusHandler
}

// Shutdown gracefully shuts down all providers
func (p *CompositeProvider) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	for i, shutdown := range p.shutdownFuncs {
		if err := shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("provider %d shutdown failed: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

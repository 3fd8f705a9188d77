// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/mcpgate/pkg/telemetry/providers"
	"github.com/stacklok/mcpgate/pkg/versions"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// Endpoint is the OTLP endpoint URL
	Endpoint string `json:"endpoint"`

	// ServiceName is the service name for telemetry
	ServiceName string `json:"serviceName"`

	// ServiceVersion is the service version for telemetry
	ServiceVersion string `json:"serviceVersion"`

	// TracingEnabled controls whether distributed tracing is enabled
	// When false, no tracer provider is created even if an endpoint is configured
	TracingEnabled bool `json:"tracingEnabled"`

	// MetricsEnabled controls whether OTLP metrics are enabled
	// This is independent of EnablePrometheusMetricsPath
	MetricsEnabled bool `json:"metricsEnabled"`

	// SamplingRate is the trace sampling rate (0.0-1.0)
	SamplingRate float64 `json:"samplingRate"`

	// Headers contains authentication headers for the OTLP endpoint
	Headers map[string]string `json:"headers"`

	// Insecure indicates whether to use HTTP instead of HTTPS for the OTLP endpoint
	Insecure bool `json:"insecure"`

	// EnablePrometheusMetricsPath exposes /metrics on the gateway listener
	EnablePrometheusMetricsPath bool `json:"enablePrometheusMetricsPath"`
}

// DefaultConfig returns a default telemetry configuration.
func DefaultConfig() Config {
	versionInfo := versions.GetVersionInfo()
	return Config{
		ServiceName:    "mcpgate",
		ServiceVersion: versionInfo.Version,
		TracingEnabled: true,
		MetricsEnabled: true,
		SamplingRate:   0.05,
		Headers:        make(map[string]string),
	}
}

// Provider encapsulates OpenTelemetry providers and configuration.
type Provider struct {
	config            Config
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	prometheusHandler http.Handler
	shutdown          func(context.Context) error
}

// NewProvider creates a new OpenTelemetry provider with the given configuration
// and installs it as the global OTel provider.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if err := validateOtelConfig(config); err != nil {
		return nil, err
	}

	telemetryProviders, err := providers.NewCompositeProvider(ctx,
		providers.WithServiceName(config.ServiceName),
		providers.WithServiceVersion(config.ServiceVersion),
		providers.WithOTLP(config.Endpoint, config.Headers, config.Insecure),
		providers.WithTracing(config.TracingEnabled, config.SamplingRate),
		providers.WithMetricsEnabled(config.MetricsEnabled),
		providers.WithEnablePrometheusMetricsPath(config.EnablePrometheusMetricsPath),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry providers: %w", err)
	}

	otel.SetTracerProvider(telemetryProviders.TracerProvider())
	otel.SetMeterProvider(telemetryProviders.MeterProvider())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		config:            config,
		tracerProvider:    telemetryProviders.TracerProvider(),
		meterProvider:     telemetryProviders.MeterProvider(),
		prometheusHandler: telemetryProviders.PrometheusHandler(),
		shutdown:          telemetryProviders.Shutdown,
	}, nil
}

// Middleware returns the inbound HTTP instrumentation for the gateway listener.
func (p *Provider) Middleware() func(http.Handler) http.Handler {
	return NewHTTPMiddleware(p.config.ServiceName, p.tracerProvider, p.meterProvider)
}

// Shutdown gracefully shuts down the telemetry provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown != nil {
		return p.shutdown(ctx)
	}
	return nil
}

// TracerProvider returns the configured tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the configured meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// PrometheusHandler returns the Prometheus metrics handler if configured.
// Returns nil if the Prometheus path is disabled.
func (p *Provider) PrometheusHandler() http.Handler {
	return p.prometheusHandler
}

func validateOtelConfig(config Config) error {
	if config.Endpoint != "" && !config.TracingEnabled && !config.MetricsEnabled {
		return fmt.Errorf("OTLP endpoint is configured but both tracing and metrics are disabled; " +
			"either enable tracing or metrics, or remove the endpoint")
	}
	return nil
}

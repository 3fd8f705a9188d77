// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/stacklok/mcpgate/pkg/transport/middleware"
)

// DefaultValidator checks a configuration after defaults are applied.
type DefaultValidator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *DefaultValidator {
	return &DefaultValidator{}
}

// Validate reports every problem in cfg at once.
func (v *DefaultValidator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", ErrInvalidConfig)
	}

	var errors []string
	collect := func(errs ...error) {
		for _, err := range errs {
			if err != nil {
				errors = append(errors, err.Error())
			}
		}
	}

	collect(v.validateListener(cfg)...)
	collect(v.validateHeaders(cfg.Headers))
	collect(v.validateSpec(cfg.Spec)...)
	collect(v.validateOutbound(cfg.Outbound)...)
	collect(v.validateStaticSpecs(cfg.StaticSpecs)...)
	collect(v.validateTelemetry(cfg.Telemetry)...)

	if len(errors) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errors, "\n  - "))
	}
	return nil
}

func (*DefaultValidator) validateListener(cfg *Config) []error {
	var errs []error
	if cfg.Name == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 0 and 65535, got %d", cfg.Port))
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		errs = append(errs, fmt.Errorf("endpointPath must start with '/', got %q", cfg.EndpointPath))
	}
	return errs
}

func (*DefaultValidator) validateHeaders(h HeadersConfig) error {
	if _, err := middleware.NewPolicy(h.ForwardAuthorization, h.Add, h.Drop); err != nil {
		return fmt.Errorf("headers: %w", err)
	}
	return nil
}

func (*DefaultValidator) validateSpec(s SpecConfig) []error {
	var errs []error
	if s.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("spec.fetchTimeout must be positive"))
	}
	if s.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("spec.maxBytes must be positive"))
	}
	if s.Retries < 0 {
		errs = append(errs, fmt.Errorf("spec.retries must not be negative"))
	}
	if s.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("spec.cacheTTL must not be negative"))
	}
	if s.CacheTTL > 0 && s.CacheMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("spec.cacheMaxEntries must be positive when the cache is enabled"))
	}
	return errs
}

func (*DefaultValidator) validateOutbound(o OutboundConfig) []error {
	var errs []error
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("outbound.timeout must be positive"))
	}
	if o.MaxResponseBytes <= 0 {
		errs = append(errs, fmt.Errorf("outbound.maxResponseBytes must be positive"))
	}
	return errs
}

func (*DefaultValidator) validateStaticSpecs(specs []StaticSpecConfig) []error {
	var errs []error
	names := make(map[string]bool, len(specs))
	for i, s := range specs {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("staticSpecs[%d].name is required", i))
		case names[s.Name]:
			errs = append(errs, fmt.Errorf("staticSpecs[%d].name %q is duplicated", i, s.Name))
		}
		names[s.Name] = true

		if (s.URL == "") == (s.File == "") {
			errs = append(errs, fmt.Errorf("staticSpecs[%d] must set exactly one of url or file", i))
		}
		if s.URL != "" && !isAbsoluteHTTP(s.URL) {
			errs = append(errs, fmt.Errorf("staticSpecs[%d].url must be an absolute http(s) URL", i))
		}
		if s.APIURL != "" && !isAbsoluteHTTP(s.APIURL) {
			errs = append(errs, fmt.Errorf("staticSpecs[%d].apiUrl must be an absolute http(s) URL", i))
		}
	}
	return errs
}

func (*DefaultValidator) validateTelemetry(t TelemetryConfig) []error {
	var errs []error
	if rate := t.Sampling(); rate < 0 || rate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.samplingRate must be between 0 and 1"))
	}
	if t.Endpoint != "" && !t.TracingEnabled && !t.MetricsEnabled {
		errs = append(errs, fmt.Errorf("telemetry.endpoint is set but both tracing and metrics are disabled"))
	}
	return errs
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

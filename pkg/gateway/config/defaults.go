// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"
)

// Default values for gateway configuration.
const (
	DefaultName         = "mcpgate"
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 4483
	DefaultEndpointPath = "/mcp"

	DefaultSpecFetchTimeout    = 30 * time.Second
	DefaultSpecMaxBytes        = 10 << 20
	DefaultSpecRetries         = 3
	DefaultSpecCacheMaxEntries = 128

	DefaultOutboundTimeout          = 30 * time.Second
	DefaultOutboundMaxResponseBytes = 10 << 20

	DefaultSamplingRate = 0.05
)

// DefaultConfig returns a configuration with every default set.
func DefaultConfig() *Config {
	specAllow, outboundAllow := true, true
	samplingRate := DefaultSamplingRate
	return &Config{
		Name:         DefaultName,
		Host:         DefaultHost,
		Port:         DefaultPort,
		EndpointPath: DefaultEndpointPath,
		Spec: SpecConfig{
			FetchTimeout:    Duration(DefaultSpecFetchTimeout),
			MaxBytes:        DefaultSpecMaxBytes,
			Retries:         DefaultSpecRetries,
			CacheMaxEntries: DefaultSpecCacheMaxEntries,
			AllowPrivateIPs: &specAllow,
		},
		Outbound: OutboundConfig{
			Timeout:          Duration(DefaultOutboundTimeout),
			MaxResponseBytes: DefaultOutboundMaxResponseBytes,
			AllowPrivateIPs:  &outboundAllow,
		},
		Telemetry: TelemetryConfig{
			SamplingRate: &samplingRate,
		},
	}
}

// EnsureDefaults fills unset fields from DefaultConfig. Pointer fields are
// only filled when nil, so an explicit allowPrivateIPs: false or
// samplingRate: 0 is kept.
func (c *Config) EnsureDefaults() error {
	if err := mergo.Merge(c, DefaultConfig(), mergo.WithoutDereference); err != nil {
		return fmt.Errorf("failed to apply default configuration: %w", err)
	}
	return nil
}

// PrivateIPsAllowed reports whether spec fetches may reach private addresses.
func (s SpecConfig) PrivateIPsAllowed() bool {
	return s.AllowPrivateIPs == nil || *s.AllowPrivateIPs
}

// PrivateIPsAllowed reports whether outbound calls may reach private addresses.
func (o OutboundConfig) PrivateIPsAllowed() bool {
	return o.AllowPrivateIPs == nil || *o.AllowPrivateIPs
}

// Sampling returns the trace sampling ratio, DefaultSamplingRate when unset.
func (t TelemetryConfig) Sampling() float64 {
	if t.SamplingRate == nil {
		return DefaultSamplingRate
	}
	return *t.SamplingRate
}

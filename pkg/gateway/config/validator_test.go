// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errs   []string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name: "static specs",
			mutate: func(c *Config) {
				c.StaticSpecs = []StaticSpecConfig{
					{Name: "a", URL: "https://a.example.com/openapi.json"},
					{Name: "b", File: "specs/b.yaml", APIURL: "http://localhost:8080"},
				}
			},
		},
		{
			name: "listener errors",
			mutate: func(c *Config) {
				c.Port = 70000
				c.EndpointPath = "mcp"
			},
			errs: []string{"port must be between", "endpointPath must start with"},
		},
		{
			name: "restricted header cannot be injected",
			mutate: func(c *Config) {
				c.Headers.Add = map[string]string{"Host": "evil.example.com"}
			},
			errs: []string{"headers:"},
		},
		{
			name: "cache without capacity",
			mutate: func(c *Config) {
				c.Spec.CacheTTL = Duration(60e9)
				c.Spec.CacheMaxEntries = 0
			},
			errs: []string{"spec.cacheMaxEntries"},
		},
		{
			name: "static spec problems",
			mutate: func(c *Config) {
				c.StaticSpecs = []StaticSpecConfig{
					{Name: "a", URL: "https://a.example.com/openapi.json", File: "a.yaml"},
					{Name: "a", URL: "/relative"},
					{URL: "https://c.example.com", APIURL: "ftp://c.example.com"},
				}
			},
			errs: []string{
				"exactly one of url or file",
				`name "a" is duplicated`,
				"staticSpecs[1].url must be an absolute",
				"staticSpecs[2].name is required",
				"staticSpecs[2].apiUrl must be an absolute",
			},
		},
		{
			name: "telemetry endpoint without signals",
			mutate: func(c *Config) {
				c.Telemetry.Endpoint = "localhost:4318"
				rate := 2.0
				c.Telemetry.SamplingRate = &rate
			},
			errs: []string{"samplingRate", "both tracing and metrics are disabled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			if len(tt.errs) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			for _, want := range tt.errs {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestValidator_NilConfig(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, NewValidator().Validate(nil), ErrInvalidConfig)
}

func TestEnsureDefaultsKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	deny := false
	cfg := &Config{Port: 8080, Outbound: OutboundConfig{AllowPrivateIPs: &deny}}
	require.NoError(t, cfg.EnsureDefaults())

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.False(t, cfg.Outbound.PrivateIPsAllowed())
	assert.True(t, cfg.Spec.PrivateIPsAllowed())
	assert.InDelta(t, DefaultSamplingRate, cfg.Telemetry.Sampling(), 0)

	noSampling := 0.0
	cfg = &Config{
		Spec:      SpecConfig{AllowPrivateIPs: &deny},
		Telemetry: TelemetryConfig{SamplingRate: &noSampling},
	}
	require.NoError(t, cfg.EnsureDefaults())
	assert.False(t, cfg.Spec.PrivateIPsAllowed())
	assert.True(t, cfg.Outbound.PrivateIPsAllowed())
	assert.Zero(t, cfg.Telemetry.Sampling())
}

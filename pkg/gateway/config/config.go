// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a wrapper around time.Duration that marshals/unmarshals as a duration string.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the gateway configuration.
type Config struct {
	// Name identifies this gateway in the MCP initialize response and in telemetry.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the listen address.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port is the listen port.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// EndpointPath is where the MCP streamable HTTP endpoint is mounted.
	EndpointPath string `json:"endpointPath,omitempty" yaml:"endpointPath,omitempty"`

	// Stateless disables MCP session tracking.
	Stateless bool `json:"stateless,omitempty" yaml:"stateless,omitempty"`

	// Headers controls which inbound headers reach target APIs.
	Headers HeadersConfig `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Spec configures spec retrieval.
	Spec SpecConfig `json:"spec,omitempty" yaml:"spec,omitempty"`

	// Outbound configures clients that call target APIs.
	Outbound OutboundConfig `json:"outbound,omitempty" yaml:"outbound,omitempty"`

	// StaticSpecs are loaded at startup and served on every call.
	StaticSpecs []StaticSpecConfig `json:"staticSpecs,omitempty" yaml:"staticSpecs,omitempty"`

	// Telemetry configures tracing and metrics export.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// HeadersConfig is the header forwarding policy.
type HeadersConfig struct {
	// ForwardAuthorization forwards the inbound Authorization header.
	ForwardAuthorization bool `json:"forwardAuthorization,omitempty" yaml:"forwardAuthorization,omitempty"`

	// Add sets fixed headers on every outbound request.
	Add map[string]string `json:"add,omitempty" yaml:"add,omitempty"`

	// Drop names inbound headers that are never forwarded.
	Drop []string `json:"drop,omitempty" yaml:"drop,omitempty"`
}

// SpecConfig configures spec retrieval.
type SpecConfig struct {
	FetchTimeout Duration `json:"fetchTimeout,omitempty" yaml:"fetchTimeout,omitempty"`
	MaxBytes     int64    `json:"maxBytes,omitempty" yaml:"maxBytes,omitempty"`
	Retries      int      `json:"retries,omitempty" yaml:"retries,omitempty"`

	// CacheTTL enables the parsed spec cache when positive.
	CacheTTL        Duration `json:"cacheTTL,omitempty" yaml:"cacheTTL,omitempty"`
	CacheMaxEntries int      `json:"cacheMaxEntries,omitempty" yaml:"cacheMaxEntries,omitempty"`

	AllowPrivateIPs *bool `json:"allowPrivateIPs,omitempty" yaml:"allowPrivateIPs,omitempty"`
}

// OutboundConfig configures clients that call target APIs.
type OutboundConfig struct {
	Timeout          Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxResponseBytes int64    `json:"maxResponseBytes,omitempty" yaml:"maxResponseBytes,omitempty"`
	AllowPrivateIPs  *bool    `json:"allowPrivateIPs,omitempty" yaml:"allowPrivateIPs,omitempty"`

	// CABundle is a PEM file trusted in addition to the system roots.
	CABundle string `json:"caBundle,omitempty" yaml:"caBundle,omitempty"`
}

// StaticSpecConfig is a spec loaded once at startup.
type StaticSpecConfig struct {
	Name string `json:"name" yaml:"name"`

	// URL and File are mutually exclusive.
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	APIURL  string            `json:"apiUrl,omitempty" yaml:"apiUrl,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// Endpoint is the OTLP HTTP endpoint, host:port without scheme.
	Endpoint       string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure       bool              `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	TracingEnabled bool              `json:"tracingEnabled,omitempty" yaml:"tracingEnabled,omitempty"`
	MetricsEnabled bool              `json:"metricsEnabled,omitempty" yaml:"metricsEnabled,omitempty"`

	// SamplingRate is the trace sampling ratio. Nil uses DefaultSamplingRate;
	// an explicit 0 samples nothing.
	SamplingRate *float64 `json:"samplingRate,omitempty" yaml:"samplingRate,omitempty"`

	// Prometheus exposes /metrics on the gateway listener.
	Prometheus bool `json:"prometheus,omitempty" yaml:"prometheus,omitempty"`
}

// Address is the host:port the gateway listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

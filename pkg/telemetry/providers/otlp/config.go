// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package otlp builds OTLP HTTP exporters for traces and metrics.
package otlp

// Config is the OTLP exporter configuration.
type Config struct {
	// Endpoint is host:port of the collector, without scheme.
	Endpoint     string
	Headers      map[string]string
	Insecure     bool
	SamplingRate float64
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry-based observability configuration
// including distributed tracing, OTLP metrics export, and Prometheus metrics endpoint.
package telemetry

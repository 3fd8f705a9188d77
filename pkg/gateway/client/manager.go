// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/stacklok/mcpgate/pkg/logger"
)

const instrumentationName = "github.com/stacklok/mcpgate/pkg/gateway/client"

// Manager hands out one OutboundClient per call and guarantees each is
// closed exactly once.
type Manager struct {
	factory Factory

	open     atomic.Int64
	acquired atomic.Int64

	openGauge    metric.Int64UpDownCounter
	createdTotal metric.Int64Counter
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider records client metrics with mp.
func WithMeterProvider(mp metric.MeterProvider) ManagerOption {
	return func(o *managerOptions) {
		o.meterProvider = mp
	}
}

// NewManager returns a Manager creating clients with factory.
func NewManager(factory Factory, opts ...ManagerOption) (*Manager, error) {
	o := &managerOptions{meterProvider: noop.NewMeterProvider()}
	for _, opt := range opts {
		opt(o)
	}
	meter := o.meterProvider.Meter(instrumentationName)

	openGauge, err := meter.Int64UpDownCounter(
		"mcpgate_outbound_clients_open",
		metric.WithDescription("Number of outbound clients currently open"))
	if err != nil {
		return nil, fmt.Errorf("failed to create open clients gauge: %w", err)
	}
	createdTotal, err := meter.Int64Counter(
		"mcpgate_outbound_clients_created",
		metric.WithDescription("Total number of outbound clients created"))
	if err != nil {
		return nil, fmt.Errorf("failed to create clients counter: %w", err)
	}

	return &Manager{
		factory:      factory,
		openGauge:    openGauge,
		createdTotal: createdTotal,
	}, nil
}

// Acquire creates a client for one call. The returned release func closes
// it; release is idempotent, never fails and must be called on every path,
// usually with defer. On error there is nothing to release.
func (m *Manager) Acquire(ctx context.Context, baseURL string, headers http.Header) (OutboundClient, func(), error) {
	c, err := m.factory.New(baseURL, headers)
	if err != nil {
		return nil, nil, err
	}

	attrs := metric.WithAttributes(attribute.String("base_url", c.BaseURL()))
	m.open.Add(1)
	m.acquired.Add(1)
	m.openGauge.Add(ctx, 1, attrs)
	m.createdTotal.Add(ctx, 1, attrs)

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := c.Close(); err != nil {
				logger.Warnw("failed to close outbound client", "base_url", c.BaseURL(), "error", err)
			}
			m.open.Add(-1)
			// the call context may already be cancelled here
			m.openGauge.Add(context.WithoutCancel(ctx), -1, attrs)
		})
	}
	return c, release, nil
}

// WithClient runs fn with a client that is released when WithClient
// returns, whether fn returns normally, fails or panics. A panic is
// propagated after the release.
func (m *Manager) WithClient(
	ctx context.Context,
	baseURL string,
	headers http.Header,
	fn func(OutboundClient) error,
) error {
	c, release, err := m.Acquire(ctx, baseURL, headers)
	if err != nil {
		return err
	}
	defer release()
	return fn(c)
}

// Open is the number of clients acquired and not yet released.
func (m *Manager) Open() int64 {
	return m.open.Load()
}

// Acquired is the number of clients created since start.
func (m *Manager) Acquired() int64 {
	return m.acquired.Load()
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/stacklok/mcpgate/pkg/gateway/client"
)

// CountingClient counts Close calls on the client it wraps.
type CountingClient struct {
	client.OutboundClient
	closes atomic.Int32
}

// Close counts and forwards.
func (c *CountingClient) Close() error {
	c.closes.Add(1)
	return c.OutboundClient.Close()
}

// Closes is the number of Close calls so far.
func (c *CountingClient) Closes() int {
	return int(c.closes.Load())
}

// CountingFactory wraps every client it creates in a CountingClient.
type CountingFactory struct {
	Next client.Factory

	mu      sync.Mutex
	clients []*CountingClient
}

// NewCountingFactory wraps next. A nil next uses client.NewFactory().
func NewCountingFactory(next client.Factory) *CountingFactory {
	if next == nil {
		next = client.NewFactory()
	}
	return &CountingFactory{Next: next}
}

// New implements client.Factory.
func (f *CountingFactory) New(baseURL string, headers http.Header) (client.OutboundClient, error) {
	c, err := f.Next.New(baseURL, headers)
	if err != nil {
		return nil, err
	}
	counted := &CountingClient{OutboundClient: c}
	f.mu.Lock()
	f.clients = append(f.clients, counted)
	f.mu.Unlock()
	return counted, nil
}

// Clients returns every client created so far, in creation order.
func (f *CountingFactory) Clients() []*CountingClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*CountingClient, len(f.clients))
	copy(out, f.clients)
	return out
}

// CloseCounts returns the Close count of each created client.
func (f *CountingFactory) CloseCounts() []int {
	clients := f.Clients()
	out := make([]int, len(clients))
	for i, c := range clients {
		out[i] = c.Closes()
	}
	return out
}

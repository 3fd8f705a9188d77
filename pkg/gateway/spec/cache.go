// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package spec

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stacklok/mcpgate/pkg/gateway"
)

// DefaultCacheMaxEntries is the cache capacity when none is configured.
const DefaultCacheMaxEntries = 128

type cacheEntry struct {
	spec      *gateway.ApiSpec
	expiresAt time.Time
	storedAt  time.Time
}

// CachingResolver memoizes successful resolutions for a fixed TTL.
//
// Cached *ApiSpec values are shared between calls and never mutated. Failures
// are not cached. Concurrent misses for one key share a single resolution.
type CachingResolver struct {
	next       Resolver
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]*cacheEntry

	// singleFlight ensures only one resolution runs per key at a time
	singleFlight singleflight.Group
}

// NewCachingResolver wraps next with a TTL cache. With ttl <= 0 it returns
// next unchanged, so caching stays off unless configured.
func NewCachingResolver(next Resolver, ttl time.Duration, maxEntries int) Resolver {
	if ttl <= 0 {
		return next
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &CachingResolver{
		next:       next,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		cache:      make(map[string]*cacheEntry),
	}
}

// Resolve implements Resolver.
func (c *CachingResolver) Resolve(ctx context.Context, ref Reference) (*gateway.ApiSpec, error) {
	key := ref.Key()

	if spec := c.get(key); spec != nil {
		slog.Debug("spec cache hit", "source", ref.Source())
		return spec, nil
	}

	// The shared resolution must not die with the first caller's context.
	sharedCtx := context.WithoutCancel(ctx)
	ch := c.singleFlight.DoChan(key, func() (any, error) {
		// Double-check after winning the flight
		if spec := c.get(key); spec != nil {
			return spec, nil
		}
		spec, err := c.next.Resolve(sharedCtx, ref)
		if err != nil {
			return nil, err
		}
		c.put(key, spec)
		return spec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gateway.ApiSpec), nil
	}
}

// Len returns the number of live entries.
func (c *CachingResolver) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *CachingResolver) get(key string) *gateway.ApiSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.cache[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil
	}
	return entry.spec
}

func (c *CachingResolver) put(key string, spec *gateway.ApiSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.cache {
		if now.After(e.expiresAt) {
			delete(c.cache, k)
		}
	}

	if _, exists := c.cache[key]; !exists && len(c.cache) >= c.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.cache {
			if oldestKey == "" || e.storedAt.Before(oldest) {
				oldestKey, oldest = k, e.storedAt
			}
		}
		delete(c.cache, oldestKey)
		slog.Debug("spec cache full, evicted oldest entry", "capacity", c.maxEntries)
	}

	c.cache[key] = &cacheEntry{spec: spec, expiresAt: now.Add(c.ttl), storedAt: now}
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package callctx_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/gateway/callctx"
	"github.com/stacklok/mcpgate/pkg/gateway/client"
	"github.com/stacklok/mcpgate/pkg/gateway/provider"
)

type staticConverter []gateway.ToolDescriptor

func (s staticConverter) Convert(*gateway.ApiSpec) ([]gateway.ToolDescriptor, error) { return s, nil }

func newProvider(t *testing.T, names ...string) *provider.Provider {
	t.Helper()
	descs := make([]gateway.ToolDescriptor, len(names))
	for i, n := range names {
		descs[i] = gateway.ToolDescriptor{Name: n, Method: http.MethodGet, InputSchema: map[string]any{"type": "object"}}
	}
	c, err := client.NewFactory().New("http://api.local", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	p, err := provider.NewBuilder(staticConverter(descs)).Build(context.Background(), &gateway.ApiSpec{}, c, nil)
	require.NoError(t, err)
	return p
}

func TestProviderFromContextUnset(t *testing.T) {
	t.Parallel()

	p, ok := callctx.ProviderFromContext(context.Background())
	assert.False(t, ok)
	assert.Nil(t, p)

	ctx := callctx.WithProvider(context.Background(), nil)
	_, ok = callctx.ProviderFromContext(ctx)
	assert.False(t, ok)
}

func TestWithProviderIsWriteOnce(t *testing.T) {
	t.Parallel()

	first := newProvider(t, "a")
	second := newProvider(t, "b")

	ctx := callctx.WithProvider(context.Background(), first)
	ctx = callctx.WithProvider(ctx, second)

	got, ok := callctx.ProviderFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestProviderDoesNotLeakToParentOrSiblings(t *testing.T) {
	t.Parallel()

	root := callctx.WithCallID(context.Background())
	const calls = 32

	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := newProvider(t, fmt.Sprintf("tool_%d", i))
			ctx := callctx.WithProvider(root, p)

			got, ok := callctx.ProviderFromContext(ctx)
			assert.True(t, ok)
			assert.Equal(t, []string{fmt.Sprintf("tool_%d", i)}, got.Names())
		}()
	}
	wg.Wait()

	_, ok := callctx.ProviderFromContext(root)
	assert.False(t, ok)
}

func TestCallID(t *testing.T) {
	t.Parallel()

	assert.Empty(t, callctx.CallIDFromContext(context.Background()))

	ctx := callctx.WithCallID(context.Background())
	id := callctx.CallIDFromContext(ctx)
	assert.Len(t, id, 36)
	assert.Equal(t, id, callctx.CallIDFromContext(callctx.WithCallID(ctx)), "existing ID is kept")
	assert.NotEqual(t, id, callctx.CallIDFromContext(callctx.WithCallID(context.Background())))
}

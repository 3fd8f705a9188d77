// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	"github.com/stacklok/toolhive-core/httperr"
)

func TestKindAndRPCCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantKind string
		wantCode int
		wantHTTP int
	}{
		{
			name:     "spec fetch",
			err:      fmt.Errorf("%w: dial tcp: connection refused", ErrSpecFetch),
			wantKind: KindSpecFetch,
			wantCode: RPCCodeSpecFetch,
			wantHTTP: http.StatusBadGateway,
		},
		{
			name:     "spec parse",
			err:      fmt.Errorf("%w: unexpected end of JSON input", ErrSpecParse),
			wantKind: KindSpecParse,
			wantCode: RPCCodeSpecParse,
			wantHTTP: http.StatusUnprocessableEntity,
		},
		{
			name:     "provider build",
			err:      fmt.Errorf("%w: duplicate tool name", ErrProviderBuild),
			wantKind: KindProviderBuild,
			wantCode: RPCCodeProviderBuild,
			wantHTTP: http.StatusUnprocessableEntity,
		},
		{
			name:     "tool not found",
			err:      fmt.Errorf("%w: echo", ErrToolNotFound),
			wantKind: KindToolNotFound,
			wantCode: mcp.INVALID_PARAMS,
			wantHTTP: http.StatusNotFound,
		},
		{
			name:     "tool invocation",
			err:      &ToolInvocationError{Tool: "echo", Status: http.StatusTeapot, Body: "short and stout"},
			wantKind: KindToolInvocation,
			wantCode: mcp.INTERNAL_ERROR,
			wantHTTP: http.StatusBadGateway,
		},
		{
			name:     "cancelled",
			err:      fmt.Errorf("building provider: %w", context.Canceled),
			wantKind: KindCancelled,
			wantCode: RPCCodeCancelled,
		},
		{
			name:     "unknown",
			err:      errors.New("boom"),
			wantKind: KindInternal,
			wantCode: mcp.INTERNAL_ERROR,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantKind, Kind(tt.err))
			assert.Equal(t, tt.wantCode, RPCCode(tt.err))
			if tt.wantHTTP != 0 {
				assert.Equal(t, tt.wantHTTP, httperr.Code(tt.err))
			}
		})
	}
}

func TestKindNil(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Kind(nil))
}

func TestToolInvocationError(t *testing.T) {
	t.Parallel()

	t.Run("with status and body", func(t *testing.T) {
		t.Parallel()
		err := &ToolInvocationError{Tool: "double", Status: http.StatusBadRequest, Body: `{"detail":"n must be int"}`}
		assert.ErrorIs(t, err, ErrToolInvocation)
		assert.Contains(t, err.Error(), "HTTP 400")
		assert.Contains(t, err.Error(), "n must be int")
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("connection reset by peer")
		err := fmt.Errorf("calling upstream: %w", &ToolInvocationError{Tool: "echo", Err: cause})
		assert.ErrorIs(t, err, ErrToolInvocation)
		assert.ErrorIs(t, err, cause)

		var invErr *ToolInvocationError
		assert.ErrorAs(t, err, &invErr)
		assert.Zero(t, invErr.Status)
		assert.Contains(t, err.Error(), "upstream request failed")
	})
}

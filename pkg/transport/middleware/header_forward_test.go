// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T, headers map[string]string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestForwardedHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		forwardAuth bool
		add         map[string]string
		drop        []string
		inbound     map[string]string
		expected    map[string]string
		absent      []string
	}{
		{
			name:     "arbitrary headers forwarded",
			inbound:  map[string]string{"x-trace-id": "abc", "X-Custom-Tenant": "t1"},
			expected: map[string]string{"X-Trace-Id": "abc", "X-Custom-Tenant": "t1"},
		},
		{
			name: "transport and control headers stripped",
			inbound: map[string]string{
				"Mcp-Session-Id":       "s1",
				"Mcp-Protocol-Version": "2025-06-18",
				"Content-Type":         "application/json",
				"Accept":               "text/event-stream",
				"X-Openapi-Url":        "http://spec",
				"X-Api-Url":            "http://api",
				"X-Trace-Id":           "abc",
			},
			expected: map[string]string{"X-Trace-Id": "abc"},
			absent:   []string{"Mcp-Session-Id", "Mcp-Protocol-Version", "Content-Type", "Accept", "X-Openapi-Url", "X-Api-Url"},
		},
		{
			name:    "restricted headers stripped",
			inbound: map[string]string{"X-Forwarded-For": "1.2.3.4", "Connection": "close", "Proxy-Authorization": "secret"},
			absent:  []string{"X-Forwarded-For", "Connection", "Proxy-Authorization"},
		},
		{
			name:    "authorization dropped by default",
			inbound: map[string]string{"Authorization": "Bearer t"},
			absent:  []string{"Authorization"},
		},
		{
			name:        "authorization forwarded when enabled",
			forwardAuth: true,
			inbound:     map[string]string{"Authorization": "Bearer t"},
			expected:    map[string]string{"Authorization": "Bearer t"},
		},
		{
			name:     "x-cookies becomes cookie",
			inbound:  map[string]string{"X-Cookies": "session=1"},
			expected: map[string]string{"Cookie": "session=1"},
			absent:   []string{"X-Cookies"},
		},
		{
			name:     "x-cookies merged with cookie",
			inbound:  map[string]string{"Cookie": "a=1", "X-Cookies": "b=2"},
			expected: map[string]string{"Cookie": "a=1; b=2"},
		},
		{
			name:     "drop list honoured case-insensitively",
			drop:     []string{"x-internal"},
			inbound:  map[string]string{"X-Internal": "yes", "X-Trace-Id": "abc"},
			expected: map[string]string{"X-Trace-Id": "abc"},
			absent:   []string{"X-Internal"},
		},
		{
			name:     "added headers override inbound",
			add:      map[string]string{"x-api-key": "fixed"},
			inbound:  map[string]string{"X-Api-Key": "caller"},
			expected: map[string]string{"X-Api-Key": "fixed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			policy, err := NewPolicy(tt.forwardAuth, tt.add, tt.drop)
			require.NoError(t, err)

			out := ForwardedHeaders(newRequest(t, tt.inbound), policy)

			for k, v := range tt.expected {
				assert.Equal(t, v, out.Get(k), "header %s", k)
			}
			for _, k := range tt.absent {
				assert.Empty(t, out.Values(k), "header %s must not be forwarded", k)
			}
		})
	}
}

func TestForwardedHeadersIsACopy(t *testing.T) {
	t.Parallel()

	req := newRequest(t, map[string]string{"X-Trace-Id": "abc"})
	out := ForwardedHeaders(req, nil)
	out.Set("X-Trace-Id", "changed")
	out.Add("X-New", "1")

	assert.Equal(t, "abc", req.Header.Get("X-Trace-Id"))
	assert.Empty(t, req.Header.Get("X-New"))
}

func TestNewPolicyRejectsRestrictedHeaders(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"host", "Transfer-Encoding", "x-forwarded-for", "Mcp-Session-Id", "x-openapi-url"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPolicy(false, map[string]string{name: "v"}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "restricted")
		})
	}
}

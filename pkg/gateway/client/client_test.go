// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/gateway/client"
)

func TestHTTPFactoryNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
		want    string
		wantErr bool
	}{
		{name: "http", baseURL: "http://api.local/v1/", want: "http://api.local/v1"},
		{name: "https", baseURL: "https://api.local", want: "https://api.local"},
		{name: "relative", baseURL: "/v1", wantErr: true},
		{name: "other scheme", baseURL: "ftp://api.local", wantErr: true},
		{name: "garbage", baseURL: "://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := client.NewFactory().New(tt.baseURL, nil)
			if tt.wantErr {
				require.ErrorIs(t, err, gateway.ErrProviderBuild)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = c.Close() })
			assert.Equal(t, tt.want, c.BaseURL())
		})
	}
}

func TestHTTPClientForwardsHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "upstream"})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	headers := http.Header{}
	headers.Set("X-Trace-Id", "abc")
	headers.Set("Cookie", "a=1")

	c, err := client.NewFactory().New(srv.URL, headers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	// the client holds its own copy
	headers.Set("X-Trace-Id", "changed")
	assert.Equal(t, "abc", c.Headers().Get("X-Trace-Id"))
	c.Headers().Set("X-Trace-Id", "changed")
	assert.Equal(t, "abc", c.Headers().Get("X-Trace-Id"))

	for range 2 {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, c.BaseURL()+"/x", nil)
		require.NoError(t, err)
		resp, err := c.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()

		assert.Equal(t, "abc", got.Get("X-Trace-Id"))
		assert.Equal(t, "a=1", got.Get("Cookie"), "Set-Cookie must not be replayed")
	}
}

func TestHTTPClientClose(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c, err := client.NewFactory().New(srv.URL, nil)
	require.NoError(t, err)
	assert.False(t, c.Closed())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = c.Do(req)
	require.ErrorIs(t, err, gateway.ErrClientClosed)
}

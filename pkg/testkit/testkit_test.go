// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIServerServesSpec(t *testing.T) {
	t.Parallel()

	srv, err := NewEchoAPI()
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get(srv.SpecURL())
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), `"url": "`+srv.URL+`"`)
	assert.NotContains(t, string(body), ServerURLPlaceholder)
	assert.Equal(t, 1, srv.SpecFetches())
	assert.Empty(t, srv.Requests())
}

func TestAPIServerRecordsRequests(t *testing.T) {
	t.Parallel()

	srv, err := NewDoubleAPI()
	require.NoError(t, err)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/double/21", nil)
	require.NoError(t, err)
	req.Header.Set("X-Trace-Id", "abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, "42", strings.TrimSpace(string(body)))
	requests := srv.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/double/21", requests[0].Path)
	assert.Equal(t, "abc", requests[0].Header.Get("X-Trace-Id"))
}

func TestAPIServerEcho(t *testing.T) {
	t.Parallel()

	srv, err := NewEchoAPI()
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/echo", "application/json", strings.NewReader(`{"msg":"hi"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `"hi"`, strings.TrimSpace(string(body)))
	require.Len(t, srv.Requests(), 1)
	assert.JSONEq(t, `{"msg":"hi"}`, string(srv.Requests()[0].Body))
}

func TestWithSpecTwice(t *testing.T) {
	t.Parallel()

	_, err := NewAPIServer(WithSpec(EchoSpec), WithSpec(DoubleSpec))
	require.Error(t, err)
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/gateway/client"
	"github.com/stacklok/mcpgate/pkg/gateway/conversion"
	"github.com/stacklok/mcpgate/pkg/gateway/provider"
	"github.com/stacklok/mcpgate/pkg/gateway/spec"
	"github.com/stacklok/mcpgate/pkg/testkit"
)

type converterFunc func(*gateway.ApiSpec) ([]gateway.ToolDescriptor, error)

func (f converterFunc) Convert(s *gateway.ApiSpec) ([]gateway.ToolDescriptor, error) { return f(s) }

const itemsSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Items", "version": "1"},
  "servers": [{"url": "{{SERVER_URL}}"}],
  "paths": {
    "/items": {
      "get": {
        "operationId": "listItems",
        "parameters": [
          {"name": "tag", "in": "query", "schema": {"type": "array", "items": {"type": "string"}}},
          {"name": "ids", "in": "query", "explode": false, "schema": {"type": "array", "items": {"type": "integer"}}},
          {"name": "session", "in": "cookie", "schema": {"type": "string"}},
          {"name": "X-Tenant", "in": "header", "schema": {"type": "string"}}
        ],
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/items/form": {
      "post": {
        "operationId": "submitForm",
        "requestBody": {
          "required": true,
          "content": {"application/x-www-form-urlencoded": {"schema": {
            "type": "object",
            "properties": {"a": {"type": "string"}, "b": {"type": "integer"}}
          }}}
        },
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/fail/{code}": {
      "get": {
        "operationId": "fail",
        "parameters": [{"name": "code", "in": "path", "required": true, "schema": {"type": "integer"}}],
        "responses": {"200": {"description": "ok"}}
      }
    }
  }
}`

func newItemsAPI(t *testing.T) *testkit.APIServer {
	t.Helper()
	api, err := testkit.NewAPIServer(
		testkit.WithSpec(itemsSpec),
		testkit.WithRoute(http.MethodGet, "/items", func(w http.ResponseWriter, _ *http.Request) {
			testkit.WriteJSON(w, http.StatusOK, map[string]any{"items": []string{"a"}})
		}),
		testkit.WithRoute(http.MethodPost, "/items/form", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("accepted"))
		}),
		testkit.WithRoute(http.MethodGet, "/fail/{code}", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusTeapot)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(api.Close)
	return api
}

// build resolves the API's document and binds it to a fresh client.
func build(t *testing.T, api *testkit.APIServer, headers http.Header) *provider.Provider {
	t.Helper()
	ctx := context.Background()

	resolved, err := spec.NewResolver(api.Client()).Resolve(ctx, spec.Reference{URL: api.SpecURL()})
	require.NoError(t, err)

	c, err := client.NewFactory().New(resolved.ServerURL, headers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	p, err := provider.NewBuilder(conversion.NewConverter()).Build(ctx, resolved, c, headers)
	require.NoError(t, err)
	return p
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestProviderEcho(t *testing.T) {
	t.Parallel()

	api, err := testkit.NewEchoAPI()
	require.NoError(t, err)
	t.Cleanup(api.Close)

	headers := http.Header{"X-Trace-Id": []string{"abc"}}
	p := build(t, api, headers)

	assert.Equal(t, []string{"echo"}, p.Names())
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, api.SpecURL(), p.Source())

	echo, ok := p.Tool("echo")
	require.True(t, ok)
	_, ok = p.Tool("double")
	assert.False(t, ok)

	res, err := echo.Invoke(context.Background(), map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "hi", resultText(t, res))

	reqs := api.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "abc", reqs[0].Header.Get("X-Trace-Id"))
	assert.JSONEq(t, `{"msg":"hi"}`, string(reqs[0].Body))
	assert.Equal(t, conversion.ContentTypeJSON, reqs[0].Header.Get("Content-Type"))
}

func TestProviderDoubleCoercesArguments(t *testing.T) {
	t.Parallel()

	api, err := testkit.NewDoubleAPI()
	require.NoError(t, err)
	t.Cleanup(api.Close)

	p := build(t, api, nil)
	double, ok := p.Tool("double")
	require.True(t, ok)

	for _, n := range []any{21, "21", float64(21)} {
		res, err := double.Invoke(context.Background(), map[string]any{"n": n})
		require.NoError(t, err)
		require.False(t, res.IsError, resultText(t, res))
		assert.Equal(t, "42", resultText(t, res))
		assert.Equal(t, map[string]any{"result": float64(42)}, res.StructuredContent)
	}
	for _, r := range api.Requests() {
		assert.Equal(t, "/double/21", r.Path)
	}
}

func TestProviderInvalidArguments(t *testing.T) {
	t.Parallel()

	api, err := testkit.NewEchoAPI()
	require.NoError(t, err)
	t.Cleanup(api.Close)

	p := build(t, api, nil)
	echo, _ := p.Tool("echo")

	res, err := echo.Invoke(context.Background(), map[string]any{"msg": 12})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, gateway.KindInvalidArguments, res.StructuredContent.(map[string]any)["kind"])

	res, err = echo.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	assert.Empty(t, api.Requests(), "invalid calls never reach upstream")
}

func TestProviderRequestEncoding(t *testing.T) {
	t.Parallel()

	api := newItemsAPI(t)
	p := build(t, api, http.Header{"Cookie": []string{"sid=1"}})

	list, ok := p.Tool("listItems")
	require.True(t, ok)
	res, err := list.Invoke(context.Background(), map[string]any{
		"tag":      []any{"x", "y"},
		"ids":      []any{1, 2},
		"session":  "s1",
		"X-Tenant": "acme",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"items": []any{"a"}}, res.StructuredContent)

	form, ok := p.Tool("submitForm")
	require.True(t, ok)
	res, err = form.Invoke(context.Background(), map[string]any{"a": "x y", "b": "3"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", resultText(t, res))

	reqs := api.Requests()
	require.Len(t, reqs, 2)

	assert.Equal(t, "ids=1%2C2&tag=x&tag=y", reqs[0].Query)
	assert.Equal(t, "sid=1; session=s1", reqs[0].Header.Get("Cookie"))
	assert.Equal(t, "acme", reqs[0].Header.Get("X-Tenant"))

	assert.Equal(t, conversion.ContentTypeForm, reqs[1].Header.Get("Content-Type"))
	assert.Equal(t, "a=x+y&b=3", string(reqs[1].Body))
}

func TestProviderForwardedHeaderWinsOverHeaderParameter(t *testing.T) {
	t.Parallel()

	api := newItemsAPI(t)
	p := build(t, api, http.Header{"X-Tenant": []string{"from-caller"}})

	list, ok := p.Tool("listItems")
	require.True(t, ok)
	_, err := list.Invoke(context.Background(), map[string]any{"X-Tenant": "from-argument"})
	require.NoError(t, err)

	reqs := api.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"from-caller"}, reqs[0].Header.Values("X-Tenant"))
}

func TestProviderUpstreamFailure(t *testing.T) {
	t.Parallel()

	api := newItemsAPI(t)
	p := build(t, api, nil)
	fail, _ := p.Tool("fail")

	res, err := fail.Invoke(context.Background(), map[string]any{"code": 418})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	structured := res.StructuredContent.(map[string]any)
	assert.Equal(t, gateway.KindToolInvocation, structured["kind"])
	assert.Equal(t, http.StatusTeapot, structured["status"])
	assert.Contains(t, structured["body"], "nope")
	assert.Contains(t, resultText(t, res), "418")

	// upstream gone: status 0
	api.Close()
	res, err = fail.Invoke(context.Background(), map[string]any{"code": 1})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, 0, res.StructuredContent.(map[string]any)["status"])
}

func TestProviderClosedClient(t *testing.T) {
	t.Parallel()

	api, err := testkit.NewEchoAPI()
	require.NoError(t, err)
	t.Cleanup(api.Close)

	p := build(t, api, nil)
	require.NoError(t, p.Client().Close())

	echo, _ := p.Tool("echo")
	_, err = echo.Invoke(context.Background(), map[string]any{"msg": "hi"})
	require.ErrorIs(t, err, gateway.ErrClientClosed)
}

func TestBuilderErrors(t *testing.T) {
	t.Parallel()

	desc := gateway.ToolDescriptor{
		Name:        "dup",
		Method:      http.MethodGet,
		InputSchema: map[string]any{"type": "object"},
	}
	tests := []struct {
		name      string
		converter converterFunc
	}{
		{
			name: "converter error",
			converter: func(*gateway.ApiSpec) ([]gateway.ToolDescriptor, error) {
				return nil, errors.New("unsupported")
			},
		},
		{
			name: "duplicate names",
			converter: func(*gateway.ApiSpec) ([]gateway.ToolDescriptor, error) {
				return []gateway.ToolDescriptor{desc, desc}, nil
			},
		},
		{
			name: "invalid schema",
			converter: func(*gateway.ApiSpec) ([]gateway.ToolDescriptor, error) {
				bad := desc
				bad.InputSchema = map[string]any{"type": 12}
				return []gateway.ToolDescriptor{bad}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := client.NewFactory().New("http://api.local", nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = c.Close() })

			_, err = provider.NewBuilder(tt.converter).Build(context.Background(), &gateway.ApiSpec{}, c, nil)
			require.ErrorIs(t, err, gateway.ErrProviderBuild)
			assert.False(t, c.Closed(), "Build never closes the client it was given")
		})
	}
}

func TestToolMCPTool(t *testing.T) {
	t.Parallel()

	tool := provider.Tool{Descriptor: gateway.ToolDescriptor{
		Name:        "getThing",
		Description: "Get a thing",
		Method:      http.MethodGet,
		ReadOnly:    true,
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}}
	mt := tool.MCPTool()
	assert.Equal(t, "getThing", mt.Name)
	assert.True(t, *mt.Annotations.ReadOnlyHint)
	assert.False(t, *mt.Annotations.DestructiveHint)
	assert.True(t, strings.HasPrefix(string(mt.RawInputSchema), `{`))
}

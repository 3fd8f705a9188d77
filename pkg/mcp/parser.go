// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mcp parses inbound MCP JSON-RPC requests once per HTTP request and
// makes the result available to downstream middleware through the context.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"golang.org/x/exp/jsonrpc2"
)

// MCP methods the gateway intercepts.
const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
)

type contextKey struct{}

// ParsedMCPRequest contains the parsed MCP request information.
type ParsedMCPRequest struct {
	// Method is the MCP method name (e.g., "tools/call")
	Method string
	// ID is the JSON-RPC request ID, int64 or string
	ID any
	// Params contains the raw JSON parameters
	Params json.RawMessage
	// ResourceID is the tool name for tools/call, the cursor for list methods
	ResourceID string
	// Arguments contains the tools/call arguments
	Arguments map[string]any
	// Meta is the params._meta object, if any
	Meta map[string]any
	// IsRequest is false for notifications
	IsRequest bool
	// IsBatch indicates the body was a JSON-RPC batch; nothing else is set
	IsBatch bool
}

// ParsingMiddleware returns middleware that parses JSON-RPC POST bodies sent to
// endpointPath and stores the result in the request context. The body is
// restored for downstream handlers.
func ParsingMiddleware(endpointPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !shouldParseMCPRequest(r, endpointPath) {
				next.ServeHTTP(w, r)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				// let the MCP handler report the broken body
				next.ServeHTTP(w, r)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			if parsed := parseMCPRequest(bodyBytes); parsed != nil {
				r = r.WithContext(WithParsedMCPRequest(r.Context(), parsed))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithParsedMCPRequest returns a copy of ctx carrying parsed.
func WithParsedMCPRequest(ctx context.Context, parsed *ParsedMCPRequest) context.Context {
	return context.WithValue(ctx, contextKey{}, parsed)
}

// GetParsedMCPRequest retrieves the parsed MCP request from the request context.
// Returns nil if no parsed request is available.
func GetParsedMCPRequest(ctx context.Context) *ParsedMCPRequest {
	if parsed, ok := ctx.Value(contextKey{}).(*ParsedMCPRequest); ok {
		return parsed
	}
	return nil
}

// GetMCPMethod is a convenience function to get the MCP method from the context.
func GetMCPMethod(ctx context.Context) string {
	if parsed := GetParsedMCPRequest(ctx); parsed != nil {
		return parsed.Method
	}
	return ""
}

func shouldParseMCPRequest(r *http.Request, endpointPath string) bool {
	if r.Method != http.MethodPost {
		return false
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return false
	}
	return endpointPath == "" || strings.TrimSuffix(r.URL.Path, "/") == strings.TrimSuffix(endpointPath, "/")
}

func parseMCPRequest(bodyBytes []byte) *ParsedMCPRequest {
	trimmed := bytes.TrimSpace(bodyBytes)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '[' {
		return &ParsedMCPRequest{IsBatch: true}
	}

	msg, err := jsonrpc2.DecodeMessage(trimmed)
	if err != nil {
		return nil
	}

	req, ok := msg.(*jsonrpc2.Request)
	if !ok {
		return nil
	}

	parsed := &ParsedMCPRequest{
		Method:    req.Method,
		ID:        req.ID.Raw(),
		Params:    req.Params,
		IsRequest: req.IsCall(),
	}

	var params map[string]any
	if len(req.Params) > 0 && json.Unmarshal(req.Params, &params) == nil {
		parsed.ResourceID, parsed.Arguments = extractResourceAndArguments(req.Method, params)
		if meta, ok := params["_meta"].(map[string]any); ok {
			parsed.Meta = meta
		}
	}

	return parsed
}

func extractResourceAndArguments(method string, params map[string]any) (string, map[string]any) {
	switch method {
	case MethodToolsCall, "prompts/get":
		name, _ := params["name"].(string)
		args, _ := params["arguments"].(map[string]any)
		return name, args
	case MethodToolsList, "prompts/list", "resources/list":
		cursor, _ := params["cursor"].(string)
		return cursor, nil
	case "resources/read":
		uri, _ := params["uri"].(string)
		return uri, nil
	case "initialize":
		if clientInfo, ok := params["clientInfo"].(map[string]any); ok {
			name, _ := clientInfo["name"].(string)
			return name, params
		}
		return "", params
	}
	return "", nil
}

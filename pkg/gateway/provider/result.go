// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/networking"
)

func successResult(contentType string, body []byte) *mcp.CallToolResult {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return mcp.NewToolResultText("")
	}
	if !looksLikeJSON(contentType, trimmed) {
		return mcp.NewToolResultText(string(body))
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return mcp.NewToolResultText(string(body))
	}
	switch x := v.(type) {
	case map[string]any:
		return mcp.NewToolResultStructured(x, string(trimmed))
	case string:
		return mcp.NewToolResultText(x)
	default:
		return mcp.NewToolResultStructured(map[string]any{"result": x}, string(trimmed))
	}
}

func looksLikeJSON(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
			return true
		}
	}
	return json.Valid(body)
}

// errorResult reports a failed call as a tool result so the client sees the
// upstream answer instead of a protocol error.
func errorResult(err error) *mcp.CallToolResult {
	structured := map[string]any{
		"kind":    gateway.Kind(err),
		"message": err.Error(),
	}
	var invErr *gateway.ToolInvocationError
	if errors.As(err, &invErr) {
		structured["status"] = invErr.Status
		structured["body"] = invErr.Body
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(err.Error())},
		StructuredContent: structured,
		IsError:           true,
	}
}

func previewBody(body []byte) string {
	if len(body) > networking.DefaultErrorPreviewSize {
		return string(body[:networking.DefaultErrorPreviewSize])
	}
	return string(body)
}

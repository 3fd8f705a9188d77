// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"maps"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/mcpgate/pkg/gateway/callctx"
	"github.com/stacklok/mcpgate/pkg/gateway/provider"
)

// SessionContextFunc returns an mcp-go HTTPContextFunc that, for requests
// carrying a provider, replaces the client session with a view adding the
// provider's tools. The view is never registered with the server and dies
// with the request.
func SessionContextFunc(srv *server.MCPServer) server.HTTPContextFunc {
	return func(ctx context.Context, _ *http.Request) context.Context {
		p, ok := callctx.ProviderFromContext(ctx)
		if !ok {
			return ctx
		}
		inner := server.ClientSessionFromContext(ctx)
		if inner == nil {
			return ctx
		}
		return srv.WithContext(ctx, newSessionView(inner, p))
	}
}

// sessionView overlays provider tools on a real session. Everything except
// tool lookup is delegated.
type sessionView struct {
	server.ClientSession
	tools map[string]server.ServerTool
}

func newSessionView(inner server.ClientSession, p *provider.Provider) *sessionView {
	tools := make(map[string]server.ServerTool, p.Len())
	for _, t := range p.Tools() {
		tools[t.Descriptor.Name] = t.ServerTool()
	}
	return &sessionView{ClientSession: inner, tools: tools}
}

var (
	_ server.SessionWithTools                = (*sessionView)(nil)
	_ server.SessionWithLogging              = (*sessionView)(nil)
	_ server.SessionWithClientInfo           = (*sessionView)(nil)
	_ server.SessionWithStreamableHTTPConfig = (*sessionView)(nil)
)

// GetSessionTools returns the inner session's tools with provider tools on top.
func (v *sessionView) GetSessionTools() map[string]server.ServerTool {
	out := make(map[string]server.ServerTool, len(v.tools))
	if inner, ok := v.ClientSession.(server.SessionWithTools); ok {
		maps.Copy(out, inner.GetSessionTools())
	}
	maps.Copy(out, v.tools)
	return out
}

// SetSessionTools writes through to the inner session; provider tools are
// never persisted.
func (v *sessionView) SetSessionTools(tools map[string]server.ServerTool) {
	if inner, ok := v.ClientSession.(server.SessionWithTools); ok {
		kept := make(map[string]server.ServerTool, len(tools))
		for name, tool := range tools {
			if _, dynamic := v.tools[name]; !dynamic {
				kept[name] = tool
			}
		}
		inner.SetSessionTools(kept)
	}
}

func (v *sessionView) SetLogLevel(level mcp.LoggingLevel) {
	if inner, ok := v.ClientSession.(server.SessionWithLogging); ok {
		inner.SetLogLevel(level)
	}
}

func (v *sessionView) GetLogLevel() mcp.LoggingLevel {
	if inner, ok := v.ClientSession.(server.SessionWithLogging); ok {
		return inner.GetLogLevel()
	}
	return mcp.LoggingLevelError
}

func (v *sessionView) GetClientInfo() mcp.Implementation {
	if inner, ok := v.ClientSession.(server.SessionWithClientInfo); ok {
		return inner.GetClientInfo()
	}
	return mcp.Implementation{}
}

func (v *sessionView) SetClientInfo(info mcp.Implementation) {
	if inner, ok := v.ClientSession.(server.SessionWithClientInfo); ok {
		inner.SetClientInfo(info)
	}
}

func (v *sessionView) GetClientCapabilities() mcp.ClientCapabilities {
	if inner, ok := v.ClientSession.(server.SessionWithClientInfo); ok {
		return inner.GetClientCapabilities()
	}
	return mcp.ClientCapabilities{}
}

func (v *sessionView) SetClientCapabilities(caps mcp.ClientCapabilities) {
	if inner, ok := v.ClientSession.(server.SessionWithClientInfo); ok {
		inner.SetClientCapabilities(caps)
	}
}

func (v *sessionView) UpgradeToSSEWhenReceiveNotification() {
	if inner, ok := v.ClientSession.(server.SessionWithStreamableHTTPConfig); ok {
		inner.UpgradeToSSEWhenReceiveNotification()
	}
}

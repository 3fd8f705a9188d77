// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/mcpgate/pkg/gateway/callctx"
)

// ToolFilter orders a tools/list result for a call with a provider: static
// tools in name order, minus those the provider shadows, then provider tools
// in conversion order. Without a provider the list is returned unchanged.
func ToolFilter(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	p, ok := callctx.ProviderFromContext(ctx)
	if !ok {
		return tools
	}

	dynamic := make(map[string]mcp.Tool, p.Len())
	for _, t := range tools {
		if _, found := p.Tool(t.Name); found {
			dynamic[t.Name] = t
		}
	}

	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if _, shadowed := dynamic[t.Name]; !shadowed {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })

	for _, name := range p.Names() {
		if t, found := dynamic[name]; found {
			out = append(out, t)
		}
	}
	return out
}

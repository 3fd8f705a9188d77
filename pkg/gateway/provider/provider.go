// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package provider binds converted tool descriptors to an outbound client,
// producing the immutable tool bundle that one call works with.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/xeipuuv/gojsonschema"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/gateway/client"
	"github.com/stacklok/mcpgate/pkg/gateway/schema"
	"github.com/stacklok/mcpgate/pkg/networking"
)

// InvokeFunc runs one tool call.
type InvokeFunc func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// Tool is a descriptor together with its invocation binding.
type Tool struct {
	Descriptor gateway.ToolDescriptor
	Invoke     InvokeFunc
}

// MCPTool is the protocol view of the tool.
func (t Tool) MCPTool() mcp.Tool {
	raw, err := json.Marshal(t.Descriptor.InputSchema)
	if err != nil {
		// descriptors come from the converter and always marshal
		raw = []byte(`{"type":"object"}`)
	}
	readOnly := t.Descriptor.ReadOnly
	destructive := t.Descriptor.Method == http.MethodDelete
	openWorld := true
	return mcp.Tool{
		Name:           t.Descriptor.Name,
		Description:    t.Descriptor.Description,
		RawInputSchema: raw,
		Annotations: mcp.ToolAnnotation{
			ReadOnlyHint:    &readOnly,
			DestructiveHint: &destructive,
			OpenWorldHint:   &openWorld,
		},
	}
}

// ServerTool adapts the tool for registration on an mcp-go server.
func (t Tool) ServerTool() server.ServerTool {
	return server.ServerTool{
		Tool: t.MCPTool(),
		Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return t.Invoke(ctx, req.GetArguments())
		},
	}
}

// Provider is the tool bundle of one call. It never changes after Build.
type Provider struct {
	source string
	tools  []Tool
	index  map[string]int
	client client.OutboundClient
}

// Tools returns the tools in conversion order.
func (p *Provider) Tools() []Tool {
	return slices.Clone(p.tools)
}

// Tool looks a tool up by name.
func (p *Provider) Tool(name string) (Tool, bool) {
	i, ok := p.index[name]
	if !ok {
		return Tool{}, false
	}
	return p.tools[i], true
}

// Len is the number of tools.
func (p *Provider) Len() int {
	return len(p.tools)
}

// Names returns the tool names in conversion order.
func (p *Provider) Names() []string {
	names := make([]string, len(p.tools))
	for i, t := range p.tools {
		names[i] = t.Descriptor.Name
	}
	return names
}

// Client is the client all tools of this provider call through.
func (p *Provider) Client() client.OutboundClient {
	return p.client
}

// Source is where the spec came from.
func (p *Provider) Source() string {
	return p.source
}

// Builder produces providers from parsed specs.
type Builder struct {
	converter        gateway.Converter
	maxResponseBytes int64
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMaxResponseBytes bounds the upstream response body read per call.
func WithMaxResponseBytes(n int64) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxResponseBytes = n
		}
	}
}

// NewBuilder returns a Builder using converter.
func NewBuilder(converter gateway.Converter, opts ...BuilderOption) *Builder {
	b := &Builder{
		converter:        converter,
		maxResponseBytes: networking.DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build converts spec and binds every tool to c. Outbound requests carry
// forwarded, which must be the header set c was created with; cookie
// parameters are merged into its Cookie header. Build opens no connections.
func (b *Builder) Build(ctx context.Context, spec *gateway.ApiSpec, c client.OutboundClient, forwarded http.Header) (*Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	descriptors, err := b.converter.Convert(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gateway.ErrProviderBuild, err)
	}

	p := &Provider{
		source: spec.Source,
		tools:  make([]Tool, 0, len(descriptors)),
		index:  make(map[string]int, len(descriptors)),
		client: c,
	}
	for _, desc := range descriptors {
		if _, dup := p.index[desc.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool name %q", gateway.ErrProviderBuild, desc.Name)
		}
		validator, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(desc.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("%w: tool %q has an invalid input schema: %w", gateway.ErrProviderBuild, desc.Name, err)
		}
		bnd := &binding{
			desc:      desc,
			client:    c,
			forwarded: forwarded.Clone(),
			coercer:   schema.MakeSchema(desc.InputSchema),
			validator: validator,
			maxBytes:  b.maxResponseBytes,
		}
		p.index[desc.Name] = len(p.tools)
		p.tools = append(p.tools, Tool{Descriptor: desc, Invoke: bnd.invoke})
	}
	return p, nil
}

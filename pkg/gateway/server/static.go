// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/mcpgate/pkg/gateway/config"
	"github.com/stacklok/mcpgate/pkg/gateway/provider"
	"github.com/stacklok/mcpgate/pkg/gateway/spec"
	"github.com/stacklok/mcpgate/pkg/logger"
)

// loadStaticSpecs registers the tools of every configured static spec. Each
// spec keeps one outbound client until Stop.
func (s *Server) loadStaticSpecs(ctx context.Context, builder *provider.Builder) error {
	owner := make(map[string]string)

	for _, sc := range s.config.StaticSpecs {
		p, release, err := s.loadStaticSpec(ctx, builder, sc)
		if err != nil {
			return fmt.Errorf("static spec %q: %w", sc.Name, err)
		}
		s.staticReleases = append(s.staticReleases, release)

		tools := make([]server.ServerTool, 0, p.Len())
		for _, t := range p.Tools() {
			name := t.Descriptor.Name
			if prev, dup := owner[name]; dup {
				return fmt.Errorf("static spec %q: tool %q is already provided by %q", sc.Name, name, prev)
			}
			owner[name] = sc.Name
			tools = append(tools, t.ServerTool())
		}
		s.mcpServer.AddTools(tools...)
		s.staticTools += len(tools)

		logger.Infow("static spec loaded",
			"name", sc.Name,
			"source", p.Source(),
			"base_url", p.Client().BaseURL(),
			"tools", len(tools))
	}
	return nil
}

func (s *Server) loadStaticSpec(
	ctx context.Context,
	builder *provider.Builder,
	sc config.StaticSpecConfig,
) (*provider.Provider, func(), error) {
	headers := make(http.Header, len(sc.Headers))
	for name, value := range sc.Headers {
		headers.Set(name, value)
	}

	ref := spec.Reference{URL: sc.URL, APIURL: sc.APIURL, Headers: headers}
	if sc.File != "" {
		data, err := readFile(sc.File)
		if err != nil {
			return nil, nil, err
		}
		ref = spec.Reference{Document: data, APIURL: sc.APIURL}
	}

	apiSpec, err := s.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	c, release, err := s.manager.Acquire(ctx, apiSpec.ServerURL, headers)
	if err != nil {
		return nil, nil, err
	}
	p, err := builder.Build(ctx, apiSpec, c, headers)
	if err != nil {
		release()
		return nil, nil, err
	}
	return p, release, nil
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/mcpgate/cmd/mcpgate/app/ui"
	"github.com/stacklok/mcpgate/pkg/gateway/conversion"
	"github.com/stacklok/mcpgate/pkg/gateway/spec"
	"github.com/stacklok/mcpgate/pkg/networking"
	"github.com/stacklok/mcpgate/pkg/transport/middleware"
)

type toolView struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	InputSchema map[string]any `json:"inputSchema"`
}

func headerReference(specURL, apiURL string) http.Header {
	h := http.Header{}
	if specURL != "" {
		h.Set(middleware.HeaderOpenAPIURL, specURL)
	}
	if apiURL != "" {
		h.Set(middleware.HeaderAPIURL, apiURL)
	}
	return h
}

// newToolsCmd creates the tools command, which converts a spec without
// starting a server.
func newToolsCmd() *cobra.Command {
	var (
		specURL string
		apiURL  string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools an OpenAPI document converts to",
		Long: `Fetch an OpenAPI document, convert it and print the resulting tools.

Nothing is called on the target API. Spec fetch settings come from --config
when given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unsupported format %q, use table or json", format)
			}

			cfg, err := loadConfig(viper.GetString("config"))
			if err != nil {
				return err
			}

			httpClient, err := networking.NewHttpClientBuilder().
				WithTimeout(cfg.Spec.FetchTimeout.Std()).
				WithPrivateIPs(cfg.Spec.PrivateIPsAllowed()).
				WithCABundle(cfg.Outbound.CABundle).
				Build()
			if err != nil {
				return fmt.Errorf("failed to build HTTP client: %w", err)
			}
			resolver := spec.NewResolver(httpClient,
				spec.WithFetchTimeout(cfg.Spec.FetchTimeout.Std()),
				spec.WithRetries(cfg.Spec.Retries),
				spec.WithMaxBytes(cfg.Spec.MaxBytes),
			)

			ref, ok, err := spec.ReferenceFromRequest(nil, headerReference(specURL, apiURL), nil)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("--openapi-url is required")
			}

			apiSpec, err := resolver.Resolve(cmd.Context(), ref)
			if err != nil {
				return err
			}
			descriptors, err := conversion.NewConverter().Convert(apiSpec)
			if err != nil {
				return err
			}

			if format == "json" {
				out := make([]toolView, 0, len(descriptors))
				for _, d := range descriptors {
					out = append(out, toolView{
						Name:        d.Name,
						Description: d.Description,
						Method:      d.Method,
						Path:        d.PathTemplate,
						InputSchema: d.InputSchema,
					})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			cmd.Printf("%s (%s)\n", apiSpec.Source, apiSpec.ServerURL)
			return ui.RenderToolsTable(cmd.OutOrStdout(), descriptors)
		},
	}

	cmd.Flags().StringVar(&specURL, "openapi-url", "", "URL of the OpenAPI document")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Base URL of the API, overriding the document's servers")
	cmd.Flags().StringVarP(&format, "format", "o", "table", "Output format: table or json")
	return cmd
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the mcpgate command-line application.
package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"

	"github.com/stacklok/mcpgate/pkg/gateway/config"
	"github.com/stacklok/mcpgate/pkg/gateway/server"
	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/telemetry"
	"github.com/stacklok/mcpgate/pkg/versions"
)

// NewRootCmd creates a new root command for the mcpgate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "mcpgate",
		DisableAutoGenTag: true,
		Short:             "MCP gateway that turns OpenAPI descriptions into tools",
		Long: `mcpgate exposes HTTP APIs described by OpenAPI documents as MCP tools.

Every tools/list or tools/call request may name its own OpenAPI document, with
the x-openapi-url header or the "mcpgate/openapi" _meta entry. The gateway
builds that document's tools for the duration of the request only, so
concurrent callers never see each other's tools or headers. Tools from
statically configured documents are served on every request.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the gateway configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newServeCmd creates the serve command for starting the gateway
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP gateway",
		Long: `Start the MCP gateway on the configured address.

Without --config the built-in defaults are used. --host and --port override the
configuration file.`,
		RunE: runServe,
	}
	cmd.Flags().String("host", "", "Listen host (overrides the configuration file)")
	cmd.Flags().Int("port", 0, "Listen port (overrides the configuration file)")
	return cmd
}

// newValidateCmd creates the validate command for checking configuration
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the gateway configuration file for syntax and semantic errors.

This command checks:
- YAML syntax and unknown keys
- Listener and header policy settings
- Spec, outbound and telemetry settings
- Static spec entries`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath := viper.GetString("config")
			if configPath == "" {
				return fmt.Errorf("no configuration file specified, use --config flag")
			}

			logger.Infof("Validating configuration: %s", configPath)
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			cmd.Printf("Configuration is valid\n")
			cmd.Printf("  Name: %s\n", cfg.Name)
			cmd.Printf("  Listen: %s%s\n", cfg.Address(), cfg.EndpointPath)
			cmd.Printf("  Static specs: %d\n", len(cfg.StaticSpecs))
			if cfg.Spec.CacheTTL > 0 {
				cmd.Printf("  Spec cache: %s, %d entries\n", cfg.Spec.CacheTTL.Std(), cfg.Spec.CacheMaxEntries)
			}
			return nil
		},
	}
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			if jsonOutput {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode version: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}
			cmd.Printf("mcpgate %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print version information as JSON")
	return cmd
}

// loadConfig loads and validates the configuration at path, or the defaults
// when path is empty.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.NewYAMLLoader(path, &env.OSReader{}).Load()
		if err != nil {
			logger.Errorf("Failed to load configuration: %v", err)
			return nil, fmt.Errorf("configuration loading failed: %w", err)
		}
		cfg = loaded
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		logger.Errorf("Configuration validation failed: %v", err)
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// runServe implements the serve command logic
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(viper.GetString("config"))
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}

	telemetryProvider, err := newTelemetryProvider(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := telemetryProvider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warnf("Failed to shut down telemetry: %v", err)
		}
	}()

	srv, err := server.New(ctx, &server.Config{
		Gateway:           cfg,
		TelemetryProvider: telemetryProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}

func newTelemetryProvider(cmd *cobra.Command, cfg *config.Config) (*telemetry.Provider, error) {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = cfg.Name
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Insecure = cfg.Telemetry.Insecure
	tc.Headers = cfg.Telemetry.Headers
	tc.TracingEnabled = cfg.Telemetry.TracingEnabled
	tc.MetricsEnabled = cfg.Telemetry.MetricsEnabled
	tc.SamplingRate = cfg.Telemetry.Sampling()
	tc.EnablePrometheusMetricsPath = cfg.Telemetry.Prometheus

	p, err := telemetry.NewProvider(cmd.Context(), tc)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}
	return p, nil
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcpgate/pkg/testkit"
)

// execute runs the CLI with args. Commands share viper state, so these tests
// do not run in parallel.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcpgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

//nolint:paralleltest // shares viper state
func TestToolsCommand(t *testing.T) {
	api, err := testkit.NewDoubleAPI()
	require.NoError(t, err)
	t.Cleanup(api.Close)

	out, err := execute(t, "tools", "--openapi-url", api.SpecURL())
	require.NoError(t, err)
	assert.Contains(t, out, "double")
	assert.Contains(t, out, "/double/{n}")
	assert.Contains(t, out, "GET (read-only)")

	out, err = execute(t, "tools", "--openapi-url", api.SpecURL(), "-o", "json")
	require.NoError(t, err)
	var tools []toolView
	require.NoError(t, json.Unmarshal([]byte(out), &tools))
	require.Len(t, tools, 1)
	assert.Equal(t, "double", tools[0].Name)
	assert.Equal(t, "GET", tools[0].Method)
	assert.Equal(t, []any{"n"}, tools[0].InputSchema["required"])
}

//nolint:paralleltest // shares viper state
func TestToolsCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing url", args: []string{"tools"}, wantErr: "--openapi-url is required"},
		{name: "relative url without api url", args: []string{"tools", "--openapi-url", "/openapi.json"}, wantErr: "requires an API URL"},
		{name: "bad format", args: []string{"tools", "--openapi-url", "http://127.0.0.1:1/x", "-o", "xml"}, wantErr: "unsupported format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

//nolint:paralleltest // shares viper state
func TestValidateCommand(t *testing.T) {
	valid := writeFile(t, `
name: edge
port: 9000
spec:
  cacheTTL: 30s
staticSpecs:
  - name: petstore
    url: https://petstore.example.com/openapi.json
`)
	out, err := execute(t, "validate", "--config", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "127.0.0.1:9000/mcp")
	assert.Contains(t, out, "Static specs: 1")
	assert.Contains(t, out, "Spec cache: 30s")

	invalid := writeFile(t, "port: 70000\n")
	_, err = execute(t, "validate", "--config", invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be between")

	_, err = execute(t, "validate", "--config", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no configuration file specified")
}

//nolint:paralleltest // shares viper state
func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tidwall/gjson"
	"sigs.k8s.io/yaml"

	"github.com/stacklok/mcpgate/pkg/gateway"
)

// Parse decodes and validates an OpenAPI 3.x or Swagger 2.0 document in JSON
// or YAML form. Swagger documents are converted to OpenAPI 3. Every failure
// wraps gateway.ErrSpecParse.
func Parse(ctx context.Context, data []byte) (*openapi3.T, error) {
	doc, err := parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gateway.ErrSpecParse, err)
	}
	return doc, nil
}

func parse(ctx context.Context, data []byte) (*openapi3.T, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("empty document")
	}

	jsonData := data
	if !json.Valid(data) {
		converted, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("document is neither JSON nor YAML: %w", err)
		}
		jsonData = converted
	}
	if !gjson.ParseBytes(jsonData).IsObject() {
		return nil, errors.New("document is not an object")
	}

	var doc *openapi3.T
	switch {
	case gjson.GetBytes(jsonData, "swagger").Exists():
		var doc2 openapi2.T
		if err := json.Unmarshal(jsonData, &doc2); err != nil {
			return nil, fmt.Errorf("decode swagger document: %w", err)
		}
		converted, err := openapi2conv.ToV3(&doc2)
		if err != nil {
			return nil, fmt.Errorf("convert swagger document: %w", err)
		}
		doc = converted
	case gjson.GetBytes(jsonData, "openapi").Exists():
		loader := openapi3.NewLoader()
		loader.Context = ctx
		loader.IsExternalRefsAllowed = false
		loaded, err := loader.LoadFromData(jsonData)
		if err != nil {
			return nil, fmt.Errorf("load document: %w", err)
		}
		doc = loaded
	default:
		return nil, errors.New("missing openapi or swagger version field")
	}

	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}
	return doc, nil
}

// ServerURL picks the API base URL: apiURL when set, otherwise the first
// declared server with variables replaced by their defaults. A relative
// server URL is resolved against specURL.
func ServerURL(doc *openapi3.T, apiURL, specURL string) (string, error) {
	if apiURL != "" {
		return validateBaseURL(apiURL)
	}
	if len(doc.Servers) == 0 || doc.Servers[0] == nil {
		return "", fmt.Errorf("%w: document declares no servers and no API URL was given", gateway.ErrProviderBuild)
	}

	server := doc.Servers[0]
	raw := server.URL
	for name, v := range server.Variables {
		if v != nil {
			raw = strings.ReplaceAll(raw, "{"+name+"}", v.Default)
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid server URL %q: %w", gateway.ErrProviderBuild, raw, err)
	}
	if !u.IsAbs() {
		base, err := url.Parse(specURL)
		if err != nil || !base.IsAbs() {
			return "", fmt.Errorf("%w: relative server URL %q needs an absolute spec URL", gateway.ErrProviderBuild, raw)
		}
		u = base.ResolveReference(u)
	}
	return validateBaseURL(u.String())
}

func validateBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: API URL %q must be an absolute http(s) URL", gateway.ErrProviderBuild, raw)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

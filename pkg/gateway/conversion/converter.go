// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package conversion maps OpenAPI operations onto gateway tool descriptors.
package conversion

import (
	"fmt"
	"log/slog"
	"maps"
	"mime"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/stacklok/mcpgate/pkg/gateway"
)

// MaxToolNameLength is the longest tool name produced.
const MaxToolNameLength = 64

// BodyArgument is the argument carrying a request body that is not flattened.
const BodyArgument = "body"

// Content types the bindings can encode.
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// methodOrder fixes the order operations of one path are emitted in.
var methodOrder = []string{
	http.MethodGet,
	http.MethodPut,
	http.MethodPost,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodHead,
	http.MethodPatch,
	http.MethodTrace,
}

var (
	invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	pathParamPattern = regexp.MustCompile(`\{([^{}]+)\}`)
)

// OpenAPIConverter implements gateway.Converter for OpenAPI 3 documents.
// Output order is sorted path, then methodOrder, so identical documents
// always produce identical tool lists.
type OpenAPIConverter struct{}

// NewConverter returns an OpenAPIConverter.
func NewConverter() *OpenAPIConverter {
	return &OpenAPIConverter{}
}

var _ gateway.Converter = (*OpenAPIConverter)(nil)

// Convert implements gateway.Converter.
func (*OpenAPIConverter) Convert(spec *gateway.ApiSpec) ([]gateway.ToolDescriptor, error) {
	if spec == nil || spec.Document == nil {
		return nil, fmt.Errorf("%w: no document", gateway.ErrProviderBuild)
	}
	if spec.Document.Paths == nil {
		return nil, nil
	}

	pathItems := spec.Document.Paths.Map()
	var tools []gateway.ToolDescriptor
	for _, path := range slices.Sorted(maps.Keys(pathItems)) {
		item := pathItems[path]
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			desc, err := convertOperation(method, path, item.Parameters, op)
			if err != nil {
				return nil, fmt.Errorf("%w: %s %s: %w", gateway.ErrProviderBuild, method, path, err)
			}
			tools = append(tools, desc)
		}
	}
	return tools, nil
}

func convertOperation(method, path string, shared openapi3.Parameters, op *openapi3.Operation) (gateway.ToolDescriptor, error) {
	desc := gateway.ToolDescriptor{
		Name:         toolName(method, path, op.OperationID),
		Description:  description(method, path, op),
		Method:       method,
		PathTemplate: path,
		ReadOnly:     method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions,
	}

	properties := map[string]any{}
	var required []string
	used := map[string]bool{}

	for _, param := range mergeParameters(shared, op.Parameters) {
		arg := param.Name
		if used[arg] {
			arg = param.Name + "__" + param.In
		}
		used[arg] = true

		schema := parameterSchema(param)
		if param.Description != "" {
			schema["description"] = param.Description
		}
		properties[arg] = schema

		isRequired := param.Required || param.In == openapi3.ParameterInPath
		if isRequired {
			required = append(required, arg)
		}
		desc.Params = append(desc.Params, gateway.ParamBinding{
			Argument: arg,
			Name:     param.Name,
			In:       gateway.ParamLocation(param.In),
			Required: isRequired,
			Explode:  explode(param),
		})
	}

	if err := checkPathParams(path, desc.Params); err != nil {
		return gateway.ToolDescriptor{}, err
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body, bodyRequired, err := bindBody(op.RequestBody.Value, properties, used)
		if err != nil {
			return gateway.ToolDescriptor{}, err
		}
		desc.Body = body
		required = append(required, bodyRequired...)
	}

	desc.InputSchema = map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		desc.InputSchema["required"] = toAnySlice(required)
	}
	return desc, nil
}

// bindBody picks a supported content type and either lifts the top-level
// properties of an object body into the argument set or exposes the whole
// body as BodyArgument. It adds the resulting arguments to properties.
func bindBody(rb *openapi3.RequestBody, properties map[string]any, used map[string]bool) (*gateway.BodyBinding, []string, error) {
	contentType, media := pickContent(rb.Content)
	if media == nil {
		if rb.Required {
			return nil, nil, fmt.Errorf("unsupported request body content types %v", slices.Sorted(maps.Keys(rb.Content)))
		}
		slog.Debug("skipping optional request body with unsupported content type")
		return nil, nil, nil
	}

	binding := &gateway.BodyBinding{ContentType: contentType, Required: rb.Required}
	schema := schemaToMap(media.Schema)

	if props, ok := schema["properties"].(map[string]any); ok && len(props) > 0 && canFlatten(schema, props, used) {
		var required []string
		reqSet := map[string]bool{}
		if list, ok := schema["required"].([]any); ok && rb.Required {
			for _, v := range list {
				if s, ok := v.(string); ok {
					reqSet[s] = true
				}
			}
		}
		for _, name := range slices.Sorted(maps.Keys(props)) {
			properties[name] = props[name]
			used[name] = true
			binding.Flattened = append(binding.Flattened, name)
			if reqSet[name] {
				required = append(required, name)
			}
		}
		return binding, required, nil
	}

	arg := BodyArgument
	if used[arg] {
		arg = "request_body"
	}
	used[arg] = true
	if rb.Description != "" {
		if _, ok := schema["description"]; !ok {
			schema["description"] = rb.Description
		}
	}
	properties[arg] = schema
	binding.Argument = arg
	if rb.Required {
		return binding, []string{arg}, nil
	}
	return binding, nil, nil
}

// canFlatten reports whether an object body can be spread into top-level
// arguments without clashing with parameters or losing free-form keys.
func canFlatten(schema, props map[string]any, used map[string]bool) bool {
	if t, _ := schema["type"].(string); t != "" && t != "object" {
		return false
	}
	if ap, ok := schema["additionalProperties"]; ok && ap != false {
		return false
	}
	for _, key := range []string{"oneOf", "anyOf", "allOf"} {
		if _, ok := schema[key]; ok {
			return false
		}
	}
	for name := range props {
		if used[name] {
			return false
		}
	}
	return true
}

func pickContent(content openapi3.Content) (string, *openapi3.MediaType) {
	var formMedia *openapi3.MediaType
	for _, ct := range slices.Sorted(maps.Keys(content)) {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			continue
		}
		switch {
		case mediaType == ContentTypeJSON || strings.HasSuffix(mediaType, "+json"):
			return ContentTypeJSON, content[ct]
		case mediaType == ContentTypeForm:
			formMedia = content[ct]
		}
	}
	if formMedia != nil {
		return ContentTypeForm, formMedia
	}
	return "", nil
}

// mergeParameters combines path-level and operation-level parameters. An
// operation parameter overrides a path parameter with the same name and location.
func mergeParameters(shared, own openapi3.Parameters) []*openapi3.Parameter {
	var out []*openapi3.Parameter
	index := map[string]int{}
	for _, list := range []openapi3.Parameters{shared, own} {
		for _, ref := range list {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			key := p.In + "\x00" + p.Name
			if i, ok := index[key]; ok {
				out[i] = p
				continue
			}
			index[key] = len(out)
			out = append(out, p)
		}
	}
	return out
}

func parameterSchema(p *openapi3.Parameter) map[string]any {
	if p.Schema != nil {
		return schemaToMap(p.Schema)
	}
	for _, ct := range slices.Sorted(maps.Keys(p.Content)) {
		if media := p.Content[ct]; media != nil && media.Schema != nil {
			return schemaToMap(media.Schema)
		}
	}
	return map[string]any{"type": "string"}
}

// explode follows the OpenAPI defaults: form style, used by query and
// cookie parameters, explodes unless told otherwise.
func explode(p *openapi3.Parameter) bool {
	if p.Explode != nil {
		return *p.Explode
	}
	style := p.Style
	if style == "" && (p.In == openapi3.ParameterInQuery || p.In == openapi3.ParameterInCookie) {
		style = openapi3.SerializationForm
	}
	return style == openapi3.SerializationForm
}

func checkPathParams(path string, params []gateway.ParamBinding) error {
	for _, m := range pathParamPattern.FindAllStringSubmatch(path, -1) {
		found := slices.ContainsFunc(params, func(p gateway.ParamBinding) bool {
			return p.In == gateway.ParamInPath && p.Name == m[1]
		})
		if !found {
			return fmt.Errorf("path parameter %q is not declared", m[1])
		}
	}
	return nil
}

func toolName(method, path, operationID string) string {
	name := operationID
	if name == "" {
		name = strings.ToLower(method) + "_" + strings.NewReplacer("{", "", "}", "").Replace(strings.Trim(path, "/"))
	}
	name = strings.Trim(invalidNameChars.ReplaceAllString(name, "_"), "_")
	if name == "" {
		name = strings.ToLower(method)
	}
	if len(name) > MaxToolNameLength {
		name = name[:MaxToolNameLength]
	}
	return name
}

func description(method, path string, op *openapi3.Operation) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(op.Summary); s != "" {
		parts = append(parts, s)
	}
	if d := strings.TrimSpace(op.Description); d != "" && d != strings.TrimSpace(op.Summary) {
		parts = append(parts, d)
	}
	if len(parts) == 0 {
		return method + " " + path
	}
	return strings.Join(parts, "\n\n")
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package conversion

import (
	"maps"
	"slices"

	"github.com/getkin/kin-openapi/openapi3"
)

// maxSchemaDepth bounds inlining of recursive schemas.
const maxSchemaDepth = 12

// schemaToMap inlines an OpenAPI schema into a JSON Schema object suitable
// for an MCP tool input schema. References are already resolved by the
// loader; recursive schemas are cut off at maxSchemaDepth.
func schemaToMap(ref *openapi3.SchemaRef) map[string]any {
	return inline(ref, map[*openapi3.Schema]bool{}, 0)
}

func inline(ref *openapi3.SchemaRef, visiting map[*openapi3.Schema]bool, depth int) map[string]any {
	if ref == nil || ref.Value == nil {
		return map[string]any{}
	}
	s := ref.Value
	if visiting[s] || depth > maxSchemaDepth {
		// recursive reference, keep only the type
		if types := s.Type.Slice(); len(types) == 1 {
			return map[string]any{"type": types[0]}
		}
		return map[string]any{}
	}
	visiting[s] = true
	defer delete(visiting, s)

	out := map[string]any{}

	if types := s.Type.Slice(); len(types) > 0 {
		if s.Nullable && !slices.Contains(types, "null") {
			types = append(slices.Clone(types), "null")
		}
		if len(types) == 1 {
			out["type"] = types[0]
		} else {
			out["type"] = toAnySlice(types)
		}
	}

	setString(out, "title", s.Title)
	setString(out, "description", s.Description)
	setString(out, "format", s.Format)
	setString(out, "pattern", s.Pattern)
	if len(s.Enum) > 0 {
		out["enum"] = slices.Clone(s.Enum)
	}
	if s.Default != nil {
		out["default"] = s.Default
	}

	if s.Min != nil {
		if s.ExclusiveMin {
			out["exclusiveMinimum"] = *s.Min
		} else {
			out["minimum"] = *s.Min
		}
	}
	if s.Max != nil {
		if s.ExclusiveMax {
			out["exclusiveMaximum"] = *s.Max
		} else {
			out["maximum"] = *s.Max
		}
	}
	if s.MultipleOf != nil {
		out["multipleOf"] = *s.MultipleOf
	}
	if s.MinLength > 0 {
		out["minLength"] = s.MinLength
	}
	if s.MaxLength != nil {
		out["maxLength"] = *s.MaxLength
	}
	if s.MinItems > 0 {
		out["minItems"] = s.MinItems
	}
	if s.MaxItems != nil {
		out["maxItems"] = *s.MaxItems
	}
	if s.UniqueItems {
		out["uniqueItems"] = true
	}

	if s.Items != nil {
		out["items"] = inline(s.Items, visiting, depth+1)
	}

	skipped := map[string]bool{}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for _, name := range slices.Sorted(maps.Keys(s.Properties)) {
			prop := s.Properties[name]
			if prop != nil && prop.Value != nil && prop.Value.ReadOnly {
				// server-populated, never sent
				skipped[name] = true
				continue
			}
			props[name] = inline(prop, visiting, depth+1)
		}
		out["properties"] = props
	}
	if required := slices.DeleteFunc(slices.Clone(s.Required), func(n string) bool { return skipped[n] }); len(required) > 0 {
		out["required"] = toAnySlice(required)
	}
	switch {
	case s.AdditionalProperties.Schema != nil:
		out["additionalProperties"] = inline(s.AdditionalProperties.Schema, visiting, depth+1)
	case s.AdditionalProperties.Has != nil:
		out["additionalProperties"] = *s.AdditionalProperties.Has
	}

	for key, refs := range map[string]openapi3.SchemaRefs{"oneOf": s.OneOf, "anyOf": s.AnyOf, "allOf": s.AllOf} {
		if len(refs) == 0 {
			continue
		}
		items := make([]any, 0, len(refs))
		for _, r := range refs {
			items = append(items, inline(r, visiting, depth+1))
		}
		out[key] = items
	}
	if s.Not != nil {
		out["not"] = inline(s.Not, visiting, depth+1)
	}

	return out
}

func setString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

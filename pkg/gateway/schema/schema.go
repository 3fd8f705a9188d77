// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package schema coerces tool arguments to the types their JSON Schema
// declares. Clients frequently send numbers and booleans as strings; the
// upstream API expects the declared type.
package schema

// TypeCoercer coerces values to their expected types.
// Implementations return the coerced value, or the original if coercion fails.
type TypeCoercer interface {
	TryCoerce(value any) any
}

// MakeSchema parses a raw JSON Schema map into typed Schema structures.
// Always returns a valid TypeCoercer; callers do not need to nil-check.
// For nil, empty, or unknown schema types, returns a passthrough coercer
// that returns values unchanged.
func MakeSchema(raw map[string]any) TypeCoercer {
	if len(raw) == 0 {
		return passthroughSchema{}
	}

	switch schemaType := typeOf(raw); schemaType {
	case "object":
		return makeObjectSchema(raw)
	case "array":
		return makeArraySchema(raw)
	case "string", "integer", "number", "boolean":
		return makePrimitiveSchema(schemaType)
	default:
		return passthroughSchema{}
	}
}

// typeOf returns the schema type. For a type array such as
// ["integer", "null"] it returns the first non-null entry.
func typeOf(raw map[string]any) string {
	switch t := raw["type"].(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	case []string:
		for _, s := range t {
			if s != "null" {
				return s
			}
		}
	}
	return ""
}

// passthroughSchema is a no-op schema that returns values unchanged.
type passthroughSchema struct{}

// TryCoerce returns the value unchanged.
func (passthroughSchema) TryCoerce(value any) any {
	return value
}

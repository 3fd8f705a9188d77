// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package schema

// objectSchema coerces known properties; unknown ones pass through.
type objectSchema struct {
	properties map[string]TypeCoercer
}

func makeObjectSchema(raw map[string]any) objectSchema {
	schema := objectSchema{properties: map[string]TypeCoercer{}}

	props, _ := raw["properties"].(map[string]any)
	for name, prop := range props {
		if propMap, ok := prop.(map[string]any); ok {
			schema.properties[name] = MakeSchema(propMap)
		}
	}

	return schema
}

// TryCoerce returns a new map with each known property coerced.
func (s objectSchema) TryCoerce(value any) any {
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}

	result := make(map[string]any, len(obj))
	for k, v := range obj {
		if coercer, ok := s.properties[k]; ok {
			result[k] = coercer.TryCoerce(v)
			continue
		}
		result[k] = v
	}
	return result
}

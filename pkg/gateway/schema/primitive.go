// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"strconv"
	"strings"
)

type primitiveSchema struct {
	typ string
}

func makePrimitiveSchema(typ string) primitiveSchema {
	return primitiveSchema{typ: typ}
}

// TryCoerce parses string input into the declared primitive type.
// Non-string input and unparsable strings are returned unchanged.
func (s primitiveSchema) TryCoerce(value any) any {
	str, ok := value.(string)
	if !ok {
		return value
	}
	trimmed := strings.TrimSpace(str)

	switch s.typ {
	case "integer":
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(trimmed); err == nil {
			return b
		}
	}
	return value
}

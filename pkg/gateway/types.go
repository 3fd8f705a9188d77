// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// ApiSpec is a parsed API description.
//
// It is read-only once resolved. With the spec cache enabled a single
// instance is handed to many calls, so nothing may write to Document.
type ApiSpec struct {
	// Source is the URL the document was fetched from, or "inline".
	Source string

	// Document is the parsed OpenAPI 3 document. Swagger 2.0 input is
	// converted before it lands here.
	Document *openapi3.T

	// ServerURL is the base URL of the target API.
	ServerURL string
}

// ParamLocation is where an operation parameter travels on the wire.
type ParamLocation string

// Parameter locations.
const (
	ParamInPath   ParamLocation = "path"
	ParamInQuery  ParamLocation = "query"
	ParamInHeader ParamLocation = "header"
	ParamInCookie ParamLocation = "cookie"
)

// ParamBinding maps one tool argument onto one operation parameter.
type ParamBinding struct {
	// Argument is the key in the tool's arguments object.
	Argument string
	// Name is the parameter name on the wire.
	Name     string
	In       ParamLocation
	Required bool
	// Explode sends array values as repeated query keys instead of a
	// comma-joined value.
	Explode bool
}

// BodyBinding describes how tool arguments become the request body.
type BodyBinding struct {
	ContentType string
	// Argument is set when the whole body is passed as one argument.
	Argument string
	// Flattened lists body properties lifted to top-level arguments.
	// Exactly one of Argument and Flattened is used.
	Flattened []string
	Required  bool
}

// ToolDescriptor is the conversion output for one API operation. It holds
// everything needed to produce an invocation binding once a client and a
// forwarded-header set are known.
type ToolDescriptor struct {
	Name         string
	Description  string
	InputSchema  map[string]any
	Method       string
	PathTemplate string
	Params       []ParamBinding
	Body         *BodyBinding
	ReadOnly     bool
}

// Converter maps a parsed spec onto tool descriptors. Implementations must be
// free of side effects and deterministic for identical input.
type Converter interface {
	Convert(spec *ApiSpec) ([]ToolDescriptor, error)
}

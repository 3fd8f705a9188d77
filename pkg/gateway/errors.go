// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/toolhive-core/httperr"
)

// Domain errors shared by the gateway subpackages. Check them with errors.Is;
// wrapping errors add the specifics.
var (
	// ErrSpecFetch indicates the spec reference could not be retrieved.
	// The caller may retry with the same or a different reference.
	ErrSpecFetch = httperr.WithCode(errors.New("spec fetch failed"), http.StatusBadGateway)

	// ErrSpecParse indicates the retrieved document is not a valid API description.
	ErrSpecParse = httperr.WithCode(errors.New("spec parse failed"), http.StatusUnprocessableEntity)

	// ErrProviderBuild indicates the conversion step rejected a parsed spec.
	ErrProviderBuild = httperr.WithCode(errors.New("provider build failed"), http.StatusUnprocessableEntity)

	// ErrToolNotFound indicates a call named neither a dynamic nor a static tool.
	ErrToolNotFound = httperr.WithCode(errors.New("tool not found"), http.StatusNotFound)

	// ErrToolInvocation indicates the target API answered with a failure.
	// The concrete error is a *ToolInvocationError.
	ErrToolInvocation = httperr.WithCode(errors.New("tool invocation failed"), http.StatusBadGateway)

	// ErrInvalidArguments indicates tool arguments do not match the input schema.
	ErrInvalidArguments = httperr.WithCode(errors.New("invalid tool arguments"), http.StatusBadRequest)

	// ErrClientClosed is returned when an outbound client is used after release.
	ErrClientClosed = httperr.WithCode(errors.New("outbound client closed"), http.StatusInternalServerError)
)

// Kind names as they appear in the data member of JSON-RPC errors.
const (
	KindSpecFetch        = "SpecFetchError"
	KindSpecParse        = "SpecParseError"
	KindProviderBuild    = "ProviderBuildError"
	KindToolNotFound     = "ToolNotFoundError"
	KindToolInvocation   = "ToolInvocationError"
	KindInvalidArguments = "InvalidArgumentsError"
	KindCancelled        = "CancelledError"
	KindInternal         = "InternalError"
)

// JSON-RPC codes in the implementation-defined server error range.
const (
	RPCCodeSpecFetch     = -32001
	RPCCodeSpecParse     = -32002
	RPCCodeProviderBuild = -32003
	RPCCodeCancelled     = -32004
)

// ToolInvocationError carries the upstream response of a failed tool call.
// Status is zero when the request never produced a response.
type ToolInvocationError struct {
	Tool   string
	Status int
	Body   string
	Err    error
}

func (e *ToolInvocationError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("tool %q: upstream request failed: %v", e.Tool, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("tool %q: upstream returned HTTP %d", e.Tool, e.Status)
	}
	return fmt.Sprintf("tool %q: upstream returned HTTP %d: %s", e.Tool, e.Status, e.Body)
}

// Unwrap exposes ErrToolInvocation alongside the cause, so errors.Is and
// httperr.Code both see the sentinel.
func (e *ToolInvocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrToolInvocation}
	}
	return []error{ErrToolInvocation, e.Err}
}

// Kind maps an error onto the gateway taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSpecFetch):
		return KindSpecFetch
	case errors.Is(err, ErrSpecParse):
		return KindSpecParse
	case errors.Is(err, ErrProviderBuild):
		return KindProviderBuild
	case errors.Is(err, ErrToolNotFound):
		return KindToolNotFound
	case errors.Is(err, ErrToolInvocation):
		return KindToolInvocation
	case errors.Is(err, ErrInvalidArguments):
		return KindInvalidArguments
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}

// RPCCode maps an error onto the JSON-RPC error code used for it.
func RPCCode(err error) int {
	switch Kind(err) {
	case KindSpecFetch:
		return RPCCodeSpecFetch
	case KindSpecParse:
		return RPCCodeSpecParse
	case KindProviderBuild:
		return RPCCodeProviderBuild
	case KindToolNotFound, KindInvalidArguments:
		return mcp.INVALID_PARAMS
	case KindCancelled:
		return RPCCodeCancelled
	default:
		return mcp.INTERNAL_ERROR
	}
}

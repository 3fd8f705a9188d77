// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package middleware decides which inbound request headers are replayed on
// the outbound requests issued by a call's dynamic tools.
package middleware

import (
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// Gateway control headers. They steer the gateway and are never forwarded.
const (
	HeaderOpenAPIURL = "X-Openapi-Url"
	HeaderAPIURL     = "X-Api-Url"
	HeaderCookies    = "X-Cookies"
)

// RestrictedHeaders is the set of headers that are never forwarded and cannot
// be configured for injection. Keys are in canonical form (http.CanonicalHeaderKey).
var RestrictedHeaders = map[string]bool{
	// Routing manipulation
	"Host": true,
	// Hop-by-hop headers (RFC 7230, RFC 7540)
	"Connection":     true,
	"Keep-Alive":     true,
	"Te":             true,
	"Trailer":        true,
	"Upgrade":        true,
	"Http2-Settings": true, // RFC 7540 Section 3.2.1
	// Hop-by-hop proxy headers
	"Proxy-Authorization": true,
	"Proxy-Authenticate":  true,
	"Proxy-Connection":    true,
	// Request smuggling vectors
	"Transfer-Encoding": true,
	"Content-Length":    true,
	// Identity spoofing
	"Forwarded":         true, // RFC 7239 (standardized X-Forwarded-*)
	"X-Forwarded-For":   true,
	"X-Forwarded-Host":  true,
	"X-Forwarded-Proto": true,
	"X-Real-Ip":         true,
}

// transportHeaders belong to the inbound MCP exchange, not to the caller.
var transportHeaders = map[string]bool{
	"Mcp-Session-Id":       true,
	"Mcp-Protocol-Version": true,
	"Last-Event-Id":        true,
	"Content-Type":         true,
	"Accept":               true,
	"Accept-Encoding":      true,
	"Cache-Control":        true,
	HeaderOpenAPIURL:       true,
	HeaderAPIURL:           true,
	HeaderCookies:          true,
}

// Policy is the header forwarding configuration. The zero value forwards every
// permitted header except Authorization.
type Policy struct {
	forwardAuthorization bool
	add                  map[string]string
	drop                 map[string]bool
}

// NewPolicy validates and canonicalizes the forwarding configuration.
// It returns an error if an added header is in the RestrictedHeaders blocklist.
func NewPolicy(forwardAuthorization bool, add map[string]string, drop []string) (*Policy, error) {
	p := &Policy{
		forwardAuthorization: forwardAuthorization,
		add:                  make(map[string]string, len(add)),
		drop:                 make(map[string]bool, len(drop)),
	}

	for name, value := range add {
		canonical := http.CanonicalHeaderKey(name)
		if RestrictedHeaders[canonical] || transportHeaders[canonical] {
			return nil, fmt.Errorf("header %q is restricted and cannot be configured for forwarding", canonical)
		}
		if canonical == "Authorization" {
			slog.Warn("authorization header is configured for injection; ensure the value is appropriate for every target API")
		}
		p.add[canonical] = value
	}
	for _, name := range drop {
		p.drop[http.CanonicalHeaderKey(name)] = true
	}

	// never log values
	if len(p.add) > 0 {
		slog.Debug("header forwarding configured",
			"add", strings.Join(slices.Sorted(maps.Keys(p.add)), ", "),
			"forward_authorization", forwardAuthorization)
	}
	return p, nil
}

// ForwardedHeaders returns a fresh header set built from r for replay on
// outbound requests. X-Cookies is folded into Cookie. A nil policy behaves
// like the zero Policy.
func ForwardedHeaders(r *http.Request, policy *Policy) http.Header {
	if policy == nil {
		policy = &Policy{}
	}

	out := make(http.Header, len(r.Header))
	for name, values := range r.Header {
		canonical := http.CanonicalHeaderKey(name)
		if RestrictedHeaders[canonical] || transportHeaders[canonical] || policy.drop[canonical] {
			continue
		}
		if canonical == "Authorization" && !policy.forwardAuthorization {
			continue
		}
		out[canonical] = slices.Clone(values)
	}

	if cookies := r.Header.Values(HeaderCookies); len(cookies) > 0 && !policy.drop["Cookie"] {
		merged := append(out.Values("Cookie"), cookies...)
		out.Set("Cookie", strings.Join(merged, "; "))
	}

	for name, value := range policy.add {
		out.Set(name, value)
	}

	if len(out) > 0 {
		slog.Debug("forwarding inbound headers", "headers", strings.Join(slices.Sorted(maps.Keys(out)), ", "))
	}
	return out
}

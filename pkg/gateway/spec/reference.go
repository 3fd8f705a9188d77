// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package spec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/transport/middleware"
)

// MetaKey is the params._meta entry that carries a spec reference.
const MetaKey = "mcpgate/openapi"

// Reference points at an API description, either by URL or inline.
type Reference struct {
	// URL of the document. Ignored when Document is set.
	URL string
	// Document is the raw document, JSON or YAML.
	Document []byte
	// APIURL overrides the servers declared in the document.
	APIURL string
	// Headers are sent with the fetch.
	Headers http.Header
}

// IsZero reports whether the reference names no document.
func (r Reference) IsZero() bool {
	return r.URL == "" && len(r.Document) == 0
}

// Source is a printable description of where the document comes from.
func (r Reference) Source() string {
	if len(r.Document) > 0 {
		return "inline"
	}
	return r.URL
}

// Key returns a stable cache key. Two references with the same document,
// API URL and fetch headers share a key.
func (r Reference) Key() string {
	h := sha256.New()
	if len(r.Document) > 0 {
		h.Write([]byte("doc\x00"))
		h.Write(r.Document)
	} else {
		h.Write([]byte("url\x00"))
		h.Write([]byte(r.URL))
	}
	h.Write([]byte{0})
	h.Write([]byte(r.APIURL))

	for _, name := range slices.Sorted(maps.Keys(r.Headers)) {
		h.Write([]byte{0})
		h.Write([]byte(name))
		for _, v := range r.Headers[name] {
			h.Write([]byte{1})
			h.Write([]byte(v))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ReferenceFromRequest extracts a spec reference from the JSON-RPC params or,
// failing that, from the x-openapi-url / x-api-url headers. forwarded is
// attached to the reference as fetch headers. The boolean is false when the
// request carries no reference.
func ReferenceFromRequest(params json.RawMessage, header http.Header, forwarded http.Header) (Reference, bool, error) {
	ref := Reference{Headers: forwarded}

	if meta := gjson.GetBytes(params, "_meta."+MetaKey); meta.Exists() {
		if !meta.IsObject() {
			return Reference{}, false, fmt.Errorf("%w: _meta %q must be an object", gateway.ErrSpecParse, MetaKey)
		}
		ref.URL = meta.Get("url").String()
		ref.APIURL = meta.Get("apiUrl").String()
		switch doc := meta.Get("document"); {
		case doc.IsObject():
			ref.Document = []byte(doc.Raw)
		case doc.Type == gjson.String:
			ref.Document = []byte(doc.String())
		}
		if ref.IsZero() {
			return Reference{}, false, fmt.Errorf("%w: _meta %q needs url or document", gateway.ErrSpecParse, MetaKey)
		}
	} else {
		ref.URL = header.Get(middleware.HeaderOpenAPIURL)
		ref.APIURL = header.Get(middleware.HeaderAPIURL)
		if ref.URL == "" {
			if ref.APIURL != "" {
				slog.Warn("x-api-url supplied without x-openapi-url; ignoring")
			}
			return Reference{}, false, nil
		}
	}

	if ref.URL != "" && len(ref.Document) == 0 {
		resolved, err := resolveSpecURL(ref.URL, ref.APIURL)
		if err != nil {
			return Reference{}, false, err
		}
		ref.URL = resolved
	}
	return ref, true, nil
}

// resolveSpecURL makes a relative spec URL absolute by appending it to the
// API URL, so "/openapi.json" with API URL "http://h/v1" fetches
// "http://h/v1/openapi.json".
func resolveSpecURL(specURL, apiURL string) (string, error) {
	u, err := url.Parse(specURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid spec URL %q: %w", gateway.ErrSpecFetch, specURL, err)
	}
	if u.IsAbs() {
		return specURL, nil
	}
	if apiURL == "" {
		return "", fmt.Errorf("%w: relative spec URL %q requires an API URL", gateway.ErrSpecFetch, specURL)
	}
	base, err := url.Parse(apiURL)
	if err != nil || !base.IsAbs() {
		return "", fmt.Errorf("%w: invalid API URL %q", gateway.ErrSpecFetch, apiURL)
	}
	return strings.TrimSuffix(apiURL, "/") + "/" + strings.TrimPrefix(specURL, "/"), nil
}

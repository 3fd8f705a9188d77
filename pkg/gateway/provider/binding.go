// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/stacklok/mcpgate/pkg/gateway"
	"github.com/stacklok/mcpgate/pkg/gateway/client"
	"github.com/stacklok/mcpgate/pkg/gateway/conversion"
	"github.com/stacklok/mcpgate/pkg/gateway/schema"
	"github.com/stacklok/mcpgate/pkg/networking"
)

// binding turns tool arguments into one request on one client.
type binding struct {
	desc      gateway.ToolDescriptor
	client    client.OutboundClient
	forwarded http.Header
	coercer   schema.TypeCoercer
	validator *gojsonschema.Schema
	maxBytes  int64
}

func (b *binding) invoke(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	if coerced, ok := b.coercer.TryCoerce(args).(map[string]any); ok {
		args = coerced
	}

	if err := b.validate(args); err != nil {
		slog.Debug("rejecting tool arguments", "tool", b.desc.Name, "error", err)
		return errorResult(err), nil
	}

	req, err := b.request(ctx, args)
	if err != nil {
		return errorResult(fmt.Errorf("%w: %w", gateway.ErrInvalidArguments, err)), nil
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, gateway.ErrClientClosed) {
			return nil, err
		}
		return errorResult(&gateway.ToolInvocationError{Tool: b.desc.Name, Err: err}), nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := networking.ReadLimited(resp.Body, b.maxBytes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return errorResult(&gateway.ToolInvocationError{Tool: b.desc.Name, Status: resp.StatusCode, Err: err}), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorResult(&gateway.ToolInvocationError{
			Tool:   b.desc.Name,
			Status: resp.StatusCode,
			Body:   previewBody(body),
		}), nil
	}
	return successResult(resp.Header.Get("Content-Type"), body), nil
}

func (b *binding) validate(args map[string]any) error {
	result, err := b.validator.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %w", gateway.ErrInvalidArguments, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", gateway.ErrInvalidArguments, strings.Join(msgs, "; "))
}

// request builds the upstream request. Headers the client was created with
// are added by its transport and win over header parameters of the same
// name; cookies are merged here so cookie parameters and forwarded cookies
// travel together.
func (b *binding) request(ctx context.Context, args map[string]any) (*http.Request, error) {
	path := b.desc.PathTemplate
	query := url.Values{}
	header := http.Header{}
	var cookies []string

	for _, p := range b.desc.Params {
		v, ok := args[p.Argument]
		if !ok || v == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required parameter %q", p.Argument)
			}
			continue
		}
		switch p.In {
		case gateway.ParamInPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(joinValue(v)))
		case gateway.ParamInQuery:
			addQuery(query, p.Name, v, p.Explode)
		case gateway.ParamInHeader:
			if len(b.forwarded.Values(p.Name)) > 0 {
				slog.Debug("forwarded header shadows header parameter", "tool", b.desc.Name, "header", p.Name)
				continue
			}
			header.Set(p.Name, joinValue(v))
		case gateway.ParamInCookie:
			cookies = append(cookies, p.Name+"="+joinValue(v))
		}
	}

	body, contentType, err := b.body(args)
	if err != nil {
		return nil, err
	}

	target := b.client.BaseURL() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, b.desc.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range header {
		req.Header[name] = values
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, */*;q=0.5")
	}
	if cookie := mergeCookies(b.forwarded.Get("Cookie"), cookies); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return req, nil
}

func (b *binding) body(args map[string]any) ([]byte, string, error) {
	bb := b.desc.Body
	if bb == nil {
		return nil, "", nil
	}

	var payload any
	if bb.Argument != "" {
		v, ok := args[bb.Argument]
		if !ok {
			return nil, "", nil
		}
		payload = v
	} else {
		obj := map[string]any{}
		for _, name := range bb.Flattened {
			if v, ok := args[name]; ok {
				obj[name] = v
			}
		}
		if len(obj) == 0 && !bb.Required {
			return nil, "", nil
		}
		payload = obj
	}

	switch bb.ContentType {
	case conversion.ContentTypeForm:
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("form body must be an object")
		}
		form := url.Values{}
		for _, k := range slices.Sorted(maps.Keys(obj)) {
			addQuery(form, k, obj[k], true)
		}
		return []byte(form.Encode()), bb.ContentType, nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode body: %w", err)
		}
		return data, bb.ContentType, nil
	}
}

func addQuery(values url.Values, name string, v any, explode bool) {
	switch x := v.(type) {
	case []any:
		if !explode {
			values.Add(name, joinValue(x))
			return
		}
		for _, item := range x {
			values.Add(name, scalar(item))
		}
	case map[string]any:
		if !explode {
			values.Add(name, joinValue(x))
			return
		}
		for _, k := range slices.Sorted(maps.Keys(x)) {
			values.Add(k, scalar(x[k]))
		}
	default:
		values.Add(name, scalar(v))
	}
}

// joinValue renders v in the OpenAPI simple style: arrays and objects are
// comma-joined.
func joinValue(v any) string {
	switch x := v.(type) {
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = scalar(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		parts := make([]string, 0, 2*len(x))
		for _, k := range slices.Sorted(maps.Keys(x)) {
			parts = append(parts, k, scalar(x[k]))
		}
		return strings.Join(parts, ",")
	default:
		return scalar(v)
	}
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

func mergeCookies(forwarded string, params []string) string {
	parts := make([]string, 0, len(params)+1)
	if forwarded = strings.TrimSpace(forwarded); forwarded != "" {
		parts = append(parts, forwarded)
	}
	parts = append(parts, params...)
	return strings.Join(parts, "; ")
}

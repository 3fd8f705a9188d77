// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	// DefaultMaxResponseSize is the default maximum response body size (10MiB).
	DefaultMaxResponseSize = 10 << 20

	// DefaultErrorPreviewSize is the maximum size of error body preview in HTTPError.
	DefaultErrorPreviewSize = 1024
)

// ErrResponseTooLarge is returned when a body exceeds the configured maximum.
var ErrResponseTooLarge = errors.New("response body exceeds maximum size")

// FetchOption configures a fetch request.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	headers         http.Header
	maxResponseSize int64
}

func newFetchOptions() *fetchOptions {
	return &fetchOptions{
		headers:         make(http.Header),
		maxResponseSize: DefaultMaxResponseSize,
	}
}

// WithHeader adds a single header to the request.
func WithHeader(key, value string) FetchOption {
	return func(opts *fetchOptions) {
		opts.headers.Set(key, value)
	}
}

// WithHeaders adds multiple headers to the request.
func WithHeaders(headers http.Header) FetchOption {
	return func(opts *fetchOptions) {
		for key, values := range headers {
			for _, value := range values {
				opts.headers.Add(key, value)
			}
		}
	}
}

// WithMaxResponseSize sets the maximum response body size.
// If not set, DefaultMaxResponseSize is used.
func WithMaxResponseSize(size int64) FetchOption {
	return func(opts *fetchOptions) {
		if size > 0 {
			opts.maxResponseSize = size
		}
	}
}

// FetchBytes performs a GET and returns the body. A non-2xx status yields an
// *HTTPError carrying a body preview; a body larger than the maximum yields
// ErrResponseTooLarge.
func FetchBytes(ctx context.Context, client HTTPClient, requestURL string, opts ...FetchOption) ([]byte, error) {
	options := newFetchOptions()
	for _, opt := range opts {
		opt(options)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range options.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := ReadLimited(resp.Body, options.maxResponseSize)
	if err != nil && !errors.Is(err, ErrResponseTooLarge) {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewHTTPError(resp.StatusCode, requestURL, preview(body))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", requestURL, err)
	}
	return body, nil
}

// ReadLimited reads at most limit bytes from r. If r holds more, the first
// limit bytes are returned together with ErrResponseTooLarge.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return body[:limit], ErrResponseTooLarge
	}
	return body, nil
}

func preview(body []byte) string {
	if len(body) > DefaultErrorPreviewSize {
		return string(body[:DefaultErrorPreviewSize])
	}
	return string(body)
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package networking builds the outbound HTTP clients used to fetch API
// descriptions and to invoke upstream API operations.
package networking

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"
)

var privateIPBlocks []*net.IPNet

// HttpTimeout is the timeout for outgoing HTTP requests
const HttpTimeout = 30 * time.Second

// HTTPClient is the subset of *http.Client used by the fetch helpers.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Dialer control function for validating addresses prior to connection
func protectedDialerControl(_, address string, _ syscall.RawConn) error {
	return AddressReferencesPrivateIp(address)
}

// ValidatingTransport rejects requests whose URL is not http or https.
type ValidatingTransport struct {
	Transport http.RoundTripper
}

// RoundTrip validates the request URL prior to forwarding
func (t *ValidatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil || (req.URL.Scheme != "http" && req.URL.Scheme != "https") || req.URL.Host == "" {
		return nil, fmt.Errorf("the supplied URL %s is not an http(s) URL", req.URL)
	}
	return t.Transport.RoundTrip(req)
}

// CloseIdleConnections closes idle connections of the wrapped transport.
func (t *ValidatingTransport) CloseIdleConnections() {
	closeIdle(t.Transport)
}

// headerTransport injects a fixed header set into every request. Headers the
// request already carries are left alone.
type headerTransport struct {
	transport http.RoundTripper
	headers   http.Header
}

// RoundTrip adds the headers and forwards the request
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	newReq := req.Clone(req.Context())
	for name, values := range t.headers {
		if len(newReq.Header.Values(name)) > 0 {
			continue
		}
		for _, v := range values {
			newReq.Header.Add(name, v)
		}
	}
	return t.transport.RoundTrip(newReq)
}

func (t *headerTransport) CloseIdleConnections() {
	closeIdle(t.transport)
}

func closeIdle(rt http.RoundTripper) {
	if c, ok := rt.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

// HttpClientBuilder provides a fluent interface for building HTTP clients.
// Every Build call creates a fresh transport, so clients never share a
// connection pool.
type HttpClientBuilder struct {
	clientTimeout         time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	caCertPath            string
	allowPrivate          bool
	headers               http.Header
	wrap                  func(http.RoundTripper) http.RoundTripper
}

// NewHttpClientBuilder returns a new HttpClientBuilder
func NewHttpClientBuilder() *HttpClientBuilder {
	return &HttpClientBuilder{
		clientTimeout:         HttpTimeout,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 10 * time.Second,
		allowPrivate:          true,
	}
}

// WithTimeout sets the overall client timeout. Zero disables it.
func (b *HttpClientBuilder) WithTimeout(d time.Duration) *HttpClientBuilder {
	b.clientTimeout = d
	return b
}

// WithCABundle sets the CA certificate bundle path
func (b *HttpClientBuilder) WithCABundle(path string) *HttpClientBuilder {
	b.caCertPath = path
	return b
}

// WithPrivateIPs allows connections to private IP addresses
func (b *HttpClientBuilder) WithPrivateIPs(allow bool) *HttpClientBuilder {
	b.allowPrivate = allow
	return b
}

// WithHeaders sets headers injected into every request. The header set is
// copied.
func (b *HttpClientBuilder) WithHeaders(h http.Header) *HttpClientBuilder {
	b.headers = h.Clone()
	return b
}

// WithTransportWrapper wraps the final round tripper, e.g. for instrumentation.
func (b *HttpClientBuilder) WithTransportWrapper(wrap func(http.RoundTripper) http.RoundTripper) *HttpClientBuilder {
	b.wrap = wrap
	return b
}

// Build creates the configured HTTP client
func (b *HttpClientBuilder) Build() (*http.Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   b.tlsHandshakeTimeout,
		ResponseHeaderTimeout: b.responseHeaderTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	if !b.allowPrivate {
		transport.DialContext = (&net.Dialer{
			Timeout: b.tlsHandshakeTimeout,
			Control: protectedDialerControl,
		}).DialContext
	}

	if b.caCertPath != "" {
		caCert, err := os.ReadFile(b.caCertPath) // #nosec G304 - path comes from operator config
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate bundle: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate bundle")
		}

		transport.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    caCertPool,
		}
	}

	var clientTransport http.RoundTripper = &ValidatingTransport{
		Transport: transport,
	}

	if len(b.headers) > 0 {
		clientTransport = &headerTransport{
			transport: clientTransport,
			headers:   b.headers,
		}
	}

	if b.wrap != nil {
		clientTransport = b.wrap(clientTransport)
	}

	// no cookie jar: Set-Cookie from upstream is never replayed
	return &http.Client{
		Transport: clientTransport,
		Timeout:   b.clientTimeout,
	}, nil
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package testkit provides upstream API fakes for gateway tests.
//
// An APIServer is an httptest server that serves an OpenAPI document at
// /openapi.json, answers the operations it describes and records every
// request it receives, so tests can assert on forwarded headers.
package testkit

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SpecPath is where an APIServer serves its document.
const SpecPath = "/openapi.json"

// ServerURLPlaceholder is replaced with the server's URL in served documents.
const ServerURLPlaceholder = "{{SERVER_URL}}"

// RecordedRequest is one request seen by an APIServer.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

type route struct {
	method  string
	pattern string
	handler http.HandlerFunc
}

// APIServer is a fake upstream API.
type APIServer struct {
	*httptest.Server

	spec        string
	routes      []route
	middlewares []func(http.Handler) http.Handler

	mu       sync.Mutex
	requests []RecordedRequest
}

// APIServerOption configures an APIServer.
type APIServerOption func(*APIServer) error

// WithSpec sets the served document. ServerURLPlaceholder is substituted.
func WithSpec(doc string) APIServerOption {
	return func(s *APIServer) error {
		if s.spec != "" {
			return fmt.Errorf("spec already set")
		}
		s.spec = doc
		return nil
	}
}

// WithRoute registers a handler for method and chi pattern.
func WithRoute(method, pattern string, handler http.HandlerFunc) APIServerOption {
	return func(s *APIServer) error {
		s.routes = append(s.routes, route{method: method, pattern: pattern, handler: handler})
		return nil
	}
}

// WithMiddlewares adds middlewares after the recorder.
func WithMiddlewares(middlewares ...func(http.Handler) http.Handler) APIServerOption {
	return func(s *APIServer) error {
		if len(s.middlewares) > 0 {
			return fmt.Errorf("middlewares already set")
		}
		s.middlewares = middlewares
		return nil
	}
}

// NewAPIServer starts an APIServer. Callers must Close it.
func NewAPIServer(options ...APIServerOption) (*APIServer, error) {
	s := &APIServer{}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	router := chi.NewRouter()
	router.Use(append([]func(http.Handler) http.Handler{
		middleware.Recoverer,
		s.record,
	}, s.middlewares...)...)

	router.Get(SpecPath, s.serveSpec)
	for _, r := range s.routes {
		router.MethodFunc(r.method, r.pattern, r.handler)
	}

	s.Server = httptest.NewServer(router)
	return s, nil
}

// SpecURL is the absolute URL of the served document.
func (s *APIServer) SpecURL() string {
	return s.URL + SpecPath
}

// Requests returns a copy of the recorded requests, excluding document fetches.
func (s *APIServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.DeleteFunc(slices.Clone(s.requests), func(r RecordedRequest) bool {
		return r.Path == SpecPath
	})
}

// SpecFetches counts requests for the document.
func (s *APIServer) SpecFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Path == SpecPath {
			n++
		}
	}
	return n
}

func (s *APIServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) serveSpec(w http.ResponseWriter, _ *http.Request) {
	if s.spec == "" {
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, strings.ReplaceAll(s.spec, ServerURLPlaceholder, s.URL))
}

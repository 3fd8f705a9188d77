// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/mcpgate/pkg/logger"
	"github.com/stacklok/mcpgate/pkg/versions"
)

// StatusResponse is the body of /status.
type StatusResponse struct {
	Version          string `json:"version"`
	StaticTools      int    `json:"static_tools"`
	InFlightCalls    int64  `json:"in_flight_calls"`
	OpenClients      int64  `json:"open_clients"`
	SpecCacheEntries int    `json:"spec_cache_entries"`
}

// handleHealth answers /health and /ping with 200 while the server responds.
func (*Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness answers /readyz: 503 until the listener is serving.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	select {
	case <-s.ready:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Version:       versions.GetVersionInfo().Version,
		StaticTools:   s.staticTools,
		InFlightCalls: s.dispatcher.InFlight(),
		OpenClients:   s.manager.Open(),
	}
	if cache, ok := s.resolver.(interface{ Len() int }); ok {
		resp.SpecCacheEntries = cache.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

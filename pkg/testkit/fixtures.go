// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// EchoSpec describes POST /echo {msg} returning msg.
const EchoSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Echo API", "version": "1.0.0"},
  "servers": [{"url": "{{SERVER_URL}}"}],
  "paths": {
    "/echo": {
      "post": {
        "operationId": "echo",
        "summary": "Echo a message back",
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["msg"],
                "properties": {"msg": {"type": "string", "description": "Message to echo"}}
              }
            }
          }
        },
        "responses": {"200": {"description": "The message"}}
      }
    }
  }
}`

// DoubleSpec describes GET /double/{n} returning 2n.
const DoubleSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Double API", "version": "1.0.0"},
  "servers": [{"url": "{{SERVER_URL}}"}],
  "paths": {
    "/double/{n}": {
      "get": {
        "operationId": "double",
        "summary": "Double a number",
        "parameters": [
          {"name": "n", "in": "path", "required": true, "schema": {"type": "integer"}}
        ],
        "responses": {"200": {"description": "Twice n"}}
      }
    }
  }
}`

// EchoHandler answers the echo operation with the JSON-encoded message.
func EchoHandler(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Msg string `json:"msg"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	WriteJSON(w, http.StatusOK, in.Msg)
}

// DoubleHandler answers the double operation.
func DoubleHandler(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		http.Error(w, "n must be an integer", http.StatusBadRequest)
		return
	}
	WriteJSON(w, http.StatusOK, n*2)
}

// NewEchoAPI starts an APIServer serving EchoSpec.
func NewEchoAPI(options ...APIServerOption) (*APIServer, error) {
	return NewAPIServer(append([]APIServerOption{
		WithSpec(EchoSpec),
		WithRoute(http.MethodPost, "/echo", EchoHandler),
	}, options...)...)
}

// NewDoubleAPI starts an APIServer serving DoubleSpec.
func NewDoubleAPI(options ...APIServerOption) (*APIServer, error) {
	return NewAPIServer(append([]APIServerOption{
		WithSpec(DoubleSpec),
		WithRoute(http.MethodGet, "/double/{n}", DoubleHandler),
	}, options...)...)
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/mcpgate/pkg/gateway"
)

// ErrorData is the data member of gateway JSON-RPC errors.
type ErrorData struct {
	Kind string `json:"kind"`
}

// writeRPCError answers a JSON-RPC request with an error. The HTTP status is
// 200 because the transport succeeded; the failure is in the JSON-RPC body.
func writeRPCError(w http.ResponseWriter, id any, err error) {
	kind := gateway.Kind(err)
	resp := mcp.NewJSONRPCError(
		mcp.NewRequestId(id),
		gateway.RPCCode(err),
		kind+": "+err.Error(),
		ErrorData{Kind: kind},
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		slog.Error("failed to write JSON-RPC error", "error", encErr)
	}
}

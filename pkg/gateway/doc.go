// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway holds the domain types and errors shared by the mcpgate
// subpackages.
//
// A call that carries an API description reference is served in five steps:
// the spec package resolves the reference, the client package hands out an
// outbound HTTP client owned by that call, the provider package binds the
// converted operations to that client, the callctx package attaches the
// resulting provider to the call's context, and the dispatch package merges
// the provider into tools/list and tools/call. Nothing produced for one call
// is reachable from another.
package gateway

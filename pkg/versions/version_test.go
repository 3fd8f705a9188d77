// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package versions

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) { //nolint:paralleltest // modifies package variables
	origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
	})

	tests := []struct {
		name          string
		version       string
		commit        string
		buildDate     string
		wantVersion   string
		wantBuildDate string
	}{
		{"dev with unknown commit", "dev", unknownStr, unknownStr, "build-unknown", unknownStr},
		{"dev with long commit", "dev", "abc123def456789", unknownStr, "build-abc123de", unknownStr},
		{"dev with short commit", "dev", "short", unknownStr, "build-short", unknownStr},
		{"release", "v1.2.3", "abc123", "2024-01-15T10:30:00Z", "v1.2.3", "2024-01-15 10:30:00 UTC"},
		{"unparsable date", "v2.0.0", "def456", "not-a-date", "v2.0.0", "not-a-date"},
	}

	for _, tt := range tests { //nolint:paralleltest // modifies package variables
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit, BuildDate = tt.version, tt.commit, tt.buildDate

			got := GetVersionInfo()

			assert.Equal(t, tt.wantVersion, got.Version)
			assert.Equal(t, tt.commit, got.Commit)
			assert.Equal(t, tt.wantBuildDate, got.BuildDate)
			assert.Equal(t, runtime.Version(), got.GoVersion)
			assert.Equal(t, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), got.Platform)
		})
	}
}

func TestUserAgent(t *testing.T) { //nolint:paralleltest // modifies package variables
	origVersion := Version
	t.Cleanup(func() { Version = origVersion })

	Version = "v0.3.0"
	assert.Equal(t, "mcpgate/v0.3.0", UserAgent())
}

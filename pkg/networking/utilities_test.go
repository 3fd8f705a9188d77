// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"valid https url", "https://example.com", true},
		{"valid http url", "http://example.com", true},
		{"https url with path", "https://example.com/openapi.json", true},
		{"https url with port", "https://example.com:8080", true},
		{"empty string", "", false},
		{"not a url", "not-a-url", false},
		{"ftp scheme", "ftp://example.com", false},
		{"relative path", "/openapi.json", false},
		{"missing host", "https:///path", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsURL(tt.input), "Input: %s", tt.input)
		})
	}
}

func TestAddressReferencesPrivateIp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"public ipv4", "8.8.8.8:443", false},
		{"public ipv6", "[2001:4860:4860::8888]:443", false},
		{"loopback", "127.0.0.1:8080", true},
		{"rfc1918", "10.1.2.3:80", true},
		{"rfc1918 172", "172.20.0.1:80", true},
		{"link local", "169.254.169.254:80", true},
		{"ipv6 loopback", "[::1]:80", true},
		{"unspecified", "0.0.0.0:80", true},
		{"not an ip", "example.com:80", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := AddressReferencesPrivateIp(tt.address)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

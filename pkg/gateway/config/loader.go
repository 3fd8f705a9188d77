// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-core/env"
)

// envRefPattern matches ${NAME} references and the $${ escape. Any other $
// is literal.
var envRefPattern = regexp.MustCompile(`\$\$\{|\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// YAMLLoader loads a Config from a YAML file.
type YAMLLoader struct {
	path      string
	envReader env.Reader
}

// NewYAMLLoader creates a loader for path. ${NAME} references in the file
// are expanded with envReader; $${ produces a literal ${.
func NewYAMLLoader(path string, envReader env.Reader) *YAMLLoader {
	return &YAMLLoader{path: path, envReader: envReader}
}

// Load reads, expands and decodes the file, then applies defaults.
// Unknown keys are rejected.
func (l *YAMLLoader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.path, err)
	}
	return l.parse(data)
}

func (l *YAMLLoader) parse(data []byte) (*Config, error) {
	expanded := l.expand(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, l.path, err)
	}

	if err := cfg.EnsureDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *YAMLLoader) expand(text string) string {
	return envRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		if match == "$${" {
			return "${"
		}
		return l.envReader.Getenv(match[2 : len(match)-1])
	})
}

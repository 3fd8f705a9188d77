// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config holds the gateway configuration model.
//
// Configuration is read from a YAML file by YAMLLoader, completed with
// defaults from DefaultConfig and checked by DefaultValidator:
//
//	cfg, err := config.NewYAMLLoader(path, &env.OSReader{}).Load()
//	if err != nil {
//		return err
//	}
//	if err := config.NewValidator().Validate(cfg); err != nil {
//		return err
//	}
//
// String values may reference environment variables as ${NAME}.
package config

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// lamachat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.lamachat/config.toml
//   - ~/.lamachat/config.json
//   - Built-in defaults
//
// A Watcher can hot-reload the global configuration when the file changes.
package config

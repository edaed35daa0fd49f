// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads morsefs configuration.
//
// Configuration is loaded from a single file specified by either the
// MORSEFS_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no search path and no per-field
// environment override: the file is the single source of truth.
//
// Files ending in .json or .jsonc are parsed as JSON with comments and
// trailing commas allowed; everything else is parsed as YAML.
//
// ${HOME} and ${VAR:-default} patterns in the mountpoint are expanded
// after loading.
//
// Key exports:
//
//   - [Config] -- mountpoint, logging, and the endpoint list
//   - [Default] -- a single "morse" endpoint with default limits
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- aggregate validation
package config

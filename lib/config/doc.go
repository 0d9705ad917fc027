// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for bureau-mux.
//
// Configuration comes from at most one file, named by the
// BUREAU_MUX_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). Without either, [Default] applies. There is no
// automatic file search.
//
// The file may contain development and production sections that
// override base values when [Config].Environment matches. Production
// disables client auto-start unless its section says otherwise.
//
// ${VAR} and ${VAR:-default} are expanded in path fields after loading.
package config

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers shared by the bureau-mux
// binaries: fatal error reporting before the structured logger exists,
// and construction of that logger.
package process

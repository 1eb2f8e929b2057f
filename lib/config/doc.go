// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the helpdesk
// binaries.
//
// Configuration is loaded from a single file specified by either the
// HELPDESK_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production is stricter: [Config.Validate]
// requires an API token and rejects plain ws:// realtime URLs.
//
// ${VAR} and ${VAR:-default} patterns in URL and token fields are
// expanded from the process environment after loading, so tokens need
// not be written into the file.
//
// Durations are kept as strings in YAML and parsed by Validate; the
// typed accessors ([Config.APITimeout], [Config.EchoWindow],
// [Config.Backoff]) assume Validate has passed.
package config

// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the wasix-journal
// tooling.
//
// Configuration is loaded from a single file specified by either the
// WASIX_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search. Files are YAML;
// files ending in .json or .jsonc are accepted as JSON with comments.
//
// The configuration file supports environment-specific sections
// (development, production) that override base values when
// [Config].Environment matches. Production defaults are stricter:
// journal appends are synced and networking is disabled unless the
// production section says otherwise.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Journal and Runtime sections
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.JournalOptions] -- converts the journal section for [journal.Open]
package config

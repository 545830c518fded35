// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// wasix-journal inspects, verifies and replays WASIX syscall journals.
//
// Commands:
//
//   - inspect: list records, optionally with their fields
//   - verify: decode every record and check the hash chain
//   - replay: restore a journal into fresh instances and print their
//     descriptor tables
//   - truncate: discard records before a snapshot
//   - convert: copy records between the file and SQLite backends
//   - export, import: age-encrypted journal archives
//   - version
//
// Configuration comes from --config or WASIX_CONFIG (see lib/config);
// without either, built-in defaults apply.
package main

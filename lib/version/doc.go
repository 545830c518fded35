// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports what build of the journal tooling is
// running and which journal format it writes. Release builds inject
// [Version], [GitCommit], [GitDirty] and [BuildTime] with -ldflags -X;
// development builds fall back to the VCS stamp in the binary.
package version

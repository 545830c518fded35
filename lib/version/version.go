// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// These variables are set via -ldflags at build time, for example:
//
//	go build -ldflags "-X github.com/hghpublic/wasmerio-wasmer/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Values left at "unknown" are filled from the VCS stamp the Go
// toolchain embeds in the binary, when there is one.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// JournalFormat is the journal file format version written by this
// build. Readers accept this version and every earlier one.
const JournalFormat = 1

var stampOnce sync.Once

// fillFromBuildInfo copies vcs.* settings into the variables -ldflags
// did not set.
func fillFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if GitCommit == "unknown" && setting.Value != "" {
				GitCommit = setting.Value[:min(len(setting.Value), 12)]
			}
		case "vcs.modified":
			if setting.Value == "true" {
				GitDirty = "true"
			}
		case "vcs.time":
			if BuildTime == "unknown" && setting.Value != "" {
				BuildTime = setting.Value
			}
		}
	}
}

// Info returns "VERSION (COMMIT[-dirty], BUILDTIME)".
func Info() string {
	stampOnce.Do(fillFromBuildInfo)
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full adds the Go toolchain, platform and journal format to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s\n  Journal format: %d",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH, JournalFormat)
}

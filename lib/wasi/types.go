// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasi

import (
	"fmt"
	"strings"
)

// Fd is a descriptor identifier, meaningful only within one instance's
// descriptor table.
type Fd uint32

// Standard descriptors present in every instance.
const (
	FdStdin  Fd = 0
	FdStdout Fd = 1
	FdStderr Fd = 2
)

// Rights is a bitmask of operations permitted on a descriptor.
type Rights uint64

const (
	RightFdDatasync Rights = 1 << iota
	RightFdRead
	RightFdSeek
	RightFdFdstatSetFlags
	RightFdSync
	RightFdTell
	RightFdWrite
	RightFdAdvise
	RightFdAllocate
	RightPathCreateDirectory
	RightPathCreateFile
	RightPathLinkSource
	RightPathLinkTarget
	RightPathOpen
	RightFdReaddir
	RightPathReadlink
	RightPathRenameSource
	RightPathRenameTarget
	RightPathFilestatGet
	RightPathFilestatSetSize
	RightPathFilestatSetTimes
	RightFdFilestatGet
	RightFdFilestatSetSize
	RightFdFilestatSetTimes
	RightPathSymlink
	RightPathRemoveDirectory
	RightPathUnlinkFile
	RightPollFdReadwrite
	RightSockShutdown
	RightSockAccept

	// RightsAll grants every right defined above.
	RightsAll Rights = 1<<30 - 1
)

// Contains reports whether every bit of other is also set in r.
func (r Rights) Contains(other Rights) bool { return r&other == other }

// Oflags controls how path_open creates or opens a file.
type Oflags uint16

const (
	OflagCreat     Oflags = 1 << 0
	OflagDirectory Oflags = 1 << 1
	OflagExcl      Oflags = 1 << 2
	OflagTrunc     Oflags = 1 << 3
)

func (o Oflags) String() string {
	return flagString(uint64(o), []string{"creat", "directory", "excl", "trunc"})
}

// Fdflags are per-description status flags.
type Fdflags uint16

const (
	FdflagAppend   Fdflags = 1 << 0
	FdflagDsync    Fdflags = 1 << 1
	FdflagNonblock Fdflags = 1 << 2
	FdflagRsync    Fdflags = 1 << 3
	FdflagSync     Fdflags = 1 << 4
)

func (f Fdflags) String() string {
	return flagString(uint64(f), []string{"append", "dsync", "nonblock", "rsync", "sync"})
}

// LookupFlags control path resolution.
type LookupFlags uint32

const LookupSymlinkFollow LookupFlags = 1 << 0

// Whence selects the base of a seek.
type Whence uint8

const (
	WhenceSet Whence = 0
	WhenceCur Whence = 1
	WhenceEnd Whence = 2
)

// Filetype classifies the resource behind a descriptor.
type Filetype uint8

const (
	FiletypeUnknown         Filetype = 0
	FiletypeCharacterDevice Filetype = 2
	FiletypeDirectory       Filetype = 3
	FiletypeRegularFile     Filetype = 4
	FiletypeSocketDgram     Filetype = 5
	FiletypeSocketStream    Filetype = 6
)

func (f Filetype) String() string {
	switch f {
	case FiletypeCharacterDevice:
		return "character_device"
	case FiletypeDirectory:
		return "directory"
	case FiletypeRegularFile:
		return "regular_file"
	case FiletypeSocketDgram:
		return "socket_dgram"
	case FiletypeSocketStream:
		return "socket_stream"
	default:
		return "unknown"
	}
}

// ExitCode is the status an instance terminated with.
type ExitCode uint32

// ExitCodeFromErrno is the exit code used when an instance is
// terminated by the runtime because of err.
func ExitCodeFromErrno(errno Errno) ExitCode { return ExitCode(errno) }

func flagString(value uint64, names []string) string {
	if value == 0 {
		return "none"
	}
	var parts []string
	for bit, name := range names {
		if value&(1<<bit) != 0 {
			parts = append(parts, name)
			value &^= 1 << bit
		}
	}
	if value != 0 {
		parts = append(parts, fmt.Sprintf("%#x", value))
	}
	return strings.Join(parts, "|")
}

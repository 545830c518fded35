// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"errors"
	"io"
	"maps"
	"net/netip"
	"slices"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtfs"
	"github.com/hghpublic/wasmerio-wasmer/virtnet"
)

// maxDescriptors bounds the descriptor table. Allocation beyond it
// fails with ErrnoMfile.
const maxDescriptors = 4096

// FdAllocator chooses the id of a new descriptor. inUse reports ids
// that are taken; the returned id must be free and below limit.
type FdAllocator interface {
	Allocate(inUse func(wasi.Fd) bool, limit wasi.Fd) (wasi.Fd, bool)
}

// LowestFree allocates the lowest free id not below Min, the POSIX
// rule.
type LowestFree struct {
	Min wasi.Fd
}

func (a LowestFree) Allocate(inUse func(wasi.Fd) bool, limit wasi.Fd) (wasi.Fd, bool) {
	for fd := a.Min; fd < limit; fd++ {
		if !inUse(fd) {
			return fd, true
		}
	}
	return 0, false
}

// openDescription is the state shared by every descriptor duplicated
// from one open: the file or socket, the cursor and the status flags.
// It is released when the last descriptor referring to it closes.
type openDescription struct {
	refs     int
	filetype wasi.Filetype
	path     string
	file     virtfs.File
	socket   virtnet.Socket
	offset   int64
	flags    wasi.Fdflags

	reader io.Reader
	writer io.Writer
}

func (d *openDescription) isStdio() bool {
	return d.reader != nil || d.writer != nil
}

func (d *openDescription) release() error {
	d.refs--
	if d.refs > 0 {
		return nil
	}
	var errs []error
	if d.file != nil {
		errs = append(errs, d.file.Close())
	}
	if d.socket != nil {
		errs = append(errs, d.socket.Close())
	}
	return errors.Join(errs...)
}

// descriptor is one entry of the table. Rights are per descriptor;
// everything else lives in the shared description.
type descriptor struct {
	description      *openDescription
	rightsBase       wasi.Rights
	rightsInheriting wasi.Rights
}

func (d *descriptor) require(rights wasi.Rights) error {
	if !d.rightsBase.Contains(rights) {
		return wasi.ErrnoNotcapable
	}
	return nil
}

// FdInfo describes one descriptor for inspection and comparison.
type FdInfo struct {
	Fd               wasi.Fd
	Filetype         wasi.Filetype
	Path             string
	Offset           int64
	Flags            wasi.Fdflags
	RightsBase       wasi.Rights
	RightsInheriting wasi.Rights
	LocalAddr        netip.AddrPort
	PeerAddr         netip.AddrPort
}

// FdTable maps descriptor ids to open descriptions. It is not safe for
// concurrent use; the owning Env serializes access under its call lock.
type FdTable struct {
	allocator FdAllocator
	entries   map[wasi.Fd]*descriptor
}

// NewFdTable returns an empty table. A nil allocator means LowestFree.
func NewFdTable(allocator FdAllocator) *FdTable {
	if allocator == nil {
		allocator = LowestFree{}
	}
	return &FdTable{allocator: allocator, entries: make(map[wasi.Fd]*descriptor)}
}

func (t *FdTable) inUse(fd wasi.Fd) bool {
	_, ok := t.entries[fd]
	return ok
}

// Len returns the number of open descriptors.
func (t *FdTable) Len() int { return len(t.entries) }

func (t *FdTable) get(fd wasi.Fd) (*descriptor, error) {
	entry, ok := t.entries[fd]
	if !ok {
		return nil, wasi.ErrnoBadf
	}
	return entry, nil
}

// insert places d under a fresh id from the allocator and takes a
// reference on its description.
func (t *FdTable) insert(d *descriptor) (wasi.Fd, error) {
	fd, ok := t.allocator.Allocate(t.inUse, maxDescriptors)
	if !ok {
		return 0, wasi.ErrnoMfile
	}
	if t.inUse(fd) || fd >= maxDescriptors {
		return 0, wasi.ErrnoMfile
	}
	d.description.refs++
	t.entries[fd] = d
	return fd, nil
}

// insertAt places d under a specific, free id.
func (t *FdTable) insertAt(fd wasi.Fd, d *descriptor) error {
	if fd >= maxDescriptors {
		return wasi.ErrnoMfile
	}
	if t.inUse(fd) {
		return wasi.ErrnoExist
	}
	d.description.refs++
	t.entries[fd] = d
	return nil
}

// duplicate installs a new descriptor sharing source's description.
func (t *FdTable) duplicate(source wasi.Fd) (wasi.Fd, error) {
	entry, err := t.get(source)
	if err != nil {
		return 0, err
	}
	return t.insert(&descriptor{
		description:      entry.description,
		rightsBase:       entry.rightsBase,
		rightsInheriting: entry.rightsInheriting,
	})
}

// remove drops fd and releases its description.
func (t *FdTable) remove(fd wasi.Fd) error {
	entry, err := t.get(fd)
	if err != nil {
		return err
	}
	delete(t.entries, fd)
	return entry.description.release()
}

// move renumbers from to to. When replace is set an open descriptor at
// to is closed first (the dup2 rule); otherwise an occupied target is
// ErrnoExist.
func (t *FdTable) move(from, to wasi.Fd, replace bool) error {
	entry, err := t.get(from)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if to >= maxDescriptors {
		return wasi.ErrnoBadf
	}
	if t.inUse(to) {
		if !replace {
			return wasi.ErrnoExist
		}
		if err := t.remove(to); err != nil {
			return err
		}
	}
	delete(t.entries, from)
	t.entries[to] = entry
	return nil
}

// closeAll releases every descriptor.
func (t *FdTable) closeAll() error {
	var errs []error
	for _, fd := range slices.Sorted(maps.Keys(t.entries)) {
		errs = append(errs, t.remove(fd))
	}
	return errors.Join(errs...)
}

func (t *FdTable) snapshot() []FdInfo {
	infos := make([]FdInfo, 0, len(t.entries))
	for _, fd := range slices.Sorted(maps.Keys(t.entries)) {
		entry := t.entries[fd]
		description := entry.description
		info := FdInfo{
			Fd:               fd,
			Filetype:         description.filetype,
			Path:             description.path,
			Offset:           description.offset,
			Flags:            description.flags,
			RightsBase:       entry.rightsBase,
			RightsInheriting: entry.rightsInheriting,
		}
		if description.socket != nil {
			info.LocalAddr = description.socket.LocalAddr()
			info.PeerAddr = description.socket.PeerAddr()
		}
		infos = append(infos, info)
	}
	return infos
}

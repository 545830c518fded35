// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

// EntryKind identifies an entry variant in persisted records. These
// values are protocol constants.
type EntryKind uint16

const (
	KindOpenFileDescriptor      EntryKind = 1
	KindDuplicateFileDescriptor EntryKind = 2
	KindCloseFileDescriptor     EntryKind = 3
	KindCreateDirectory         EntryKind = 4
	KindRemoveDirectory         EntryKind = 5
	KindUnlinkFile              EntryKind = 6
	KindPathRename              EntryKind = 7
	KindFileDescriptorWrite     EntryKind = 8
	KindFileDescriptorSeek      EntryKind = 9
	KindFileDescriptorSetFlags  EntryKind = 10
	KindFileDescriptorSetRights EntryKind = 11
	KindFileDescriptorSetSize   EntryKind = 12
	KindChangeDirectory         EntryKind = 13
	KindProcessExit             EntryKind = 14
	KindSnapshot                EntryKind = 15

	KindPortBridge      EntryKind = 20
	KindPortUnbridge    EntryKind = 21
	KindPortDhcpAcquire EntryKind = 22
	KindPortAddAddr     EntryKind = 23
	KindPortDelAddr     EntryKind = 24
	KindPortAddrClear   EntryKind = 25
	KindPortGatewaySet  EntryKind = 26
	KindPortRouteAdd    EntryKind = 27
	KindPortRouteDel    EntryKind = 28
	KindPortRouteClear  EntryKind = 29

	KindSocketBindRaw    EntryKind = 30
	KindSocketListenTCP  EntryKind = 31
	KindSocketBindUDP    EntryKind = 32
	KindSocketBindICMP   EntryKind = 33
	KindSocketConnectTCP EntryKind = 34
)

// kindInfo is the registry of variants: the name used in logs and
// tooling, and a constructor for decoding.
var kindInfo = map[EntryKind]struct {
	name string
	make func() Entry
}{
	KindOpenFileDescriptor:      {"open_file_descriptor", func() Entry { return new(OpenFileDescriptor) }},
	KindDuplicateFileDescriptor: {"duplicate_file_descriptor", func() Entry { return new(DuplicateFileDescriptor) }},
	KindCloseFileDescriptor:     {"close_file_descriptor", func() Entry { return new(CloseFileDescriptor) }},
	KindCreateDirectory:         {"create_directory", func() Entry { return new(CreateDirectory) }},
	KindRemoveDirectory:         {"remove_directory", func() Entry { return new(RemoveDirectory) }},
	KindUnlinkFile:              {"unlink_file", func() Entry { return new(UnlinkFile) }},
	KindPathRename:              {"path_rename", func() Entry { return new(PathRename) }},
	KindFileDescriptorWrite:     {"file_descriptor_write", func() Entry { return new(FileDescriptorWrite) }},
	KindFileDescriptorSeek:      {"file_descriptor_seek", func() Entry { return new(FileDescriptorSeek) }},
	KindFileDescriptorSetFlags:  {"file_descriptor_set_flags", func() Entry { return new(FileDescriptorSetFlags) }},
	KindFileDescriptorSetRights: {"file_descriptor_set_rights", func() Entry { return new(FileDescriptorSetRights) }},
	KindFileDescriptorSetSize:   {"file_descriptor_set_size", func() Entry { return new(FileDescriptorSetSize) }},
	KindChangeDirectory:         {"change_directory", func() Entry { return new(ChangeDirectory) }},
	KindProcessExit:             {"process_exit", func() Entry { return new(ProcessExit) }},
	KindSnapshot:                {"snapshot", func() Entry { return new(Snapshot) }},
	KindPortBridge:              {"port_bridge", func() Entry { return new(PortBridge) }},
	KindPortUnbridge:            {"port_unbridge", func() Entry { return new(PortUnbridge) }},
	KindPortDhcpAcquire:         {"port_dhcp_acquire", func() Entry { return new(PortDhcpAcquire) }},
	KindPortAddAddr:             {"port_add_addr", func() Entry { return new(PortAddAddr) }},
	KindPortDelAddr:             {"port_del_addr", func() Entry { return new(PortDelAddr) }},
	KindPortAddrClear:           {"port_addr_clear", func() Entry { return new(PortAddrClear) }},
	KindPortGatewaySet:          {"port_gateway_set", func() Entry { return new(PortGatewaySet) }},
	KindPortRouteAdd:            {"port_route_add", func() Entry { return new(PortRouteAdd) }},
	KindPortRouteDel:            {"port_route_del", func() Entry { return new(PortRouteDel) }},
	KindPortRouteClear:          {"port_route_clear", func() Entry { return new(PortRouteClear) }},
	KindSocketBindRaw:           {"socket_bind_raw", func() Entry { return new(SocketBindRaw) }},
	KindSocketListenTCP:         {"socket_listen_tcp", func() Entry { return new(SocketListenTCP) }},
	KindSocketBindUDP:           {"socket_bind_udp", func() Entry { return new(SocketBindUDP) }},
	KindSocketBindICMP:          {"socket_bind_icmp", func() Entry { return new(SocketBindICMP) }},
	KindSocketConnectTCP:        {"socket_connect_tcp", func() Entry { return new(SocketConnectTCP) }},
}

func (k EntryKind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("unknown(%d)", uint16(k))
}

// Kinds returns every known entry kind in ascending order.
func Kinds() []EntryKind {
	kinds := make([]EntryKind, 0, len(kindInfo))
	for kind := range kindInfo {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

// Entry is one self-contained record of a completed call's effect.
// Entries are immutable values; constructing one never performs I/O.
type Entry interface {
	Kind() EntryKind

	// dispatch calls the Applier method for the concrete variant.
	dispatch(ctx context.Context, applier Applier) error
}

// Apply re-executes entry through applier, calling the method that
// matches its variant.
func Apply(ctx context.Context, entry Entry, applier Applier) error {
	return entry.dispatch(ctx, applier)
}

// Applier re-executes journaled effects against a target instance. It
// has exactly one method per entry variant.
type Applier interface {
	ApplyOpenFileDescriptor(ctx context.Context, entry *OpenFileDescriptor) error
	ApplyDuplicateFileDescriptor(ctx context.Context, entry *DuplicateFileDescriptor) error
	ApplyCloseFileDescriptor(ctx context.Context, entry *CloseFileDescriptor) error
	ApplyCreateDirectory(ctx context.Context, entry *CreateDirectory) error
	ApplyRemoveDirectory(ctx context.Context, entry *RemoveDirectory) error
	ApplyUnlinkFile(ctx context.Context, entry *UnlinkFile) error
	ApplyPathRename(ctx context.Context, entry *PathRename) error
	ApplyFileDescriptorWrite(ctx context.Context, entry *FileDescriptorWrite) error
	ApplyFileDescriptorSeek(ctx context.Context, entry *FileDescriptorSeek) error
	ApplyFileDescriptorSetFlags(ctx context.Context, entry *FileDescriptorSetFlags) error
	ApplyFileDescriptorSetRights(ctx context.Context, entry *FileDescriptorSetRights) error
	ApplyFileDescriptorSetSize(ctx context.Context, entry *FileDescriptorSetSize) error
	ApplyChangeDirectory(ctx context.Context, entry *ChangeDirectory) error
	ApplyProcessExit(ctx context.Context, entry *ProcessExit) error
	ApplySnapshot(ctx context.Context, entry *Snapshot) error

	ApplyPortBridge(ctx context.Context, entry *PortBridge) error
	ApplyPortUnbridge(ctx context.Context, entry *PortUnbridge) error
	ApplyPortDhcpAcquire(ctx context.Context, entry *PortDhcpAcquire) error
	ApplyPortAddAddr(ctx context.Context, entry *PortAddAddr) error
	ApplyPortDelAddr(ctx context.Context, entry *PortDelAddr) error
	ApplyPortAddrClear(ctx context.Context, entry *PortAddrClear) error
	ApplyPortGatewaySet(ctx context.Context, entry *PortGatewaySet) error
	ApplyPortRouteAdd(ctx context.Context, entry *PortRouteAdd) error
	ApplyPortRouteDel(ctx context.Context, entry *PortRouteDel) error
	ApplyPortRouteClear(ctx context.Context, entry *PortRouteClear) error

	ApplySocketBindRaw(ctx context.Context, entry *SocketBindRaw) error
	ApplySocketListenTCP(ctx context.Context, entry *SocketListenTCP) error
	ApplySocketBindUDP(ctx context.Context, entry *SocketBindUDP) error
	ApplySocketBindICMP(ctx context.Context, entry *SocketBindICMP) error
	ApplySocketConnectTCP(ctx context.Context, entry *SocketConnectTCP) error
}

// OpenFileDescriptor records a successful path_open that produced Fd.
// Replay reopens Path relative to DirFd with the same flags and rights
// and then renumbers the new descriptor to Fd.
type OpenFileDescriptor struct {
	Fd               wasi.Fd          `json:"fd" cbor:"fd"`
	DirFd            wasi.Fd          `json:"dirfd" cbor:"dirfd"`
	DirFlags         wasi.LookupFlags `json:"dirflags" cbor:"dirflags"`
	Path             string           `json:"path" cbor:"path"`
	OpenFlags        wasi.Oflags      `json:"o_flags" cbor:"o_flags"`
	RightsBase       wasi.Rights      `json:"fs_rights_base" cbor:"fs_rights_base"`
	RightsInheriting wasi.Rights      `json:"fs_rights_inheriting" cbor:"fs_rights_inheriting"`
	FdFlags          wasi.Fdflags     `json:"fs_flags" cbor:"fs_flags"`
}

// DuplicateFileDescriptor records a duplication of Source to Dest. When
// CloseSource is set the source is closed as part of the same effect
// (the fd_renumber form).
type DuplicateFileDescriptor struct {
	Source      wasi.Fd `json:"original_fd" cbor:"original_fd"`
	Dest        wasi.Fd `json:"copied_fd" cbor:"copied_fd"`
	CloseSource bool    `json:"close_source" cbor:"close_source"`
}

type CloseFileDescriptor struct {
	Fd wasi.Fd `json:"fd" cbor:"fd"`
}

type CreateDirectory struct {
	DirFd wasi.Fd `json:"fd" cbor:"fd"`
	Path  string  `json:"path" cbor:"path"`
}

type RemoveDirectory struct {
	DirFd wasi.Fd `json:"fd" cbor:"fd"`
	Path  string  `json:"path" cbor:"path"`
}

type UnlinkFile struct {
	DirFd wasi.Fd `json:"fd" cbor:"fd"`
	Path  string  `json:"path" cbor:"path"`
}

type PathRename struct {
	OldDirFd wasi.Fd `json:"old_fd" cbor:"old_fd"`
	OldPath  string  `json:"old_path" cbor:"old_path"`
	NewDirFd wasi.Fd `json:"new_fd" cbor:"new_fd"`
	NewPath  string  `json:"new_path" cbor:"new_path"`
}

// FileDescriptorWrite records data written at Offset. For a plain write
// Offset is where the cursor was (or the end of file in append mode)
// and the cursor moves past the data; a pwrite leaves the cursor alone.
type FileDescriptorWrite struct {
	Fd       wasi.Fd `json:"fd" cbor:"fd"`
	Offset   int64   `json:"offset" cbor:"offset"`
	Data     []byte  `json:"data" cbor:"data"`
	IsPwrite bool    `json:"is_pwrite" cbor:"is_pwrite"`
}

// FileDescriptorSeek records the absolute cursor position after a seek
// or a read. Recording the result rather than the whence makes replay
// independent of file sizes at the time of the call.
type FileDescriptorSeek struct {
	Fd     wasi.Fd `json:"fd" cbor:"fd"`
	Offset int64   `json:"offset" cbor:"offset"`
}

type FileDescriptorSetFlags struct {
	Fd    wasi.Fd      `json:"fd" cbor:"fd"`
	Flags wasi.Fdflags `json:"flags" cbor:"flags"`
}

type FileDescriptorSetRights struct {
	Fd               wasi.Fd     `json:"fd" cbor:"fd"`
	RightsBase       wasi.Rights `json:"fs_rights_base" cbor:"fs_rights_base"`
	RightsInheriting wasi.Rights `json:"fs_rights_inheriting" cbor:"fs_rights_inheriting"`
}

type FileDescriptorSetSize struct {
	Fd   wasi.Fd `json:"fd" cbor:"fd"`
	Size int64   `json:"st_size" cbor:"st_size"`
}

type ChangeDirectory struct {
	Path string `json:"path" cbor:"path"`
}

// ProcessExit is the terminal entry of an instance.
type ProcessExit struct {
	ExitCode wasi.ExitCode `json:"exit_code" cbor:"exit_code"`
}

// SnapshotTrigger says why a snapshot boundary was recorded.
type SnapshotTrigger string

const (
	SnapshotTriggerExplicit SnapshotTrigger = "explicit"
	SnapshotTriggerSignal   SnapshotTrigger = "signal"
	SnapshotTriggerIdle     SnapshotTrigger = "idle"
)

// Snapshot marks a boundary at which the journal may be truncated.
type Snapshot struct {
	When    time.Time       `json:"when" cbor:"when"`
	Trigger SnapshotTrigger `json:"trigger" cbor:"trigger"`
}

func (*OpenFileDescriptor) Kind() EntryKind      { return KindOpenFileDescriptor }
func (*DuplicateFileDescriptor) Kind() EntryKind { return KindDuplicateFileDescriptor }
func (*CloseFileDescriptor) Kind() EntryKind     { return KindCloseFileDescriptor }
func (*CreateDirectory) Kind() EntryKind         { return KindCreateDirectory }
func (*RemoveDirectory) Kind() EntryKind         { return KindRemoveDirectory }
func (*UnlinkFile) Kind() EntryKind              { return KindUnlinkFile }
func (*PathRename) Kind() EntryKind              { return KindPathRename }
func (*FileDescriptorWrite) Kind() EntryKind     { return KindFileDescriptorWrite }
func (*FileDescriptorSeek) Kind() EntryKind      { return KindFileDescriptorSeek }
func (*FileDescriptorSetFlags) Kind() EntryKind  { return KindFileDescriptorSetFlags }
func (*FileDescriptorSetRights) Kind() EntryKind { return KindFileDescriptorSetRights }
func (*FileDescriptorSetSize) Kind() EntryKind   { return KindFileDescriptorSetSize }
func (*ChangeDirectory) Kind() EntryKind         { return KindChangeDirectory }
func (*ProcessExit) Kind() EntryKind             { return KindProcessExit }
func (*Snapshot) Kind() EntryKind                { return KindSnapshot }

func (e *OpenFileDescriptor) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyOpenFileDescriptor(ctx, e)
}

func (e *DuplicateFileDescriptor) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyDuplicateFileDescriptor(ctx, e)
}

func (e *CloseFileDescriptor) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyCloseFileDescriptor(ctx, e)
}

func (e *CreateDirectory) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyCreateDirectory(ctx, e)
}

func (e *RemoveDirectory) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyRemoveDirectory(ctx, e)
}

func (e *UnlinkFile) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyUnlinkFile(ctx, e)
}

func (e *PathRename) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPathRename(ctx, e)
}

func (e *FileDescriptorWrite) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyFileDescriptorWrite(ctx, e)
}

func (e *FileDescriptorSeek) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyFileDescriptorSeek(ctx, e)
}

func (e *FileDescriptorSetFlags) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyFileDescriptorSetFlags(ctx, e)
}

func (e *FileDescriptorSetRights) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyFileDescriptorSetRights(ctx, e)
}

func (e *FileDescriptorSetSize) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyFileDescriptorSetSize(ctx, e)
}

func (e *ChangeDirectory) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyChangeDirectory(ctx, e)
}

func (e *ProcessExit) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyProcessExit(ctx, e)
}

func (e *Snapshot) dispatch(ctx context.Context, a Applier) error {
	return a.ApplySnapshot(ctx, e)
}

// DescriptorOf returns the descriptor an entry produces, for entries
// that allocate one (opens, duplications, sockets).
func DescriptorOf(entry Entry) (wasi.Fd, bool) {
	switch e := entry.(type) {
	case *OpenFileDescriptor:
		return e.Fd, true
	case *DuplicateFileDescriptor:
		return e.Dest, true
	case *SocketBindRaw:
		return e.Fd, true
	case *SocketListenTCP:
		return e.Fd, true
	case *SocketBindUDP:
		return e.Fd, true
	case *SocketBindICMP:
		return e.Fd, true
	case *SocketConnectTCP:
		return e.Fd, true
	}
	return 0, false
}

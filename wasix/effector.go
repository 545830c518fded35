// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"bytes"
	"context"
	"net/netip"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtnet"
)

// The save functions build the entry for a call that has already
// succeeded and append it. Each appends exactly one record.

func (e *Env) saveOpen(ctx context.Context, fd, dirFd wasi.Fd, dirFlags wasi.LookupFlags, name string, oflags wasi.Oflags, rightsBase, rightsInheriting wasi.Rights, fdflags wasi.Fdflags) error {
	_, err := e.save(ctx, "path_open", &journal.OpenFileDescriptor{
		Fd:               fd,
		DirFd:            dirFd,
		DirFlags:         dirFlags,
		Path:             name,
		OpenFlags:        oflags,
		RightsBase:       rightsBase,
		RightsInheriting: rightsInheriting,
		FdFlags:          fdflags,
	})
	return err
}

func (e *Env) saveDuplicate(ctx context.Context, call string, source, dest wasi.Fd, closeSource bool) error {
	_, err := e.save(ctx, call, &journal.DuplicateFileDescriptor{Source: source, Dest: dest, CloseSource: closeSource})
	return err
}

func (e *Env) saveClose(ctx context.Context, fd wasi.Fd) error {
	_, err := e.save(ctx, "fd_close", &journal.CloseFileDescriptor{Fd: fd})
	return err
}

func (e *Env) saveCreateDirectory(ctx context.Context, dirFd wasi.Fd, name string) error {
	_, err := e.save(ctx, "path_create_directory", &journal.CreateDirectory{DirFd: dirFd, Path: name})
	return err
}

func (e *Env) saveRemoveDirectory(ctx context.Context, dirFd wasi.Fd, name string) error {
	_, err := e.save(ctx, "path_remove_directory", &journal.RemoveDirectory{DirFd: dirFd, Path: name})
	return err
}

func (e *Env) saveUnlink(ctx context.Context, dirFd wasi.Fd, name string) error {
	_, err := e.save(ctx, "path_unlink_file", &journal.UnlinkFile{DirFd: dirFd, Path: name})
	return err
}

func (e *Env) saveRename(ctx context.Context, oldDirFd wasi.Fd, oldPath string, newDirFd wasi.Fd, newPath string) error {
	_, err := e.save(ctx, "path_rename", &journal.PathRename{
		OldDirFd: oldDirFd,
		OldPath:  oldPath,
		NewDirFd: newDirFd,
		NewPath:  newPath,
	})
	return err
}

// saveWrite copies data; the guest may reuse its buffer.
func (e *Env) saveWrite(ctx context.Context, call string, fd wasi.Fd, offset int64, data []byte, isPwrite bool) error {
	_, err := e.save(ctx, call, &journal.FileDescriptorWrite{
		Fd:       fd,
		Offset:   offset,
		Data:     bytes.Clone(data),
		IsPwrite: isPwrite,
	})
	return err
}

func (e *Env) saveSeek(ctx context.Context, call string, fd wasi.Fd, offset int64) error {
	_, err := e.save(ctx, call, &journal.FileDescriptorSeek{Fd: fd, Offset: offset})
	return err
}

func (e *Env) saveSetFlags(ctx context.Context, fd wasi.Fd, flags wasi.Fdflags) error {
	_, err := e.save(ctx, "fd_fdstat_set_flags", &journal.FileDescriptorSetFlags{Fd: fd, Flags: flags})
	return err
}

func (e *Env) saveSetRights(ctx context.Context, fd wasi.Fd, rightsBase, rightsInheriting wasi.Rights) error {
	_, err := e.save(ctx, "fd_fdstat_set_rights", &journal.FileDescriptorSetRights{
		Fd:               fd,
		RightsBase:       rightsBase,
		RightsInheriting: rightsInheriting,
	})
	return err
}

func (e *Env) saveSetSize(ctx context.Context, fd wasi.Fd, size int64) error {
	_, err := e.save(ctx, "fd_filestat_set_size", &journal.FileDescriptorSetSize{Fd: fd, Size: size})
	return err
}

func (e *Env) saveChdir(ctx context.Context, dir string) error {
	_, err := e.save(ctx, "chdir", &journal.ChangeDirectory{Path: dir})
	return err
}

func (e *Env) saveProcessExit(ctx context.Context, code wasi.ExitCode) error {
	_, err := e.save(ctx, "proc_exit", &journal.ProcessExit{ExitCode: code})
	return err
}

func (e *Env) saveSnapshot(ctx context.Context, trigger journal.SnapshotTrigger) (journal.Record, error) {
	return e.save(ctx, "snapshot", &journal.Snapshot{When: e.clock.Now(), Trigger: trigger})
}

func (e *Env) savePortBridge(ctx context.Context, network, token string, security virtnet.StreamSecurity) error {
	_, err := e.save(ctx, "port_bridge", &journal.PortBridge{
		Network:  network,
		Token:    token,
		Security: journal.StreamSecurity(security),
	})
	return err
}

func (e *Env) savePortUnbridge(ctx context.Context) error {
	_, err := e.save(ctx, "port_unbridge", &journal.PortUnbridge{})
	return err
}

func (e *Env) savePortDhcpAcquire(ctx context.Context, addresses []netip.Addr) error {
	_, err := e.save(ctx, "port_dhcp_acquire", &journal.PortDhcpAcquire{Addresses: addresses})
	return err
}

func (e *Env) savePortAddAddr(ctx context.Context, cidr netip.Prefix) error {
	_, err := e.save(ctx, "port_addr_add", &journal.PortAddAddr{Cidr: cidr})
	return err
}

func (e *Env) savePortDelAddr(ctx context.Context, addr netip.Addr) error {
	_, err := e.save(ctx, "port_addr_remove", &journal.PortDelAddr{Addr: addr})
	return err
}

func (e *Env) savePortAddrClear(ctx context.Context) error {
	_, err := e.save(ctx, "port_addr_clear", &journal.PortAddrClear{})
	return err
}

func (e *Env) savePortGatewaySet(ctx context.Context, addr netip.Addr) error {
	_, err := e.save(ctx, "port_gateway_set", &journal.PortGatewaySet{Addr: addr})
	return err
}

func (e *Env) savePortRouteAdd(ctx context.Context, route virtnet.Route) error {
	_, err := e.save(ctx, "port_route_add", &journal.PortRouteAdd{
		Cidr:           route.Cidr,
		ViaRouter:      route.ViaRouter,
		PreferredUntil: route.PreferredUntil,
		ExpiresAt:      route.ExpiresAt,
	})
	return err
}

func (e *Env) savePortRouteDel(ctx context.Context, addr netip.Addr) error {
	_, err := e.save(ctx, "port_route_remove", &journal.PortRouteDel{Addr: addr})
	return err
}

func (e *Env) savePortRouteClear(ctx context.Context) error {
	_, err := e.save(ctx, "port_route_clear", &journal.PortRouteClear{})
	return err
}

func (e *Env) saveSocketBindRaw(ctx context.Context, fd wasi.Fd) error {
	_, err := e.save(ctx, "sock_bind_raw", &journal.SocketBindRaw{Fd: fd})
	return err
}

func (e *Env) saveSocketListenTCP(ctx context.Context, fd wasi.Fd, addr netip.AddrPort, options virtnet.ListenOptions) error {
	_, err := e.save(ctx, "sock_listen_tcp", &journal.SocketListenTCP{
		Fd:        fd,
		Addr:      addr,
		OnlyV6:    options.OnlyV6,
		ReusePort: options.ReusePort,
		ReuseAddr: options.ReuseAddr,
	})
	return err
}

func (e *Env) saveSocketBindUDP(ctx context.Context, fd wasi.Fd, addr netip.AddrPort, options virtnet.BindOptions) error {
	_, err := e.save(ctx, "sock_bind_udp", &journal.SocketBindUDP{
		Fd:        fd,
		Addr:      addr,
		ReusePort: options.ReusePort,
		ReuseAddr: options.ReuseAddr,
	})
	return err
}

func (e *Env) saveSocketBindICMP(ctx context.Context, fd wasi.Fd, addr netip.Addr) error {
	_, err := e.save(ctx, "sock_bind_icmp", &journal.SocketBindICMP{Fd: fd, Addr: addr})
	return err
}

func (e *Env) saveSocketConnectTCP(ctx context.Context, fd wasi.Fd, local, peer netip.AddrPort) error {
	_, err := e.save(ctx, "sock_connect_tcp", &journal.SocketConnectTCP{Fd: fd, Local: local, Peer: peer})
	return err
}

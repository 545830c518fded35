// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"context"
	"fmt"
	"slices"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtnet"
)

// replayer re-executes journal entries against an Env through the
// internal call implementations. It runs with the env's call lock held
// by Restore and never journals.
type replayer struct {
	env *Env
}

var _ journal.Applier = (*replayer)(nil)

func replayFailure(call string, fd wasi.Fd, name string, err error) error {
	return &ReplayError{Call: call, Fd: fd, Path: name, Errno: wasi.ErrnoFromError(err)}
}

// renumber moves a descriptor allocated during replay to the id the
// journal recorded. The recorded id was free when the call first ran,
// so an occupied target means the table has diverged.
func (r *replayer) renumber(call string, allocated, recorded wasi.Fd) error {
	if allocated == recorded {
		return nil
	}
	if err := r.env.table.move(allocated, recorded, false); err != nil {
		r.env.table.remove(allocated)
		return &RenumberError{Call: call, From: allocated, To: recorded, Errno: wasi.ErrnoFromError(err)}
	}
	return nil
}

func (r *replayer) ApplyOpenFileDescriptor(_ context.Context, entry *journal.OpenFileDescriptor) error {
	fd, err := r.env.pathOpenInternal(entry.DirFd, entry.DirFlags, entry.Path, entry.OpenFlags,
		entry.RightsBase, entry.RightsInheriting, entry.FdFlags)
	if err != nil {
		return replayFailure("path_open", entry.Fd, entry.Path, err)
	}
	return r.renumber("path_open", fd, entry.Fd)
}

func (r *replayer) ApplyDuplicateFileDescriptor(_ context.Context, entry *journal.DuplicateFileDescriptor) error {
	if entry.CloseSource {
		if err := r.env.fdRenumberInternal(entry.Source, entry.Dest); err != nil {
			return replayFailure("fd_renumber", entry.Source, "", err)
		}
		return nil
	}
	fd, err := r.env.fdDupInternal(entry.Source)
	if err != nil {
		return replayFailure("fd_dup", entry.Source, "", err)
	}
	return r.renumber("fd_dup", fd, entry.Dest)
}

func (r *replayer) ApplyCloseFileDescriptor(_ context.Context, entry *journal.CloseFileDescriptor) error {
	if err := r.env.fdCloseInternal(entry.Fd); err != nil {
		return replayFailure("fd_close", entry.Fd, "", err)
	}
	return nil
}

func (r *replayer) ApplyCreateDirectory(_ context.Context, entry *journal.CreateDirectory) error {
	if err := r.env.pathCreateDirectoryInternal(entry.DirFd, entry.Path); err != nil {
		return replayFailure("path_create_directory", entry.DirFd, entry.Path, err)
	}
	return nil
}

func (r *replayer) ApplyRemoveDirectory(_ context.Context, entry *journal.RemoveDirectory) error {
	if err := r.env.pathRemoveDirectoryInternal(entry.DirFd, entry.Path); err != nil {
		return replayFailure("path_remove_directory", entry.DirFd, entry.Path, err)
	}
	return nil
}

func (r *replayer) ApplyUnlinkFile(_ context.Context, entry *journal.UnlinkFile) error {
	if err := r.env.pathUnlinkFileInternal(entry.DirFd, entry.Path); err != nil {
		return replayFailure("path_unlink_file", entry.DirFd, entry.Path, err)
	}
	return nil
}

func (r *replayer) ApplyPathRename(_ context.Context, entry *journal.PathRename) error {
	if err := r.env.pathRenameInternal(entry.OldDirFd, entry.OldPath, entry.NewDirFd, entry.NewPath); err != nil {
		return replayFailure("path_rename", entry.OldDirFd, entry.OldPath, err)
	}
	return nil
}

func (r *replayer) ApplyFileDescriptorWrite(_ context.Context, entry *journal.FileDescriptorWrite) error {
	call := "fd_write"
	if entry.IsPwrite {
		call = "fd_pwrite"
	}
	n, err := r.env.fdWriteInternal(entry.Fd, entry.Offset, entry.Data, entry.IsPwrite)
	if err != nil {
		return replayFailure(call, entry.Fd, "", err)
	}
	if n != len(entry.Data) {
		return &ReplayError{Call: call, Fd: entry.Fd, Errno: wasi.ErrnoIo}
	}
	return nil
}

func (r *replayer) ApplyFileDescriptorSeek(_ context.Context, entry *journal.FileDescriptorSeek) error {
	if err := r.env.fdSeekInternal(entry.Fd, entry.Offset); err != nil {
		return replayFailure("fd_seek", entry.Fd, "", err)
	}
	return nil
}

func (r *replayer) ApplyFileDescriptorSetFlags(_ context.Context, entry *journal.FileDescriptorSetFlags) error {
	if err := r.env.fdSetFlagsInternal(entry.Fd, entry.Flags); err != nil {
		return replayFailure("fd_fdstat_set_flags", entry.Fd, "", err)
	}
	return nil
}

func (r *replayer) ApplyFileDescriptorSetRights(_ context.Context, entry *journal.FileDescriptorSetRights) error {
	if err := r.env.fdSetRightsInternal(entry.Fd, entry.RightsBase, entry.RightsInheriting); err != nil {
		return replayFailure("fd_fdstat_set_rights", entry.Fd, "", err)
	}
	return nil
}

func (r *replayer) ApplyFileDescriptorSetSize(_ context.Context, entry *journal.FileDescriptorSetSize) error {
	if err := r.env.fdSetSizeInternal(entry.Fd, entry.Size); err != nil {
		return replayFailure("fd_filestat_set_size", entry.Fd, "", err)
	}
	return nil
}

func (r *replayer) ApplyChangeDirectory(_ context.Context, entry *journal.ChangeDirectory) error {
	if err := r.env.chdirInternal(entry.Path); err != nil {
		return replayFailure("chdir", 0, entry.Path, err)
	}
	return nil
}

func (r *replayer) ApplyProcessExit(_ context.Context, entry *journal.ProcessExit) error {
	r.env.procExitInternal(entry.ExitCode)
	return nil
}

// ApplySnapshot has nothing to re-execute; the marker only bounds
// truncation.
func (r *replayer) ApplySnapshot(_ context.Context, entry *journal.Snapshot) error {
	r.env.logger.Debug("passing snapshot marker", "trigger", entry.Trigger, "when", entry.When)
	return nil
}

func (r *replayer) ApplyPortBridge(ctx context.Context, entry *journal.PortBridge) error {
	err := r.env.networking.Bridge(ctx, entry.Network, entry.Token, virtnet.StreamSecurity(entry.Security))
	if err != nil {
		return replayFailure("port_bridge", 0, "", err)
	}
	return nil
}

func (r *replayer) ApplyPortUnbridge(ctx context.Context, _ *journal.PortUnbridge) error {
	if err := r.env.networking.Unbridge(ctx); err != nil {
		return replayFailure("port_unbridge", 0, "", err)
	}
	return nil
}

// ApplyPortDhcpAcquire acquires again. Later entries were recorded
// against the journaled lease, so a different lease is a mismatch.
func (r *replayer) ApplyPortDhcpAcquire(ctx context.Context, entry *journal.PortDhcpAcquire) error {
	addresses, err := r.env.networking.DhcpAcquire(ctx)
	if err != nil {
		return replayFailure("port_dhcp_acquire", 0, "", err)
	}
	if !slices.Equal(addresses, entry.Addresses) {
		return &ReplayError{
			Call:   "port_dhcp_acquire",
			Errno:  wasi.ErrnoAddrnotavail,
			Detail: fmt.Sprintf("acquired %v, journal recorded %v", addresses, entry.Addresses),
		}
	}
	return nil
}

func (r *replayer) ApplyPortAddAddr(ctx context.Context, entry *journal.PortAddAddr) error {
	if err := r.env.networking.IPAdd(ctx, entry.Cidr); err != nil {
		return replayFailure("port_addr_add", 0, "", err)
	}
	return nil
}

func (r *replayer) ApplyPortDelAddr(ctx context.Context, entry *journal.PortDelAddr) error {
	if err := r.env.networking.IPRemove(ctx, entry.Addr); err != nil {
		return replayFailure("port_addr_remove", 0, "", err)
	}
	return nil
}

func (r *replayer) ApplyPortAddrClear(ctx context.Context, _ *journal.PortAddrClear) error {
	if err := r.env.networking.IPClear(ctx); err != nil {
		return replayFailure("port_addr_clear", 0, "", err)
	}
	return nil
}

func (r *replayer) ApplyPortGatewaySet(ctx context.Context, entry *journal.PortGatewaySet) error {
	if err := r.env.networking.GatewaySet(ctx, entry.Addr); err != nil {
		return replayFailure("port_gateway_set", 0, "", err)
	}
	return nil
}

func (r *replayer) ApplyPortRouteAdd(ctx context.Context, entry *journal.PortRouteAdd) error {
	err := r.env.networking.RouteAdd(ctx, virtnet.Route{
		Cidr:           entry.Cidr,
		ViaRouter:      entry.ViaRouter,
		PreferredUntil: entry.PreferredUntil,
		ExpiresAt:      entry.ExpiresAt,
	})
	if err != nil {
		return replayFailure("port_route_add", 0, "", err)
	}
	return nil
}

func (r *replayer) ApplyPortRouteDel(ctx context.Context, entry *journal.PortRouteDel) error {
	if err := r.env.networking.RouteRemove(ctx, entry.Addr); err != nil {
		return replayFailure("port_route_remove", 0, "", err)
	}
	return nil
}

func (r *replayer) ApplyPortRouteClear(ctx context.Context, _ *journal.PortRouteClear) error {
	if err := r.env.networking.RouteClear(ctx); err != nil {
		return replayFailure("port_route_clear", 0, "", err)
	}
	return nil
}

func (r *replayer) ApplySocketBindRaw(ctx context.Context, entry *journal.SocketBindRaw) error {
	fd, err := r.env.sockBindRawInternal(ctx)
	if err != nil {
		return replayFailure("sock_bind_raw", entry.Fd, "", err)
	}
	return r.renumber("sock_bind_raw", fd, entry.Fd)
}

func (r *replayer) ApplySocketListenTCP(ctx context.Context, entry *journal.SocketListenTCP) error {
	fd, _, err := r.env.sockListenTCPInternal(ctx, entry.Addr, virtnet.ListenOptions{
		OnlyV6:    entry.OnlyV6,
		ReusePort: entry.ReusePort,
		ReuseAddr: entry.ReuseAddr,
	})
	if err != nil {
		return replayFailure("sock_listen_tcp", entry.Fd, entry.Addr.String(), err)
	}
	return r.renumber("sock_listen_tcp", fd, entry.Fd)
}

func (r *replayer) ApplySocketBindUDP(ctx context.Context, entry *journal.SocketBindUDP) error {
	fd, _, err := r.env.sockBindUDPInternal(ctx, entry.Addr, virtnet.BindOptions{
		ReusePort: entry.ReusePort,
		ReuseAddr: entry.ReuseAddr,
	})
	if err != nil {
		return replayFailure("sock_bind_udp", entry.Fd, entry.Addr.String(), err)
	}
	return r.renumber("sock_bind_udp", fd, entry.Fd)
}

func (r *replayer) ApplySocketBindICMP(ctx context.Context, entry *journal.SocketBindICMP) error {
	fd, err := r.env.sockBindICMPInternal(ctx, entry.Addr)
	if err != nil {
		return replayFailure("sock_bind_icmp", entry.Fd, entry.Addr.String(), err)
	}
	return r.renumber("sock_bind_icmp", fd, entry.Fd)
}

func (r *replayer) ApplySocketConnectTCP(ctx context.Context, entry *journal.SocketConnectTCP) error {
	fd, _, err := r.env.sockConnectTCPInternal(ctx, entry.Local, entry.Peer)
	if err != nil {
		return replayFailure("sock_connect_tcp", entry.Fd, entry.Peer.String(), err)
	}
	return r.renumber("sock_connect_tcp", fd, entry.Fd)
}

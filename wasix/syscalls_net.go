// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"context"
	"net"
	"net/netip"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtnet"
)

const socketRights = wasi.RightFdRead | wasi.RightFdWrite | wasi.RightFdFdstatSetFlags |
	wasi.RightPollFdReadwrite | wasi.RightSockShutdown | wasi.RightSockAccept

// networkErrno converts a provider failure to the errno the guest sees.
func networkErrno(err error) error {
	if err == nil {
		return nil
	}
	return wasi.ErrnoFromError(err)
}

// PortBridge joins the instance to a remote network.
func (e *Env) PortBridge(ctx context.Context, network, token string, security virtnet.StreamSecurity) error {
	if err := e.begin(ctx, "port_bridge"); err != nil {
		return err
	}
	defer e.end()

	if err := networkErrno(e.networking.Bridge(ctx, network, token, security)); err != nil {
		return err
	}
	return e.savePortBridge(ctx, network, token, security)
}

func (e *Env) PortUnbridge(ctx context.Context) error {
	if err := e.begin(ctx, "port_unbridge"); err != nil {
		return err
	}
	defer e.end()

	if err := networkErrno(e.networking.Unbridge(ctx)); err != nil {
		return err
	}
	return e.savePortUnbridge(ctx)
}

// PortDhcpAcquire leases addresses for the interface and journals the
// addresses obtained.
func (e *Env) PortDhcpAcquire(ctx context.Context) ([]netip.Addr, error) {
	if err := e.begin(ctx, "port_dhcp_acquire"); err != nil {
		return nil, err
	}
	defer e.end()

	addresses, err := e.networking.DhcpAcquire(ctx)
	if err != nil {
		return nil, networkErrno(err)
	}
	if err := e.savePortDhcpAcquire(ctx, addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (e *Env) PortAddrAdd(ctx context.Context, cidr netip.Prefix) error {
	if err := e.begin(ctx, "port_addr_add"); err != nil {
		return err
	}
	defer e.end()

	if err := networkErrno(e.networking.IPAdd(ctx, cidr)); err != nil {
		return err
	}
	return e.savePortAddAddr(ctx, cidr)
}

func (e *Env) PortAddrRemove(ctx context.Context, addr netip.Addr) error {
	if err := e.begin(ctx, "port_addr_remove"); err != nil {
		return err
	}
	defer e.end()

	if err := networkErrno(e.networking.IPRemove(ctx, addr)); err != nil {
		return err
	}
	return e.savePortDelAddr(ctx, addr)
}

func (e *Env) PortAddrClear(ctx context.Context) error {
	if err := e.begin(ctx, "port_addr_clear"); err != nil {
		return err
	}
	defer e.end()

	if err := networkErrno(e.networking.IPClear(ctx)); err != nil {
		return err
	}
	return e.savePortAddrClear(ctx)
}

// PortAddrList is a query and is not journaled.
func (e *Env) PortAddrList(ctx context.Context) ([]netip.Prefix, error) {
	if err := e.begin(ctx, "port_addr_list"); err != nil {
		return nil, err
	}
	defer e.end()

	addresses, err := e.networking.IPList(ctx)
	return addresses, networkErrno(err)
}

// PortMac is a query and is not journaled.
func (e *Env) PortMac(ctx context.Context) (net.HardwareAddr, error) {
	if err := e.begin(ctx, "port_mac"); err != nil {
		return nil, err
	}
	defer e.end()

	mac, err := e.networking.MAC(ctx)
	return mac, networkErrno(err)
}

func (e *Env) PortGatewaySet(ctx context.Context, addr netip.Addr) error {
	if err := e.begin(ctx, "port_gateway_set"); err != nil {
		return err
	}
	defer e.end()

	if err := networkErrno(e.networking.GatewaySet(ctx, addr)); err != nil {
		return err
	}
	return e.savePortGatewaySet(ctx, addr)
}

func (e *Env) PortRouteAdd(ctx context.Context, route virtnet.Route) error {
	if err := e.begin(ctx, "port_route_add"); err != nil {
		return err
	}
	defer e.end()

	if err := networkErrno(e.networking.RouteAdd(ctx, route)); err != nil {
		return err
	}
	return e.savePortRouteAdd(ctx, route)
}

func (e *Env) PortRouteRemove(ctx context.Context, addr netip.Addr) error {
	if err := e.begin(ctx, "port_route_remove"); err != nil {
		return err
	}
	defer e.end()

	if err := networkErrno(e.networking.RouteRemove(ctx, addr)); err != nil {
		return err
	}
	return e.savePortRouteDel(ctx, addr)
}

func (e *Env) PortRouteClear(ctx context.Context) error {
	if err := e.begin(ctx, "port_route_clear"); err != nil {
		return err
	}
	defer e.end()

	if err := networkErrno(e.networking.RouteClear(ctx)); err != nil {
		return err
	}
	return e.savePortRouteClear(ctx)
}

// PortRouteList is a query and is not journaled.
func (e *Env) PortRouteList(ctx context.Context) ([]virtnet.Route, error) {
	if err := e.begin(ctx, "port_route_list"); err != nil {
		return nil, err
	}
	defer e.end()

	routes, err := e.networking.RouteList(ctx)
	return routes, networkErrno(err)
}

// ResolveHost looks up host. Lookups are not journaled; a replayed
// instance resolves again.
func (e *Env) ResolveHost(ctx context.Context, host string, port uint16) ([]netip.Addr, error) {
	if err := e.begin(ctx, "resolve"); err != nil {
		return nil, err
	}
	defer e.end()

	addresses, err := e.networking.Resolve(ctx, host, port)
	return addresses, networkErrno(err)
}

// insertSocket installs socket under a fresh descriptor, closing it if
// the table is full.
func (e *Env) insertSocket(socket virtnet.Socket) (wasi.Fd, error) {
	filetype := wasi.FiletypeSocketDgram
	switch socket.Kind() {
	case virtnet.SocketTCPListener, virtnet.SocketTCPStream:
		filetype = wasi.FiletypeSocketStream
	}
	fd, err := e.table.insert(&descriptor{
		description: &openDescription{filetype: filetype, socket: socket},
		rightsBase:  socketRights,
	})
	if err != nil {
		socket.Close()
		return 0, err
	}
	return fd, nil
}

// SockBindRaw opens a raw socket.
func (e *Env) SockBindRaw(ctx context.Context) (wasi.Fd, error) {
	if err := e.begin(ctx, "sock_bind_raw"); err != nil {
		return 0, err
	}
	defer e.end()

	fd, err := e.sockBindRawInternal(ctx)
	if err != nil {
		return 0, err
	}
	if err := e.saveSocketBindRaw(ctx, fd); err != nil {
		return 0, err
	}
	return fd, nil
}

func (e *Env) sockBindRawInternal(ctx context.Context) (wasi.Fd, error) {
	socket, err := e.networking.BindRaw(ctx)
	if err != nil {
		return 0, networkErrno(err)
	}
	return e.insertSocket(socket)
}

// SockListenTCP listens on addr. The journal records the address
// actually bound, so a listener on port zero replays onto the same
// port.
func (e *Env) SockListenTCP(ctx context.Context, addr netip.AddrPort, options virtnet.ListenOptions) (wasi.Fd, error) {
	if err := e.begin(ctx, "sock_listen_tcp"); err != nil {
		return 0, err
	}
	defer e.end()

	fd, bound, err := e.sockListenTCPInternal(ctx, addr, options)
	if err != nil {
		return 0, err
	}
	if err := e.saveSocketListenTCP(ctx, fd, bound, options); err != nil {
		return 0, err
	}
	return fd, nil
}

func (e *Env) sockListenTCPInternal(ctx context.Context, addr netip.AddrPort, options virtnet.ListenOptions) (wasi.Fd, netip.AddrPort, error) {
	socket, err := e.networking.ListenTCP(ctx, addr, options)
	if err != nil {
		return 0, netip.AddrPort{}, networkErrno(err)
	}
	bound := socket.LocalAddr()
	fd, err := e.insertSocket(socket)
	return fd, bound, err
}

// SockBindUDP binds a datagram socket to addr.
func (e *Env) SockBindUDP(ctx context.Context, addr netip.AddrPort, options virtnet.BindOptions) (wasi.Fd, error) {
	if err := e.begin(ctx, "sock_bind_udp"); err != nil {
		return 0, err
	}
	defer e.end()

	fd, bound, err := e.sockBindUDPInternal(ctx, addr, options)
	if err != nil {
		return 0, err
	}
	if err := e.saveSocketBindUDP(ctx, fd, bound, options); err != nil {
		return 0, err
	}
	return fd, nil
}

func (e *Env) sockBindUDPInternal(ctx context.Context, addr netip.AddrPort, options virtnet.BindOptions) (wasi.Fd, netip.AddrPort, error) {
	socket, err := e.networking.BindUDP(ctx, addr, options)
	if err != nil {
		return 0, netip.AddrPort{}, networkErrno(err)
	}
	bound := socket.LocalAddr()
	fd, err := e.insertSocket(socket)
	return fd, bound, err
}

func (e *Env) SockBindICMP(ctx context.Context, addr netip.Addr) (wasi.Fd, error) {
	if err := e.begin(ctx, "sock_bind_icmp"); err != nil {
		return 0, err
	}
	defer e.end()

	fd, err := e.sockBindICMPInternal(ctx, addr)
	if err != nil {
		return 0, err
	}
	if err := e.saveSocketBindICMP(ctx, fd, addr); err != nil {
		return 0, err
	}
	return fd, nil
}

func (e *Env) sockBindICMPInternal(ctx context.Context, addr netip.Addr) (wasi.Fd, error) {
	socket, err := e.networking.BindICMP(ctx, addr)
	if err != nil {
		return 0, networkErrno(err)
	}
	return e.insertSocket(socket)
}

// SockConnectTCP opens a connection to peer. The journal records the
// local address the connection was bound to.
func (e *Env) SockConnectTCP(ctx context.Context, local, peer netip.AddrPort) (wasi.Fd, error) {
	if err := e.begin(ctx, "sock_connect_tcp"); err != nil {
		return 0, err
	}
	defer e.end()

	fd, bound, err := e.sockConnectTCPInternal(ctx, local, peer)
	if err != nil {
		return 0, err
	}
	if err := e.saveSocketConnectTCP(ctx, fd, bound, peer); err != nil {
		return 0, err
	}
	return fd, nil
}

func (e *Env) sockConnectTCPInternal(ctx context.Context, local, peer netip.AddrPort) (wasi.Fd, netip.AddrPort, error) {
	socket, err := e.networking.ConnectTCP(ctx, local, peer)
	if err != nil {
		return 0, netip.AddrPort{}, networkErrno(err)
	}
	bound := socket.LocalAddr()
	fd, err := e.insertSocket(socket)
	return fd, bound, err
}

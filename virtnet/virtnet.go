// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package virtnet defines the network capability of an instance and
// the providers behind it.
//
// [Networking] is the whole surface the runtime calls: interface
// configuration (bridging, addresses, gateway, routes), socket creation
// and name resolution. Three providers are included:
//
//   - [Unsupported] fails every call with [ErrUnsupported].
//   - [Local] is an in-memory interface. It hands out addresses and
//     ports deterministically, so a replayed call sequence reproduces
//     the same configuration.
//   - [Asking] asks once for consent on the first call and then
//     forwards to a capable provider or to Unsupported for the rest of
//     the instance's life.
//
// Failures wrap a [wasi.Errno], so wasi.ErrnoFromError gives the
// guest-visible code.
package virtnet

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// StreamSecurity is the transport security requested for a bridge.
type StreamSecurity uint8

const (
	StreamSecurityUnencrypted StreamSecurity = iota
	StreamSecurityAnyEncryption
	StreamSecurityClassicEncryption
	StreamSecurityDoubleEncryption
)

// Route is one routing table entry.
type Route struct {
	Cidr           netip.Prefix
	ViaRouter      netip.Addr
	PreferredUntil *time.Duration
	ExpiresAt      *time.Duration
}

// ListenOptions are the flags of a TCP listen.
type ListenOptions struct {
	OnlyV6    bool
	ReusePort bool
	ReuseAddr bool
}

// BindOptions are the flags of a UDP bind.
type BindOptions struct {
	ReusePort bool
	ReuseAddr bool
}

// SocketKind classifies a socket created by a provider.
type SocketKind uint8

const (
	SocketRaw SocketKind = iota + 1
	SocketTCPListener
	SocketTCPStream
	SocketUDP
	SocketICMP
)

func (k SocketKind) String() string {
	switch k {
	case SocketRaw:
		return "raw"
	case SocketTCPListener:
		return "tcp_listener"
	case SocketTCPStream:
		return "tcp_stream"
	case SocketUDP:
		return "udp"
	case SocketICMP:
		return "icmp"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Socket is an open socket. Data transfer is outside the journaled
// surface and not modeled here.
type Socket interface {
	Kind() SocketKind
	LocalAddr() netip.AddrPort

	// PeerAddr is the remote end of a connected stream, and the zero
	// value for every other kind.
	PeerAddr() netip.AddrPort

	Close() error
}

// Networking is the network capability of one instance.
type Networking interface {
	Bridge(ctx context.Context, network, token string, security StreamSecurity) error
	Unbridge(ctx context.Context) error

	// DhcpAcquire obtains addresses for the interface and configures
	// the gateway. It returns the addresses acquired.
	DhcpAcquire(ctx context.Context) ([]netip.Addr, error)

	IPAdd(ctx context.Context, cidr netip.Prefix) error
	IPRemove(ctx context.Context, addr netip.Addr) error
	IPClear(ctx context.Context) error
	IPList(ctx context.Context) ([]netip.Prefix, error)
	MAC(ctx context.Context) (net.HardwareAddr, error)

	GatewaySet(ctx context.Context, addr netip.Addr) error
	RouteAdd(ctx context.Context, route Route) error
	RouteRemove(ctx context.Context, addr netip.Addr) error
	RouteClear(ctx context.Context) error
	RouteList(ctx context.Context) ([]Route, error)

	BindRaw(ctx context.Context) (Socket, error)
	ListenTCP(ctx context.Context, addr netip.AddrPort, options ListenOptions) (Socket, error)
	BindUDP(ctx context.Context, addr netip.AddrPort, options BindOptions) (Socket, error)
	BindICMP(ctx context.Context, addr netip.Addr) (Socket, error)

	// ConnectTCP opens a stream to peer. A zero local address lets
	// the provider choose one.
	ConnectTCP(ctx context.Context, local, peer netip.AddrPort) (Socket, error)

	Resolve(ctx context.Context, host string, port uint16) ([]netip.Addr, error)
}

// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"net/netip"
	"time"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

// StreamSecurity is the transport security requested when bridging an
// instance onto a remote network.
type StreamSecurity uint8

const (
	StreamSecurityUnencrypted       StreamSecurity = 0
	StreamSecurityAnyEncryption     StreamSecurity = 1
	StreamSecurityClassicEncryption StreamSecurity = 2
	StreamSecurityDoubleEncryption  StreamSecurity = 3
)

type PortBridge struct {
	Network  string         `json:"network" cbor:"network"`
	Token    string         `json:"token" cbor:"token"`
	Security StreamSecurity `json:"security" cbor:"security"`
}

type PortUnbridge struct{}

// PortDhcpAcquire records the addresses the interface held after a
// successful DHCP acquisition.
type PortDhcpAcquire struct {
	Addresses []netip.Addr `json:"addresses,omitempty" cbor:"addresses,omitempty"`
}

type PortAddAddr struct {
	Cidr netip.Prefix `json:"cidr" cbor:"cidr"`
}

type PortDelAddr struct {
	Addr netip.Addr `json:"addr" cbor:"addr"`
}

type PortAddrClear struct{}

type PortGatewaySet struct {
	Addr netip.Addr `json:"addr" cbor:"addr"`
}

type PortRouteAdd struct {
	Cidr           netip.Prefix   `json:"cidr" cbor:"cidr"`
	ViaRouter      netip.Addr     `json:"via_router" cbor:"via_router"`
	PreferredUntil *time.Duration `json:"preferred_until,omitempty" cbor:"preferred_until,omitempty"`
	ExpiresAt      *time.Duration `json:"expires_at,omitempty" cbor:"expires_at,omitempty"`
}

type PortRouteDel struct {
	Addr netip.Addr `json:"addr" cbor:"addr"`
}

type PortRouteClear struct{}

// SocketBindRaw records a raw socket created as Fd.
type SocketBindRaw struct {
	Fd wasi.Fd `json:"fd" cbor:"fd"`
}

// SocketListenTCP records a listener. Addr is the address actually
// bound, never an unresolved port zero.
type SocketListenTCP struct {
	Fd        wasi.Fd        `json:"fd" cbor:"fd"`
	Addr      netip.AddrPort `json:"addr" cbor:"addr"`
	OnlyV6    bool           `json:"only_v6" cbor:"only_v6"`
	ReusePort bool           `json:"reuse_port" cbor:"reuse_port"`
	ReuseAddr bool           `json:"reuse_addr" cbor:"reuse_addr"`
}

type SocketBindUDP struct {
	Fd        wasi.Fd        `json:"fd" cbor:"fd"`
	Addr      netip.AddrPort `json:"addr" cbor:"addr"`
	ReusePort bool           `json:"reuse_port" cbor:"reuse_port"`
	ReuseAddr bool           `json:"reuse_addr" cbor:"reuse_addr"`
}

type SocketBindICMP struct {
	Fd   wasi.Fd    `json:"fd" cbor:"fd"`
	Addr netip.Addr `json:"addr" cbor:"addr"`
}

// SocketConnectTCP records an outbound connection. Local is the
// address the connection was bound to, which replay requests again.
type SocketConnectTCP struct {
	Fd    wasi.Fd        `json:"fd" cbor:"fd"`
	Local netip.AddrPort `json:"local_addr" cbor:"local_addr"`
	Peer  netip.AddrPort `json:"peer_addr" cbor:"peer_addr"`
}

func (*PortBridge) Kind() EntryKind       { return KindPortBridge }
func (*PortUnbridge) Kind() EntryKind     { return KindPortUnbridge }
func (*PortDhcpAcquire) Kind() EntryKind  { return KindPortDhcpAcquire }
func (*PortAddAddr) Kind() EntryKind      { return KindPortAddAddr }
func (*PortDelAddr) Kind() EntryKind      { return KindPortDelAddr }
func (*PortAddrClear) Kind() EntryKind    { return KindPortAddrClear }
func (*PortGatewaySet) Kind() EntryKind   { return KindPortGatewaySet }
func (*PortRouteAdd) Kind() EntryKind     { return KindPortRouteAdd }
func (*PortRouteDel) Kind() EntryKind     { return KindPortRouteDel }
func (*PortRouteClear) Kind() EntryKind   { return KindPortRouteClear }
func (*SocketBindRaw) Kind() EntryKind    { return KindSocketBindRaw }
func (*SocketListenTCP) Kind() EntryKind  { return KindSocketListenTCP }
func (*SocketBindUDP) Kind() EntryKind    { return KindSocketBindUDP }
func (*SocketBindICMP) Kind() EntryKind   { return KindSocketBindICMP }
func (*SocketConnectTCP) Kind() EntryKind { return KindSocketConnectTCP }

func (e *PortBridge) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortBridge(ctx, e)
}

func (e *PortUnbridge) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortUnbridge(ctx, e)
}

func (e *PortDhcpAcquire) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortDhcpAcquire(ctx, e)
}

func (e *PortAddAddr) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortAddAddr(ctx, e)
}

func (e *PortDelAddr) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortDelAddr(ctx, e)
}

func (e *PortAddrClear) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortAddrClear(ctx, e)
}

func (e *PortGatewaySet) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortGatewaySet(ctx, e)
}

func (e *PortRouteAdd) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortRouteAdd(ctx, e)
}

func (e *PortRouteDel) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortRouteDel(ctx, e)
}

func (e *PortRouteClear) dispatch(ctx context.Context, a Applier) error {
	return a.ApplyPortRouteClear(ctx, e)
}

func (e *SocketBindRaw) dispatch(ctx context.Context, a Applier) error {
	return a.ApplySocketBindRaw(ctx, e)
}

func (e *SocketListenTCP) dispatch(ctx context.Context, a Applier) error {
	return a.ApplySocketListenTCP(ctx, e)
}

func (e *SocketBindUDP) dispatch(ctx context.Context, a Applier) error {
	return a.ApplySocketBindUDP(ctx, e)
}

func (e *SocketBindICMP) dispatch(ctx context.Context, a Applier) error {
	return a.ApplySocketBindICMP(ctx, e)
}

func (e *SocketConnectTCP) dispatch(ctx context.Context, a Applier) error {
	return a.ApplySocketConnectTCP(ctx, e)
}

// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package virtnet

import (
	"context"
	"net"
	"net/netip"
)

// Unsupported is a provider with no network at all.
type Unsupported struct{}

var _ Networking = Unsupported{}

func (Unsupported) Bridge(context.Context, string, string, StreamSecurity) error {
	return ErrUnsupported
}

func (Unsupported) Unbridge(context.Context) error { return ErrUnsupported }

func (Unsupported) DhcpAcquire(context.Context) ([]netip.Addr, error) {
	return nil, ErrUnsupported
}

func (Unsupported) IPAdd(context.Context, netip.Prefix) error  { return ErrUnsupported }
func (Unsupported) IPRemove(context.Context, netip.Addr) error { return ErrUnsupported }
func (Unsupported) IPClear(context.Context) error              { return ErrUnsupported }

func (Unsupported) IPList(context.Context) ([]netip.Prefix, error) {
	return nil, ErrUnsupported
}

func (Unsupported) MAC(context.Context) (net.HardwareAddr, error) {
	return nil, ErrUnsupported
}

func (Unsupported) GatewaySet(context.Context, netip.Addr) error  { return ErrUnsupported }
func (Unsupported) RouteAdd(context.Context, Route) error         { return ErrUnsupported }
func (Unsupported) RouteRemove(context.Context, netip.Addr) error { return ErrUnsupported }
func (Unsupported) RouteClear(context.Context) error              { return ErrUnsupported }

func (Unsupported) RouteList(context.Context) ([]Route, error) {
	return nil, ErrUnsupported
}

func (Unsupported) BindRaw(context.Context) (Socket, error) {
	return nil, ErrUnsupported
}

func (Unsupported) ListenTCP(context.Context, netip.AddrPort, ListenOptions) (Socket, error) {
	return nil, ErrUnsupported
}

func (Unsupported) BindUDP(context.Context, netip.AddrPort, BindOptions) (Socket, error) {
	return nil, ErrUnsupported
}

func (Unsupported) BindICMP(context.Context, netip.Addr) (Socket, error) {
	return nil, ErrUnsupported
}

func (Unsupported) ConnectTCP(context.Context, netip.AddrPort, netip.AddrPort) (Socket, error) {
	return nil, ErrUnsupported
}

func (Unsupported) Resolve(context.Context, string, uint16) ([]netip.Addr, error) {
	return nil, ErrUnsupported
}

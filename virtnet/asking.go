// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package virtnet

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

// Prompter asks whether networking may be enabled. call names the
// first networking function the instance used.
type Prompter interface {
	Confirm(ctx context.Context, call string) (bool, error)
}

// Fixed is a Prompter that always gives the same answer.
type Fixed bool

func (f Fixed) Confirm(context.Context, string) (bool, error) { return bool(f), nil }

// Decision is the memoized answer to the networking question for one
// instance. The prompter runs at most once, on the first call; the
// answer (or the prompt's failure) then holds for every later call and
// is never reset.
type Decision struct {
	prompter Prompter

	once    sync.Once
	allowed bool
	err     error

	mu    sync.Mutex
	call  string
	asked bool
}

// NewDecision returns an undecided Decision that will ask prompter.
func NewDecision(prompter Prompter) *Decision {
	return &Decision{prompter: prompter}
}

// Allowed returns the decision, asking first if nobody has yet.
func (d *Decision) Allowed(ctx context.Context, call string) (bool, error) {
	d.once.Do(func() {
		d.mu.Lock()
		d.call = call
		d.asked = true
		d.mu.Unlock()

		allowed, err := d.prompter.Confirm(ctx, call)
		if err != nil {
			d.err = fmt.Errorf("asking to enable networking: %v: %w", err, wasi.ErrnoIo)
			return
		}
		d.allowed = allowed
	})
	return d.allowed, d.err
}

// Asked returns the call that triggered the prompt, if it has run.
func (d *Decision) Asked() (call string, asked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.call, d.asked
}

// Asking forwards each call to a capable provider when the Decision
// allows networking and to Unsupported when it does not.
type Asking struct {
	decision *Decision
	capable  Networking
}

var _ Networking = (*Asking)(nil)

// NewAsking gates capable behind decision.
func NewAsking(decision *Decision, capable Networking) *Asking {
	return &Asking{decision: decision, capable: capable}
}

func (a *Asking) target(ctx context.Context, call string) (Networking, error) {
	allowed, err := a.decision.Allowed(ctx, call)
	if err != nil {
		return nil, err
	}
	if allowed {
		return a.capable, nil
	}
	return Unsupported{}, nil
}

func (a *Asking) Bridge(ctx context.Context, network, token string, security StreamSecurity) error {
	target, err := a.target(ctx, "bridge")
	if err != nil {
		return err
	}
	return target.Bridge(ctx, network, token, security)
}

func (a *Asking) Unbridge(ctx context.Context) error {
	target, err := a.target(ctx, "unbridge")
	if err != nil {
		return err
	}
	return target.Unbridge(ctx)
}

func (a *Asking) DhcpAcquire(ctx context.Context) ([]netip.Addr, error) {
	target, err := a.target(ctx, "dhcp_acquire")
	if err != nil {
		return nil, err
	}
	return target.DhcpAcquire(ctx)
}

func (a *Asking) IPAdd(ctx context.Context, cidr netip.Prefix) error {
	target, err := a.target(ctx, "ip_add")
	if err != nil {
		return err
	}
	return target.IPAdd(ctx, cidr)
}

func (a *Asking) IPRemove(ctx context.Context, addr netip.Addr) error {
	target, err := a.target(ctx, "ip_remove")
	if err != nil {
		return err
	}
	return target.IPRemove(ctx, addr)
}

func (a *Asking) IPClear(ctx context.Context) error {
	target, err := a.target(ctx, "ip_clear")
	if err != nil {
		return err
	}
	return target.IPClear(ctx)
}

func (a *Asking) IPList(ctx context.Context) ([]netip.Prefix, error) {
	target, err := a.target(ctx, "ip_list")
	if err != nil {
		return nil, err
	}
	return target.IPList(ctx)
}

func (a *Asking) MAC(ctx context.Context) (net.HardwareAddr, error) {
	target, err := a.target(ctx, "mac")
	if err != nil {
		return nil, err
	}
	return target.MAC(ctx)
}

func (a *Asking) GatewaySet(ctx context.Context, addr netip.Addr) error {
	target, err := a.target(ctx, "gateway_set")
	if err != nil {
		return err
	}
	return target.GatewaySet(ctx, addr)
}

func (a *Asking) RouteAdd(ctx context.Context, route Route) error {
	target, err := a.target(ctx, "route_add")
	if err != nil {
		return err
	}
	return target.RouteAdd(ctx, route)
}

func (a *Asking) RouteRemove(ctx context.Context, addr netip.Addr) error {
	target, err := a.target(ctx, "route_remove")
	if err != nil {
		return err
	}
	return target.RouteRemove(ctx, addr)
}

func (a *Asking) RouteClear(ctx context.Context) error {
	target, err := a.target(ctx, "route_clear")
	if err != nil {
		return err
	}
	return target.RouteClear(ctx)
}

func (a *Asking) RouteList(ctx context.Context) ([]Route, error) {
	target, err := a.target(ctx, "route_list")
	if err != nil {
		return nil, err
	}
	return target.RouteList(ctx)
}

func (a *Asking) BindRaw(ctx context.Context) (Socket, error) {
	target, err := a.target(ctx, "bind_raw")
	if err != nil {
		return nil, err
	}
	return target.BindRaw(ctx)
}

func (a *Asking) ListenTCP(ctx context.Context, addr netip.AddrPort, options ListenOptions) (Socket, error) {
	target, err := a.target(ctx, "listen_tcp")
	if err != nil {
		return nil, err
	}
	return target.ListenTCP(ctx, addr, options)
}

func (a *Asking) BindUDP(ctx context.Context, addr netip.AddrPort, options BindOptions) (Socket, error) {
	target, err := a.target(ctx, "bind_udp")
	if err != nil {
		return nil, err
	}
	return target.BindUDP(ctx, addr, options)
}

func (a *Asking) BindICMP(ctx context.Context, addr netip.Addr) (Socket, error) {
	target, err := a.target(ctx, "bind_icmp")
	if err != nil {
		return nil, err
	}
	return target.BindICMP(ctx, addr)
}

func (a *Asking) ConnectTCP(ctx context.Context, local, peer netip.AddrPort) (Socket, error) {
	target, err := a.target(ctx, "connect_tcp")
	if err != nil {
		return nil, err
	}
	return target.ConnectTCP(ctx, local, peer)
}

func (a *Asking) Resolve(ctx context.Context, host string, port uint16) ([]netip.Addr, error) {
	target, err := a.target(ctx, "resolve")
	if err != nil {
		return nil, err
	}
	return target.Resolve(ctx, host, port)
}

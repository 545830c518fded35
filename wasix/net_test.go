// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix_test

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"strings"
	"testing"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtnet"
	"github.com/hghpublic/wasmerio-wasmer/wasix"
)

// configureNetwork drives every journaled networking call once.
func configureNetwork(t *testing.T, env *wasix.Env) {
	t.Helper()
	ctx := context.Background()

	if err := env.PortBridge(ctx, "office", "token", virtnet.StreamSecurityAnyEncryption); err != nil {
		t.Fatalf("PortBridge: %v", err)
	}
	addresses, err := env.PortDhcpAcquire(ctx)
	if err != nil {
		t.Fatalf("PortDhcpAcquire: %v", err)
	}
	if !slices.Equal(addresses, []netip.Addr{netip.MustParseAddr("10.88.0.2")}) {
		t.Fatalf("PortDhcpAcquire = %v", addresses)
	}
	if err := env.PortAddrAdd(ctx, netip.MustParsePrefix("192.168.7.10/24")); err != nil {
		t.Fatalf("PortAddrAdd: %v", err)
	}
	if err := env.PortAddrAdd(ctx, netip.MustParsePrefix("192.168.8.10/24")); err != nil {
		t.Fatalf("PortAddrAdd: %v", err)
	}
	if err := env.PortAddrRemove(ctx, netip.MustParseAddr("192.168.8.10")); err != nil {
		t.Fatalf("PortAddrRemove: %v", err)
	}
	if err := env.PortGatewaySet(ctx, netip.MustParseAddr("10.88.0.1")); err != nil {
		t.Fatalf("PortGatewaySet: %v", err)
	}
	route := virtnet.Route{Cidr: netip.MustParsePrefix("172.20.0.0/16"), ViaRouter: netip.MustParseAddr("10.88.0.1")}
	if err := env.PortRouteAdd(ctx, route); err != nil {
		t.Fatalf("PortRouteAdd: %v", err)
	}
	extra := virtnet.Route{Cidr: netip.MustParsePrefix("172.21.0.0/16"), ViaRouter: netip.MustParseAddr("10.88.0.1")}
	if err := env.PortRouteAdd(ctx, extra); err != nil {
		t.Fatalf("PortRouteAdd: %v", err)
	}
	if err := env.PortRouteRemove(ctx, netip.MustParseAddr("172.21.0.0")); err != nil {
		t.Fatalf("PortRouteRemove: %v", err)
	}

	if _, err := env.SockListenTCP(ctx, netip.MustParseAddrPort("0.0.0.0:0"), virtnet.ListenOptions{ReuseAddr: true}); err != nil {
		t.Fatalf("SockListenTCP: %v", err)
	}
	if _, err := env.SockBindUDP(ctx, netip.MustParseAddrPort("10.88.0.2:5353"), virtnet.BindOptions{}); err != nil {
		t.Fatalf("SockBindUDP: %v", err)
	}
	if _, err := env.SockBindICMP(ctx, netip.MustParseAddr("10.88.0.2")); err != nil {
		t.Fatalf("SockBindICMP: %v", err)
	}
	if _, err := env.SockBindRaw(ctx); err != nil {
		t.Fatalf("SockBindRaw: %v", err)
	}
	if _, err := env.SockConnectTCP(ctx, netip.AddrPort{}, netip.MustParseAddrPort("172.20.1.1:443")); err != nil {
		t.Fatalf("SockConnectTCP: %v", err)
	}
}

func TestNetworkCallsReplay(t *testing.T) {
	store := newStore()
	original := newEnv(t, wasix.Config{
		Instance:   "net",
		Networking: virtnet.NewLocal(virtnet.LocalConfig{Identity: "net"}),
		Journal:    store,
	})
	configureNetwork(t, original)

	all := records(t, store)
	listen, ok := all[9].Entry.(*journal.SocketListenTCP)
	if !ok {
		t.Fatalf("record 9 is %T, want *journal.SocketListenTCP", all[9].Entry)
	}
	if listen.Addr != netip.MustParseAddrPort("0.0.0.0:49152") || !listen.ReuseAddr {
		t.Fatalf("recorded listen = %+v, want the bound ephemeral port", listen)
	}

	provider := virtnet.NewLocal(virtnet.LocalConfig{Identity: "net"})
	restored := newEnv(t, wasix.Config{Instance: "net", Networking: provider, Allocator: highAllocator})
	if _, err := restoreInto(t, store, restored); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	requireSameDescriptors(t, restored, original)

	ctx := context.Background()
	wantAddrs, _ := original.PortAddrList(ctx)
	gotAddrs, err := restored.PortAddrList(ctx)
	if err != nil || !slices.Equal(gotAddrs, wantAddrs) {
		t.Fatalf("restored addresses = %v, %v; want %v", gotAddrs, err, wantAddrs)
	}
	wantRoutes, _ := original.PortRouteList(ctx)
	gotRoutes, err := restored.PortRouteList(ctx)
	if err != nil || len(gotRoutes) != len(wantRoutes) {
		t.Fatalf("restored routes = %v, %v; want %v", gotRoutes, err, wantRoutes)
	}
	if network, bridged := provider.Bridged(); !bridged || network != "office" {
		t.Fatalf("Bridged() = %q, %v", network, bridged)
	}
}

func TestRestoreFailsOnDifferentLease(t *testing.T) {
	store := newStore()
	original := newEnv(t, wasix.Config{
		Instance:   "lease",
		Networking: virtnet.NewLocal(virtnet.LocalConfig{}),
		Journal:    store,
	})
	if _, err := original.PortDhcpAcquire(context.Background()); err != nil {
		t.Fatalf("PortDhcpAcquire: %v", err)
	}

	restored := newEnv(t, wasix.Config{
		Instance: "lease",
		Networking: virtnet.NewLocal(virtnet.LocalConfig{
			Pool: netip.MustParsePrefix("10.99.0.0/24"),
		}),
	})
	_, err := restoreInto(t, store, restored)
	if err == nil {
		t.Fatal("Restore succeeded with a lease from a different pool")
	}
	var restoreErr *wasix.RestoreError
	if !errors.As(err, &restoreErr) {
		t.Fatalf("Restore error = %T %v, want *wasix.RestoreError", err, err)
	}
	var replayErr *wasix.ReplayError
	if !errors.As(err, &replayErr) {
		t.Fatalf("Restore error = %v, want a *wasix.ReplayError inside", err)
	}
	if replayErr.Call != "port_dhcp_acquire" || replayErr.Errno != wasi.ErrnoAddrnotavail {
		t.Fatalf("ReplayError = %+v, want port_dhcp_acquire addrnotavail", replayErr)
	}
	if !strings.Contains(replayErr.Error(), "10.88.0.2") || !strings.Contains(replayErr.Error(), "10.99.0.2") {
		t.Errorf("ReplayError %q does not name both leases", replayErr.Error())
	}
}

func TestNetworkQueriesAreNotJournaled(t *testing.T) {
	store := newStore()
	env := newEnv(t, wasix.Config{
		Networking: virtnet.NewLocal(virtnet.LocalConfig{Hosts: map[string][]netip.Addr{
			"db.internal": {netip.MustParseAddr("10.88.0.9")},
		}}),
		Journal: store,
	})
	ctx := context.Background()

	if _, err := env.PortMac(ctx); err != nil {
		t.Fatalf("PortMac: %v", err)
	}
	if _, err := env.PortAddrList(ctx); err != nil {
		t.Fatalf("PortAddrList: %v", err)
	}
	if _, err := env.PortRouteList(ctx); err != nil {
		t.Fatalf("PortRouteList: %v", err)
	}
	addresses, err := env.ResolveHost(ctx, "db.internal", 5432)
	if err != nil || !slices.Equal(addresses, []netip.Addr{netip.MustParseAddr("10.88.0.9")}) {
		t.Fatalf("ResolveHost = %v, %v", addresses, err)
	}
	if length, _ := store.Len(ctx); length != 0 {
		t.Fatalf("queries journaled %d records", length)
	}
}

func TestNetworkingDisabledFailsWithoutJournaling(t *testing.T) {
	store := newStore()
	decision := virtnet.NewDecision(virtnet.Fixed(false))
	env := newEnv(t, wasix.Config{
		Networking: virtnet.NewAsking(decision, virtnet.NewLocal(virtnet.LocalConfig{})),
		Journal:    store,
	})
	ctx := context.Background()

	if _, err := env.PortDhcpAcquire(ctx); !errors.Is(err, wasi.ErrnoNotsup) {
		t.Fatalf("PortDhcpAcquire = %v, want notsup", err)
	}
	if _, err := env.SockBindRaw(ctx); !errors.Is(err, wasi.ErrnoNotsup) {
		t.Fatalf("SockBindRaw = %v, want notsup", err)
	}
	if call, asked := decision.Asked(); !asked || call != "dhcp_acquire" {
		t.Fatalf("Asked() = %q, %v; want dhcp_acquire", call, asked)
	}
	if length, _ := store.Len(ctx); length != 0 {
		t.Fatalf("refused calls journaled %d records", length)
	}
}

func TestClosingSocketReleasesPort(t *testing.T) {
	env := newEnv(t, wasix.Config{Networking: virtnet.NewLocal(virtnet.LocalConfig{})})
	ctx := context.Background()
	addr := netip.MustParseAddrPort("127.0.0.1:8080")

	fd, err := env.SockListenTCP(ctx, addr, virtnet.ListenOptions{})
	if err != nil {
		t.Fatalf("SockListenTCP: %v", err)
	}
	if _, err := env.SockListenTCP(ctx, addr, virtnet.ListenOptions{}); !errors.Is(err, wasi.ErrnoAddrinuse) {
		t.Fatalf("second listen = %v, want addrinuse", err)
	}
	dup, err := env.FdDup(ctx, fd)
	if err != nil {
		t.Fatalf("FdDup: %v", err)
	}
	if err := env.FdClose(ctx, fd); err != nil {
		t.Fatalf("FdClose: %v", err)
	}
	// The duplicate still holds the port.
	if _, err := env.SockListenTCP(ctx, addr, virtnet.ListenOptions{}); !errors.Is(err, wasi.ErrnoAddrinuse) {
		t.Fatalf("listen while duplicate open = %v, want addrinuse", err)
	}
	if err := env.FdClose(ctx, dup); err != nil {
		t.Fatalf("FdClose(dup): %v", err)
	}
	if _, err := env.SockListenTCP(ctx, addr, virtnet.ListenOptions{}); err != nil {
		t.Fatalf("listen after close: %v", err)
	}
}

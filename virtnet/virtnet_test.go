// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package virtnet

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

func requireErrno(t *testing.T, what string, err error, want wasi.Errno) {
	t.Helper()
	if got := wasi.ErrnoFromError(err); got != want {
		t.Errorf("%s: errno %s (%v), want %s", what, got, err, want)
	}
}

func TestUnsupportedFailsEveryCall(t *testing.T) {
	ctx := context.Background()
	var provider Networking = Unsupported{}

	if err := provider.Bridge(ctx, "net", "token", StreamSecurityAnyEncryption); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Bridge = %v", err)
	}
	if _, err := provider.DhcpAcquire(ctx); !errors.Is(err, ErrUnsupported) {
		t.Errorf("DhcpAcquire = %v", err)
	}
	_, err := provider.ListenTCP(ctx, netip.MustParseAddrPort("0.0.0.0:80"), ListenOptions{})
	requireErrno(t, "ListenTCP", err, wasi.ErrnoNotsup)
}

func TestLocalDhcpIsDeterministic(t *testing.T) {
	ctx := context.Background()
	acquire := func() []netip.Addr {
		local := NewLocal(LocalConfig{Pool: netip.MustParsePrefix("192.168.7.0/29")})
		if err := local.IPAdd(ctx, netip.MustParsePrefix("192.168.7.2/29")); err != nil {
			t.Fatalf("IPAdd: %v", err)
		}
		addrs, err := local.DhcpAcquire(ctx)
		if err != nil {
			t.Fatalf("DhcpAcquire: %v", err)
		}
		return addrs
	}

	first, second := acquire(), acquire()
	if len(first) != 1 || first[0] != netip.MustParseAddr("192.168.7.3") {
		t.Fatalf("lease = %v, want [192.168.7.3] (network, gateway and static address skipped)", first)
	}
	if first[0] != second[0] {
		t.Errorf("two fresh interfaces leased %v and %v", first, second)
	}
}

func TestLocalDhcpConfiguresGateway(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(LocalConfig{})
	addrs, err := local.DhcpAcquire(ctx)
	if err != nil {
		t.Fatalf("DhcpAcquire: %v", err)
	}
	again, err := local.DhcpAcquire(ctx)
	if err != nil || again[0] != addrs[0] {
		t.Errorf("second DhcpAcquire = %v, %v; want the existing lease %v", again, err, addrs)
	}

	routes, err := local.RouteList(ctx)
	if err != nil {
		t.Fatalf("RouteList: %v", err)
	}
	if len(routes) != 1 || routes[0].ViaRouter != netip.MustParseAddr("10.88.0.1") || routes[0].Cidr.Bits() != 0 {
		t.Errorf("routes = %+v, want a default route via 10.88.0.1", routes)
	}
}

func TestLocalDhcpPoolExhaustion(t *testing.T) {
	ctx := context.Background()
	// /30: network, gateway, one host, broadcast.
	local := NewLocal(LocalConfig{Pool: netip.MustParsePrefix("172.16.0.0/30")})
	if _, err := local.DhcpAcquire(ctx); err != nil {
		t.Fatalf("DhcpAcquire: %v", err)
	}
	if err := local.IPClear(ctx); err != nil {
		t.Fatalf("IPClear: %v", err)
	}
	if err := local.IPAdd(ctx, netip.MustParsePrefix("172.16.0.2/30")); err != nil {
		t.Fatalf("IPAdd: %v", err)
	}
	if _, err := local.DhcpAcquire(ctx); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("DhcpAcquire on full pool = %v, want ErrPoolExhausted", err)
	}
}

func TestLocalAddressesAndRoutes(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(LocalConfig{})
	cidr := netip.MustParsePrefix("10.1.2.3/24")

	if err := local.IPAdd(ctx, cidr); err != nil {
		t.Fatalf("IPAdd: %v", err)
	}
	requireErrno(t, "IPAdd(duplicate)", local.IPAdd(ctx, cidr), wasi.ErrnoExist)
	requireErrno(t, "IPRemove(absent)", local.IPRemove(ctx, netip.MustParseAddr("10.9.9.9")), wasi.ErrnoAddrnotavail)

	route := Route{Cidr: netip.MustParsePrefix("10.2.0.0/16"), ViaRouter: netip.MustParseAddr("10.1.2.1")}
	if err := local.RouteAdd(ctx, route); err != nil {
		t.Fatalf("RouteAdd: %v", err)
	}
	if err := local.RouteRemove(ctx, netip.MustParseAddr("10.2.0.0")); err != nil {
		t.Fatalf("RouteRemove: %v", err)
	}
	requireErrno(t, "RouteRemove(absent)", local.RouteRemove(ctx, netip.MustParseAddr("10.2.0.0")), wasi.ErrnoNoent)

	if err := local.IPRemove(ctx, cidr.Addr()); err != nil {
		t.Fatalf("IPRemove: %v", err)
	}
	if list, _ := local.IPList(ctx); len(list) != 0 {
		t.Errorf("IPList after remove = %v", list)
	}
}

func TestLocalPortReservation(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(LocalConfig{})
	addr := netip.MustParseAddrPort("0.0.0.0:8080")

	listener, err := local.ListenTCP(ctx, addr, ListenOptions{})
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	_, err = local.ListenTCP(ctx, addr, ListenOptions{})
	requireErrno(t, "second ListenTCP", err, wasi.ErrnoAddrinuse)

	// UDP has its own port space.
	udp, err := local.BindUDP(ctx, addr, BindOptions{})
	if err != nil {
		t.Fatalf("BindUDP on a TCP port: %v", err)
	}
	udp.Close()

	if err := listener.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	requireErrno(t, "second Close", listener.Close(), wasi.ErrnoBadf)
	again, err := local.ListenTCP(ctx, addr, ListenOptions{})
	if err != nil {
		t.Fatalf("ListenTCP after close: %v", err)
	}
	again.Close()

	_, err = local.BindUDP(ctx, netip.MustParseAddrPort("203.0.113.9:53"), BindOptions{})
	requireErrno(t, "BindUDP(foreign address)", err, wasi.ErrnoAddrnotavail)
}

func TestLocalEphemeralPorts(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(LocalConfig{})
	first, err := local.BindUDP(ctx, netip.MustParseAddrPort("127.0.0.1:0"), BindOptions{})
	if err != nil {
		t.Fatalf("BindUDP: %v", err)
	}
	second, err := local.BindUDP(ctx, netip.MustParseAddrPort("127.0.0.1:0"), BindOptions{})
	if err != nil {
		t.Fatalf("BindUDP: %v", err)
	}
	if first.LocalAddr().Port() != 49152 || second.LocalAddr().Port() != 49153 {
		t.Errorf("ephemeral ports %d, %d; want 49152, 49153", first.LocalAddr().Port(), second.LocalAddr().Port())
	}
}

func TestLocalConnectTCP(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(LocalConfig{})
	peer := netip.MustParseAddrPort("93.184.216.34:443")

	_, err := local.ConnectTCP(ctx, netip.AddrPort{}, peer)
	requireErrno(t, "ConnectTCP without routes", err, wasi.ErrnoNetunreach)

	addrs, err := local.DhcpAcquire(ctx)
	if err != nil {
		t.Fatalf("DhcpAcquire: %v", err)
	}
	stream, err := local.ConnectTCP(ctx, netip.AddrPort{}, peer)
	if err != nil {
		t.Fatalf("ConnectTCP: %v", err)
	}
	if stream.LocalAddr().Addr() != addrs[0] || stream.PeerAddr() != peer {
		t.Errorf("stream %s -> %s, want from %s to %s", stream.LocalAddr(), stream.PeerAddr(), addrs[0], peer)
	}
	if stream.Kind() != SocketTCPStream {
		t.Errorf("kind = %s", stream.Kind())
	}
}

func TestLocalResolve(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(LocalConfig{Hosts: map[string][]netip.Addr{
		"Registry.Example": {netip.MustParseAddr("10.0.0.5")},
	}})
	addrs, err := local.Resolve(ctx, "registry.example.", 443)
	if err != nil || len(addrs) != 1 || addrs[0] != netip.MustParseAddr("10.0.0.5") {
		t.Errorf("Resolve(registry.example.) = %v, %v", addrs, err)
	}
	_, err = local.Resolve(ctx, "unknown.example", 80)
	requireErrno(t, "Resolve(unknown)", err, wasi.ErrnoNoent)
}

func TestLocalMACIsStable(t *testing.T) {
	ctx := context.Background()
	a, _ := NewLocal(LocalConfig{Identity: "instance-1"}).MAC(ctx)
	b, _ := NewLocal(LocalConfig{Identity: "instance-1"}).MAC(ctx)
	c, _ := NewLocal(LocalConfig{Identity: "instance-2"}).MAC(ctx)
	if !bytes.Equal(a, b) {
		t.Errorf("same identity gave %s and %s", a, b)
	}
	if bytes.Equal(a, c) {
		t.Errorf("different identities share MAC %s", a)
	}
	if a[0]&0x02 == 0 || a[0]&0x01 != 0 {
		t.Errorf("MAC %s is not locally administered unicast", a)
	}
}

// countingPrompter counts how often it is asked.
type countingPrompter struct {
	mu     sync.Mutex
	calls  []string
	answer bool
}

func (p *countingPrompter) Confirm(_ context.Context, call string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return p.answer, nil
}

func TestAskingAsksOnce(t *testing.T) {
	ctx := context.Background()
	prompter := &countingPrompter{answer: true}
	decision := NewDecision(prompter)
	asking := NewAsking(decision, NewLocal(LocalConfig{}))

	if _, asked := decision.Asked(); asked {
		t.Fatal("decision asked before any call")
	}

	var waitGroup sync.WaitGroup
	for range 8 {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			asking.MAC(ctx)
		}()
	}
	waitGroup.Wait()
	if _, err := asking.DhcpAcquire(ctx); err != nil {
		t.Fatalf("DhcpAcquire after consent: %v", err)
	}

	if len(prompter.calls) != 1 || prompter.calls[0] != "mac" {
		t.Errorf("prompter calls = %v, want exactly [mac]", prompter.calls)
	}
	if call, asked := decision.Asked(); !asked || call != "mac" {
		t.Errorf("Asked() = %q, %v", call, asked)
	}
}

func TestAskingDenied(t *testing.T) {
	ctx := context.Background()
	asking := NewAsking(NewDecision(Fixed(false)), NewLocal(LocalConfig{}))
	if err := asking.Bridge(ctx, "net", "", StreamSecurityUnencrypted); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Bridge after denial = %v, want ErrUnsupported", err)
	}
	if _, err := asking.Resolve(ctx, "localhost", 80); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Resolve after denial = %v, want ErrUnsupported", err)
	}
}

func TestConfirmPrompt(t *testing.T) {
	var output bytes.Buffer
	allowed, err := confirm(strings.NewReader("yes\n"), &output, "bridge")
	if err != nil || !allowed {
		t.Fatalf("confirm(yes) = %v, %v", allowed, err)
	}
	text := output.String()
	for _, want := range []string{
		"Networking needs to be enabled to call function 'bridge'.",
		"Enable networking?",
		"to enable networking by default, use the `--net` flag",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt output %q is missing %q", text, want)
		}
	}

	output.Reset()
	allowed, err = confirm(strings.NewReader("n\n"), &output, "bind_udp")
	if err != nil || allowed {
		t.Errorf("confirm(n) = %v, %v", allowed, err)
	}
	if strings.Contains(output.String(), "--net") {
		t.Error("declined prompt printed the --net hint")
	}

	if _, err := confirm(strings.NewReader(""), &output, "mac"); err == nil {
		t.Error("confirm on closed input returned no error")
	}
}

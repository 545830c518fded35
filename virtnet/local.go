// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package virtnet

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

const (
	ephemeralPortFirst = 49152
	ephemeralPortLast  = 65535
)

// LocalConfig configures a Local provider. The zero value is usable.
type LocalConfig struct {
	// Pool is the range DhcpAcquire leases from. Its first host
	// address is the gateway handed out with every lease. Defaults to
	// 10.88.0.0/24.
	Pool netip.Prefix

	// Identity seeds the interface's MAC address, so the same
	// identity always sees the same MAC. Defaults to "local".
	Identity string

	// Hosts are static answers for Resolve, keyed by lower-case host
	// name.
	Hosts map[string][]netip.Addr

	Logger *slog.Logger
}

// Local is an in-memory network interface. Addresses and ports are
// always allocated lowest-free first, so two Locals given the same call
// sequence end in the same state.
type Local struct {
	pool   netip.Prefix
	mac    net.HardwareAddr
	hosts  map[string][]netip.Addr
	logger *slog.Logger

	mu        sync.Mutex
	network   string
	bridged   bool
	addresses []netip.Prefix
	lease     netip.Addr
	gateway   netip.Addr
	routes    []Route
	ports     map[portKey][]*binding
}

var _ Networking = (*Local)(nil)

type protocol uint8

const (
	protocolTCP protocol = iota + 1
	protocolUDP
)

type portKey struct {
	protocol protocol
	port     uint16
}

type binding struct {
	addr      netip.Addr
	reusePort bool
}

// NewLocal returns an unbridged interface with no addresses.
func NewLocal(config LocalConfig) *Local {
	pool := config.Pool
	if !pool.IsValid() {
		pool = netip.MustParsePrefix("10.88.0.0/24")
	}
	identity := config.Identity
	if identity == "" {
		identity = "local"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	hosts := make(map[string][]netip.Addr, len(config.Hosts))
	for name, addrs := range config.Hosts {
		hosts[normalizeHost(name)] = slices.Clone(addrs)
	}

	return &Local{
		pool:   pool.Masked(),
		mac:    macFromIdentity(identity),
		hosts:  hosts,
		logger: logger,
		ports:  make(map[portKey][]*binding),
	}
}

// macFromIdentity derives a locally administered unicast MAC address.
func macFromIdentity(identity string) net.HardwareAddr {
	sum := sha256.Sum256([]byte(identity))
	return net.HardwareAddr{0x02, sum[0], sum[1], sum[2], sum[3], sum[4]}
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

func (l *Local) Bridge(ctx context.Context, network, token string, security StreamSecurity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if network == "" {
		return fmt.Errorf("bridging: empty network name: %w", wasi.ErrnoInval)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.network = network
	l.bridged = true
	l.logger.Debug("interface bridged", "network", network, "security", security)
	return nil
}

func (l *Local) Unbridge(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.bridged {
		return fmt.Errorf("unbridging: %w", wasi.ErrnoNotconn)
	}
	l.network = ""
	l.bridged = false
	return nil
}

// Bridged returns the network the interface is bridged to.
func (l *Local) Bridged() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.network, l.bridged
}

func (l *Local) DhcpAcquire(ctx context.Context) ([]netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lease.IsValid() {
		return []netip.Addr{l.lease}, nil
	}

	gateway := l.pool.Addr().Next()
	for candidate := gateway.Next(); l.pool.Contains(candidate); candidate = candidate.Next() {
		if l.isBroadcast(candidate) || l.hasAddressLocked(candidate) {
			continue
		}
		l.lease = candidate
		l.addresses = append(l.addresses, netip.PrefixFrom(candidate, l.pool.Bits()))
		l.setGatewayLocked(gateway)
		l.logger.Debug("dhcp lease acquired", "addr", candidate, "gateway", gateway)
		return []netip.Addr{candidate}, nil
	}
	return nil, ErrPoolExhausted
}

func (l *Local) isBroadcast(addr netip.Addr) bool {
	return addr.Is4() && !l.pool.Contains(addr.Next())
}

func (l *Local) hasAddressLocked(addr netip.Addr) bool {
	for _, prefix := range l.addresses {
		if prefix.Addr() == addr {
			return true
		}
	}
	return false
}

func (l *Local) IPAdd(ctx context.Context, cidr netip.Prefix) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cidr.IsValid() {
		return fmt.Errorf("adding address: invalid prefix: %w", wasi.ErrnoInval)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasAddressLocked(cidr.Addr()) {
		return fmt.Errorf("adding address %s: %w", cidr, wasi.ErrnoExist)
	}
	l.addresses = append(l.addresses, cidr)
	return nil
}

func (l *Local) IPRemove(ctx context.Context, addr netip.Addr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	index := slices.IndexFunc(l.addresses, func(prefix netip.Prefix) bool {
		return prefix.Addr() == addr
	})
	if index < 0 {
		return fmt.Errorf("removing address %s: %w", addr, wasi.ErrnoAddrnotavail)
	}
	l.addresses = slices.Delete(l.addresses, index, index+1)
	if addr == l.lease {
		l.lease = netip.Addr{}
	}
	return nil
}

func (l *Local) IPClear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addresses = nil
	l.lease = netip.Addr{}
	return nil
}

func (l *Local) IPList(ctx context.Context) ([]netip.Prefix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.addresses), nil
}

func (l *Local) MAC(ctx context.Context) (net.HardwareAddr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(l.mac), nil
}

func (l *Local) GatewaySet(ctx context.Context, addr netip.Addr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !addr.IsValid() {
		return fmt.Errorf("setting gateway: invalid address: %w", wasi.ErrnoInval)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setGatewayLocked(addr)
	return nil
}

// setGatewayLocked records the gateway and makes it the default route
// for its address family.
func (l *Local) setGatewayLocked(addr netip.Addr) {
	l.gateway = addr
	defaultRoute := netip.PrefixFrom(netip.IPv4Unspecified(), 0)
	if addr.Is6() {
		defaultRoute = netip.PrefixFrom(netip.IPv6Unspecified(), 0)
	}
	l.routes = slices.DeleteFunc(l.routes, func(route Route) bool {
		return route.Cidr == defaultRoute
	})
	l.routes = append(l.routes, Route{Cidr: defaultRoute, ViaRouter: addr})
}

func (l *Local) RouteAdd(ctx context.Context, route Route) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !route.Cidr.IsValid() || !route.ViaRouter.IsValid() {
		return fmt.Errorf("adding route: %w", wasi.ErrnoInval)
	}
	route.Cidr = route.Cidr.Masked()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes = slices.DeleteFunc(l.routes, func(existing Route) bool {
		return existing.Cidr == route.Cidr
	})
	l.routes = append(l.routes, route)
	return nil
}

func (l *Local) RouteRemove(ctx context.Context, addr netip.Addr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	before := len(l.routes)
	l.routes = slices.DeleteFunc(l.routes, func(route Route) bool {
		return route.Cidr.Addr() == addr
	})
	if len(l.routes) == before {
		return fmt.Errorf("removing route %s: %w", addr, wasi.ErrnoNoent)
	}
	return nil
}

func (l *Local) RouteClear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes = nil
	l.gateway = netip.Addr{}
	return nil
}

func (l *Local) RouteList(ctx context.Context) ([]Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.routes), nil
}

func (l *Local) BindRaw(ctx context.Context) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &localSocket{owner: l, kind: SocketRaw}, nil
}

func (l *Local) ListenTCP(ctx context.Context, addr netip.AddrPort, options ListenOptions) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if options.OnlyV6 && addr.Addr().Is4() {
		return nil, fmt.Errorf("listening on %s: v6-only on an IPv4 address: %w", addr, wasi.ErrnoInval)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bindLocked(SocketTCPListener, protocolTCP, addr, options.ReusePort, netip.AddrPort{})
}

func (l *Local) BindUDP(ctx context.Context, addr netip.AddrPort, options BindOptions) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bindLocked(SocketUDP, protocolUDP, addr, options.ReusePort, netip.AddrPort{})
}

func (l *Local) BindICMP(ctx context.Context, addr netip.Addr) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkLocalAddrLocked(addr); err != nil {
		return nil, err
	}
	return &localSocket{owner: l, kind: SocketICMP, local: netip.AddrPortFrom(addr, 0)}, nil
}

func (l *Local) ConnectTCP(ctx context.Context, local, peer netip.AddrPort) (Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !peer.IsValid() || peer.Port() == 0 || peer.Addr().IsUnspecified() {
		return nil, fmt.Errorf("connecting to %s: %w", peer, wasi.ErrnoInval)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	source := local.Addr()
	if !source.IsValid() || source.IsUnspecified() {
		chosen, err := l.sourceAddressLocked(peer.Addr())
		if err != nil {
			return nil, err
		}
		source = chosen
	} else if !l.reachableLocked(peer.Addr()) {
		return nil, fmt.Errorf("connecting to %s: %w", peer, wasi.ErrnoNetunreach)
	}
	return l.bindLocked(SocketTCPStream, protocolTCP, netip.AddrPortFrom(source, local.Port()), false, peer)
}

// sourceAddressLocked picks the local address used to reach peer.
func (l *Local) sourceAddressLocked(peer netip.Addr) (netip.Addr, error) {
	if peer.IsLoopback() {
		if peer.Is4() {
			return netip.AddrFrom4([4]byte{127, 0, 0, 1}), nil
		}
		return netip.IPv6Loopback(), nil
	}
	if !l.reachableLocked(peer) {
		return netip.Addr{}, fmt.Errorf("connecting to %s: %w", peer, wasi.ErrnoNetunreach)
	}
	for _, prefix := range l.addresses {
		if prefix.Addr().Is4() == peer.Is4() {
			return prefix.Addr(), nil
		}
	}
	return netip.Addr{}, fmt.Errorf("connecting to %s: no source address: %w", peer, wasi.ErrnoNetunreach)
}

// reachableLocked reports whether peer is on-link or covered by a
// route.
func (l *Local) reachableLocked(peer netip.Addr) bool {
	if peer.IsLoopback() {
		return true
	}
	for _, prefix := range l.addresses {
		if prefix.Masked().Contains(peer) {
			return true
		}
	}
	for _, route := range l.routes {
		if route.Cidr.Contains(peer) {
			return true
		}
	}
	return false
}

func (l *Local) checkLocalAddrLocked(addr netip.Addr) error {
	switch {
	case !addr.IsValid():
		return fmt.Errorf("binding: invalid address: %w", wasi.ErrnoInval)
	case addr.IsUnspecified(), addr.IsLoopback(), l.hasAddressLocked(addr):
		return nil
	}
	return fmt.Errorf("binding %s: %w", addr, wasi.ErrnoAddrnotavail)
}

// bindLocked reserves addr (choosing an ephemeral port for port 0) and
// returns the socket holding the reservation.
func (l *Local) bindLocked(kind SocketKind, proto protocol, addr netip.AddrPort, reusePort bool, peer netip.AddrPort) (Socket, error) {
	if err := l.checkLocalAddrLocked(addr.Addr()); err != nil {
		return nil, err
	}

	port := addr.Port()
	if port == 0 {
		chosen, err := l.ephemeralPortLocked(proto)
		if err != nil {
			return nil, err
		}
		port = chosen
	}

	key := portKey{protocol: proto, port: port}
	for _, existing := range l.ports[key] {
		overlapping := existing.addr == addr.Addr() || existing.addr.IsUnspecified() || addr.Addr().IsUnspecified()
		if overlapping && !(existing.reusePort && reusePort) {
			return nil, fmt.Errorf("binding %s: %w", netip.AddrPortFrom(addr.Addr(), port), wasi.ErrnoAddrinuse)
		}
	}

	reservation := &binding{addr: addr.Addr(), reusePort: reusePort}
	l.ports[key] = append(l.ports[key], reservation)
	return &localSocket{
		owner:   l,
		kind:    kind,
		local:   netip.AddrPortFrom(addr.Addr(), port),
		peer:    peer,
		key:     key,
		binding: reservation,
	}, nil
}

func (l *Local) ephemeralPortLocked(proto protocol) (uint16, error) {
	for port := ephemeralPortFirst; port <= ephemeralPortLast; port++ {
		if len(l.ports[portKey{protocol: proto, port: uint16(port)}]) == 0 {
			return uint16(port), nil
		}
	}
	return 0, ErrPortsExhausted
}

func (l *Local) release(key portKey, reservation *binding) {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := slices.DeleteFunc(l.ports[key], func(existing *binding) bool {
		return existing == reservation
	})
	if len(remaining) == 0 {
		delete(l.ports, key)
		return
	}
	l.ports[key] = remaining
}

func (l *Local) Resolve(ctx context.Context, host string, port uint16) ([]netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	name := normalizeHost(host)
	if addrs, ok := l.hosts[name]; ok {
		return slices.Clone(addrs), nil
	}
	if name == "localhost" {
		return []netip.Addr{netip.AddrFrom4([4]byte{127, 0, 0, 1}), netip.IPv6Loopback()}, nil
	}
	return nil, fmt.Errorf("resolving %q: %w", host, wasi.ErrnoNoent)
}

type localSocket struct {
	owner   *Local
	kind    SocketKind
	local   netip.AddrPort
	peer    netip.AddrPort
	key     portKey
	binding *binding

	mu     sync.Mutex
	closed bool
}

func (s *localSocket) Kind() SocketKind          { return s.kind }
func (s *localSocket) LocalAddr() netip.AddrPort { return s.local }
func (s *localSocket) PeerAddr() netip.AddrPort  { return s.peer }

func (s *localSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("closing %s socket: %w", s.kind, wasi.ErrnoBadf)
	}
	s.closed = true
	if s.binding != nil {
		s.owner.release(s.key, s.binding)
	}
	return nil
}

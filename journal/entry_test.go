// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"
)

func TestKindRegistry(t *testing.T) {
	kinds := Kinds()
	if len(kinds) != 30 {
		t.Fatalf("Kinds() returned %d kinds, want 30", len(kinds))
	}
	names := make(map[string]EntryKind)
	for i, kind := range kinds {
		if i > 0 && kinds[i-1] >= kind {
			t.Errorf("Kinds() not ascending at %d: %d then %d", i, kinds[i-1], kind)
		}
		entry := kindInfo[kind].make()
		if entry.Kind() != kind {
			t.Errorf("constructor for %s builds a %s", kind, entry.Kind())
		}
		name := kind.String()
		if strings.HasPrefix(name, "unknown") {
			t.Errorf("kind %d has no name", kind)
		}
		if other, duplicate := names[name]; duplicate {
			t.Errorf("kinds %d and %d share the name %q", other, kind, name)
		}
		names[name] = kind
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := DecodeEntry(EntryKind(999), []byte{0xa0})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("DecodeEntry(999) = %v, want ErrUnknownKind", err)
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	entry := &OpenFileDescriptor{Fd: 9, DirFd: 3, Path: "data/log.txt", RightsBase: 0x3f}
	first, err := EncodeEntry(entry)
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	second, err := EncodeEntry(&OpenFileDescriptor{Path: "data/log.txt", RightsBase: 0x3f, DirFd: 3, Fd: 9})
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("equal entries encode differently:\n%x\n%x", first, second)
	}
}

func TestNetworkEntryRoundTrip(t *testing.T) {
	preferred := 30 * time.Second
	entry := &PortRouteAdd{
		Cidr:           netip.MustParsePrefix("10.0.0.0/8"),
		ViaRouter:      netip.MustParseAddr("10.0.0.1"),
		PreferredUntil: &preferred,
	}
	payload, err := EncodeEntry(entry)
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}
	decoded, err := DecodeEntry(KindPortRouteAdd, payload)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	route := decoded.(*PortRouteAdd)
	if route.Cidr != entry.Cidr || route.ViaRouter != entry.ViaRouter {
		t.Errorf("decoded route %v via %v, want %v via %v", route.Cidr, route.ViaRouter, entry.Cidr, entry.ViaRouter)
	}
	if route.PreferredUntil == nil || *route.PreferredUntil != preferred {
		t.Errorf("PreferredUntil = %v, want %v", route.PreferredUntil, preferred)
	}
	if route.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", *route.ExpiresAt)
	}
}

func TestDiagnose(t *testing.T) {
	text, err := Diagnose(&ChangeDirectory{Path: "/srv"})
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(text, `"/srv"`) {
		t.Errorf("Diagnose = %s, want it to mention the path", text)
	}
}

// countingApplier records which Apply method each entry reached.
type countingApplier struct {
	calls map[EntryKind]int
}

func (a *countingApplier) hit(kind EntryKind) error {
	a.calls[kind]++
	return nil
}

func (a *countingApplier) ApplyOpenFileDescriptor(_ context.Context, e *OpenFileDescriptor) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyDuplicateFileDescriptor(_ context.Context, e *DuplicateFileDescriptor) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyCloseFileDescriptor(_ context.Context, e *CloseFileDescriptor) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyCreateDirectory(_ context.Context, e *CreateDirectory) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyRemoveDirectory(_ context.Context, e *RemoveDirectory) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyUnlinkFile(_ context.Context, e *UnlinkFile) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPathRename(_ context.Context, e *PathRename) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyFileDescriptorWrite(_ context.Context, e *FileDescriptorWrite) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyFileDescriptorSeek(_ context.Context, e *FileDescriptorSeek) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyFileDescriptorSetFlags(_ context.Context, e *FileDescriptorSetFlags) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyFileDescriptorSetRights(_ context.Context, e *FileDescriptorSetRights) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyFileDescriptorSetSize(_ context.Context, e *FileDescriptorSetSize) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyChangeDirectory(_ context.Context, e *ChangeDirectory) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyProcessExit(_ context.Context, e *ProcessExit) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplySnapshot(_ context.Context, e *Snapshot) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortBridge(_ context.Context, e *PortBridge) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortUnbridge(_ context.Context, e *PortUnbridge) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortDhcpAcquire(_ context.Context, e *PortDhcpAcquire) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortAddAddr(_ context.Context, e *PortAddAddr) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortDelAddr(_ context.Context, e *PortDelAddr) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortAddrClear(_ context.Context, e *PortAddrClear) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortGatewaySet(_ context.Context, e *PortGatewaySet) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortRouteAdd(_ context.Context, e *PortRouteAdd) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortRouteDel(_ context.Context, e *PortRouteDel) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplyPortRouteClear(_ context.Context, e *PortRouteClear) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplySocketBindRaw(_ context.Context, e *SocketBindRaw) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplySocketListenTCP(_ context.Context, e *SocketListenTCP) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplySocketBindUDP(_ context.Context, e *SocketBindUDP) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplySocketBindICMP(_ context.Context, e *SocketBindICMP) error {
	return a.hit(e.Kind())
}
func (a *countingApplier) ApplySocketConnectTCP(_ context.Context, e *SocketConnectTCP) error {
	return a.hit(e.Kind())
}

func TestApplyReachesMatchingMethod(t *testing.T) {
	applier := &countingApplier{calls: make(map[EntryKind]int)}
	for _, kind := range Kinds() {
		if err := Apply(context.Background(), kindInfo[kind].make(), applier); err != nil {
			t.Fatalf("Apply(%s): %v", kind, err)
		}
	}
	for _, kind := range Kinds() {
		if applier.calls[kind] != 1 {
			t.Errorf("%s dispatched %d times, want 1", kind, applier.calls[kind])
		}
	}
}

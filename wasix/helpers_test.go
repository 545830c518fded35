// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix_test

import (
	"context"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/clock"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtfs"
	"github.com/hghpublic/wasmerio-wasmer/wasix"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// rootFd is where tests pin the root preopen, leaving 3 as the first
// descriptor a guest open receives.
const rootFd wasi.Fd = 9

const fileRights = wasi.RightsAll

func newStore() *journal.MemoryStore {
	return journal.NewMemoryStore(clock.Fake(epoch))
}

// newMemFS returns an in-memory tree containing dirs.
func newMemFS(t *testing.T, dirs ...string) *virtfs.MemFS {
	t.Helper()
	fsys := virtfs.NewMemFS()
	for _, dir := range dirs {
		if err := fsys.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("Mkdir(%q): %v", dir, err)
		}
	}
	return fsys
}

func newEnv(t *testing.T, config wasix.Config) *wasix.Env {
	t.Helper()
	if config.FileSystem == nil {
		config.FileSystem = virtfs.NewMemFS()
	}
	if config.Preopens == nil {
		config.Preopens = []wasix.Preopen{{Path: "/", Fd: rootFd}}
	}
	if config.Clock == nil {
		config.Clock = clock.Fake(epoch)
	}
	env, err := wasix.NewEnv(config)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

func openFile(t *testing.T, env *wasix.Env, name string, oflags wasi.Oflags) wasi.Fd {
	t.Helper()
	fd, err := env.PathOpen(context.Background(), rootFd, 0, name, oflags, fileRights, fileRights, 0)
	if err != nil {
		t.Fatalf("PathOpen(%q): %v", name, err)
	}
	return fd
}

func write(t *testing.T, env *wasix.Env, fd wasi.Fd, data string) {
	t.Helper()
	n, err := env.FdWrite(context.Background(), fd, []byte(data))
	if err != nil {
		t.Fatalf("FdWrite(%d): %v", fd, err)
	}
	if n != len(data) {
		t.Fatalf("FdWrite(%d) wrote %d bytes, want %d", fd, n, len(data))
	}
}

func records(t *testing.T, store journal.Store) []journal.Record {
	t.Helper()
	all, err := journal.ReadAll(context.Background(), store, 0)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return all
}

func kinds(all []journal.Record) []journal.EntryKind {
	result := make([]journal.EntryKind, len(all))
	for i, record := range all {
		result[i] = record.Entry.Kind()
	}
	return result
}

// restoreInto replays every record of store that belongs to env.
func restoreInto(t *testing.T, store journal.Store, env *wasix.Env) (int, error) {
	t.Helper()
	iterator, err := store.Read(context.Background(), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer iterator.Close()
	return wasix.Restore(context.Background(), env, iterator, wasix.RestoreOptions{})
}

func requireSameDescriptors(t *testing.T, got, want *wasix.Env) {
	t.Helper()
	gotInfos, wantInfos := got.Descriptors(), want.Descriptors()
	if !slices.Equal(gotInfos, wantInfos) {
		t.Fatalf("descriptor tables differ\n got: %+v\nwant: %+v", gotInfos, wantInfos)
	}
}

func requireSameTree(t *testing.T, got, want virtfs.FileSystem) {
	t.Helper()
	gotTree, err := virtfs.Tree(got)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	wantTree, err := virtfs.Tree(want)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if !maps.Equal(gotTree, wantTree) {
		t.Fatalf("file trees differ\n got: %v\nwant: %v", gotTree, wantTree)
	}
}

// lookup returns the descriptor with id fd from infos.
func lookup(infos []wasix.FdInfo, fd wasi.Fd) (wasix.FdInfo, bool) {
	for _, info := range infos {
		if info.Fd == fd {
			return info, true
		}
	}
	return wasix.FdInfo{}, false
}

// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/wasix"
)

// failingStore accepts appends until failAfter records have been
// written, then rejects every append.
type failingStore struct {
	*journal.MemoryStore
	failAfter int
	appended  atomic.Int32
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) Append(ctx context.Context, instance string, entry journal.Entry) (journal.Record, error) {
	if int(s.appended.Load()) >= s.failAfter {
		return journal.Record{}, errDiskFull
	}
	s.appended.Add(1)
	return s.MemoryStore.Append(ctx, instance, entry)
}

func TestNewEnvInstallsStdioAndPreopens(t *testing.T) {
	env := newEnv(t, wasix.Config{Instance: "stdio", Preopens: []wasix.Preopen{{Path: "/"}}})
	infos := env.Descriptors()
	if len(infos) != 4 {
		t.Fatalf("got %d descriptors, want 4: %+v", len(infos), infos)
	}
	for fd := wasi.Fd(0); fd < 3; fd++ {
		if infos[fd].Fd != fd || infos[fd].Filetype != wasi.FiletypeCharacterDevice {
			t.Errorf("descriptor %d = %+v, want stdio", fd, infos[fd])
		}
	}
	if infos[3].Fd != 3 || infos[3].Path != "/" || infos[3].Filetype != wasi.FiletypeDirectory {
		t.Errorf("descriptor 3 = %+v, want the root preopen", infos[3])
	}
}

func TestNewEnvRejectsMissingPreopen(t *testing.T) {
	_, err := wasix.NewEnv(wasix.Config{Preopens: []wasix.Preopen{{Path: "/missing"}}})
	if err == nil {
		t.Fatal("NewEnv succeeded with a missing preopen directory")
	}
}

func TestNewEnvAssignsInstanceID(t *testing.T) {
	first := newEnv(t, wasix.Config{})
	second := newEnv(t, wasix.Config{})
	if first.Instance() == "" || first.Instance() == second.Instance() {
		t.Fatalf("instance ids %q and %q are not distinct", first.Instance(), second.Instance())
	}
}

func TestFailedCallsAreNotJournaled(t *testing.T) {
	store := newStore()
	env := newEnv(t, wasix.Config{FileSystem: newMemFS(t, "tmp"), Journal: store})
	ctx := context.Background()

	if _, err := env.PathOpen(ctx, rootFd, 0, "/tmp/missing", 0, fileRights, fileRights, 0); !errors.Is(err, wasi.ErrnoNoent) {
		t.Errorf("PathOpen(missing) = %v, want noent", err)
	}
	if err := env.PathCreateDirectory(ctx, rootFd, "tmp"); !errors.Is(err, wasi.ErrnoExist) {
		t.Errorf("PathCreateDirectory(tmp) = %v, want exist", err)
	}
	if _, err := env.FdDup(ctx, 42); !errors.Is(err, wasi.ErrnoBadf) {
		t.Errorf("FdDup(42) = %v, want badf", err)
	}
	if err := env.FdClose(ctx, 42); !errors.Is(err, wasi.ErrnoBadf) {
		t.Errorf("FdClose(42) = %v, want badf", err)
	}
	if err := env.PathRemoveDirectory(ctx, rootFd, "nothing"); !errors.Is(err, wasi.ErrnoNoent) {
		t.Errorf("PathRemoveDirectory = %v, want noent", err)
	}
	if err := env.Chdir(ctx, "/nowhere"); !errors.Is(err, wasi.ErrnoNoent) {
		t.Errorf("Chdir = %v, want noent", err)
	}
	if _, err := env.PathOpen(ctx, rootFd, 0, "../escape", wasi.OflagCreat, fileRights, fileRights, 0); !errors.Is(err, wasi.ErrnoNotcapable) {
		t.Errorf("PathOpen(../escape) = %v, want notcapable", err)
	}

	if length, _ := store.Len(ctx); length != 0 {
		t.Fatalf("journal has %d records after only failed calls", length)
	}
}

func TestSuccessfulCallsJournalOneEntryEach(t *testing.T) {
	store := newStore()
	env := newEnv(t, wasix.Config{Instance: "calls", FileSystem: newMemFS(t, "tmp"), Journal: store})
	ctx := context.Background()

	fd := openFile(t, env, "/tmp/f", wasi.OflagCreat)
	write(t, env, fd, "abc")
	if _, err := env.FdSeek(ctx, fd, 0, wasi.WhenceSet); err != nil {
		t.Fatalf("FdSeek: %v", err)
	}
	// Seeking to where the cursor already is changes nothing.
	if _, err := env.FdSeek(ctx, fd, 0, wasi.WhenceCur); err != nil {
		t.Fatalf("FdSeek: %v", err)
	}
	if _, err := env.FdPread(ctx, fd, make([]byte, 2), 0); err != nil {
		t.Fatalf("FdPread: %v", err)
	}
	if _, err := env.FdRead(ctx, fd, make([]byte, 2)); err != nil {
		t.Fatalf("FdRead: %v", err)
	}
	if _, err := env.Snapshot(ctx, ""); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := env.FdClose(ctx, fd); err != nil {
		t.Fatalf("FdClose: %v", err)
	}

	all := records(t, store)
	want := []journal.EntryKind{
		journal.KindOpenFileDescriptor,
		journal.KindFileDescriptorWrite,
		journal.KindFileDescriptorSeek,
		journal.KindFileDescriptorSeek,
		journal.KindSnapshot,
		journal.KindCloseFileDescriptor,
	}
	if got := kinds(all); !slices.Equal(got, want) {
		t.Fatalf("journaled kinds %v, want %v", got, want)
	}
	for _, record := range all {
		if record.Instance != "calls" {
			t.Fatalf("record %d instance = %q, want calls", record.Seq, record.Instance)
		}
	}
	if seek := all[3].Entry.(*journal.FileDescriptorSeek); seek.Offset != 2 {
		t.Fatalf("read journaled seek to %d, want 2", seek.Offset)
	}
	snapshot := all[4].Entry.(*journal.Snapshot)
	if snapshot.Trigger != journal.SnapshotTriggerExplicit || !snapshot.When.Equal(epoch) {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}

func TestSnapshotBoundsTruncation(t *testing.T) {
	store := newStore()
	env := newEnv(t, wasix.Config{Journal: store})
	ctx := context.Background()
	if err := env.PathCreateDirectory(ctx, rootFd, "before"); err != nil {
		t.Fatalf("PathCreateDirectory: %v", err)
	}
	seq, err := env.Snapshot(ctx, journal.SnapshotTriggerIdle)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := store.TruncateBefore(ctx, seq); err != nil {
		t.Fatalf("TruncateBefore(%d): %v", seq, err)
	}
	if got := kinds(records(t, store)); !slices.Equal(got, []journal.EntryKind{journal.KindSnapshot}) {
		t.Fatalf("kinds after truncation = %v", got)
	}
}

func TestStdioIsNotJournaled(t *testing.T) {
	store := newStore()
	var stdout bytes.Buffer
	env := newEnv(t, wasix.Config{
		Journal: store,
		Stdin:   strings.NewReader("input"),
		Stdout:  &stdout,
	})
	ctx := context.Background()

	if _, err := env.FdWrite(ctx, wasi.FdStdout, []byte("hello")); err != nil {
		t.Fatalf("FdWrite(stdout): %v", err)
	}
	buf := make([]byte, 16)
	n, err := env.FdRead(ctx, wasi.FdStdin, buf)
	if err != nil {
		t.Fatalf("FdRead(stdin): %v", err)
	}
	if string(buf[:n]) != "input" {
		t.Fatalf("stdin read %q, want input", buf[:n])
	}
	if stdout.String() != "hello" {
		t.Fatalf("stdout = %q, want hello", stdout.String())
	}
	if _, err := env.FdSeek(ctx, wasi.FdStdout, 1, wasi.WhenceSet); err == nil {
		t.Fatal("seek on stdout succeeded")
	}
	if length, _ := store.Len(ctx); length != 0 {
		t.Fatalf("stdio produced %d journal records", length)
	}
}

func TestRightsAreEnforced(t *testing.T) {
	env := newEnv(t, wasix.Config{FileSystem: newMemFS(t, "tmp")})
	ctx := context.Background()

	fd, err := env.PathOpen(ctx, rootFd, 0, "/tmp/ro", wasi.OflagCreat, wasi.RightFdRead|wasi.RightFdSeek, 0, 0)
	if err != nil {
		t.Fatalf("PathOpen: %v", err)
	}
	if _, err := env.FdWrite(ctx, fd, []byte("x")); !errors.Is(err, wasi.ErrnoNotcapable) {
		t.Errorf("FdWrite on read-only fd = %v, want notcapable", err)
	}
	if err := env.FdFdstatSetRights(ctx, fd, wasi.RightFdRead|wasi.RightFdWrite, 0); !errors.Is(err, wasi.ErrnoNotcapable) {
		t.Errorf("widening rights = %v, want notcapable", err)
	}
	if err := env.FdFdstatSetRights(ctx, fd, wasi.RightFdRead, 0); err != nil {
		t.Errorf("narrowing rights: %v", err)
	}
	if _, err := env.FdSeek(ctx, fd, 1, wasi.WhenceSet); !errors.Is(err, wasi.ErrnoNotcapable) {
		t.Errorf("FdSeek after dropping seek right = %v, want notcapable", err)
	}
}

func TestJournalFailureTerminatesInstance(t *testing.T) {
	store := &failingStore{MemoryStore: newStore(), failAfter: 1}
	fsys := newMemFS(t, "tmp")
	env := newEnv(t, wasix.Config{FileSystem: fsys, Journal: store})
	ctx := context.Background()

	fd := openFile(t, env, "/tmp/f", wasi.OflagCreat)
	_, err := env.FdWrite(ctx, fd, []byte("unjournaled"))
	var exit *wasix.ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("FdWrite after journal failure = %v, want *ExitError", err)
	}
	if exit.Code != wasi.ExitCode(wasi.ErrnoFault) {
		t.Fatalf("exit code = %d, want %d", exit.Code, wasi.ErrnoFault)
	}
	var saveErr *wasix.SaveError
	if !errors.As(err, &saveErr) || saveErr.Kind != journal.KindFileDescriptorWrite || saveErr.Fd != fd {
		t.Fatalf("SaveError = %+v", saveErr)
	}
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("error %v does not wrap the store failure", err)
	}

	// Every later call reports the same termination.
	if err := env.PathCreateDirectory(ctx, rootFd, "after"); !errors.Is(err, exit) {
		t.Fatalf("call after termination = %v, want %v", err, exit)
	}
	if got, exited := env.Exited(); !exited || got != exit {
		t.Fatalf("Exited() = %v, %v", got, exited)
	}
}

func TestCancelledCallHasNoEffect(t *testing.T) {
	store := newStore()
	fsys := newMemFS(t)
	env := newEnv(t, wasix.Config{FileSystem: fsys, Journal: store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := env.PathCreateDirectory(ctx, rootFd, "never")
	if !errors.Is(err, wasi.ErrnoIntr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("PathCreateDirectory with cancelled context = %v", err)
	}
	if _, err := fsys.Stat("never"); err == nil {
		t.Fatal("directory created by a cancelled call")
	}
	if length, _ := store.Len(context.Background()); length != 0 {
		t.Fatalf("cancelled call journaled %d records", length)
	}
}

func TestProcExitIsJournaledAndFinal(t *testing.T) {
	store := newStore()
	env := newEnv(t, wasix.Config{Journal: store})
	ctx := context.Background()

	err := env.ProcExit(ctx, 3)
	var exit *wasix.ExitError
	if !errors.As(err, &exit) || exit.Code != 3 || exit.ExitCode() != 3 {
		t.Fatalf("ProcExit = %v", err)
	}
	if err := env.ProcExit(ctx, 4); !errors.Is(err, exit) {
		t.Fatalf("second ProcExit = %v, want the first exit", err)
	}
	all := records(t, store)
	if len(all) != 1 || all[0].Entry.(*journal.ProcessExit).ExitCode != 3 {
		t.Fatalf("journal = %+v, want one exit with code 3", all)
	}
}

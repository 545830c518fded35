// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/clock"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtfs"
	"github.com/hghpublic/wasmerio-wasmer/virtnet"
)

const (
	stdinRights  = wasi.RightFdRead | wasi.RightFdFdstatSetFlags | wasi.RightPollFdReadwrite
	stdoutRights = wasi.RightFdWrite | wasi.RightFdFdstatSetFlags | wasi.RightPollFdReadwrite
)

// SignalHandler is the guest's handler for a signal. It runs on the
// goroutine of the call that drained the signal, with the call lock
// held, so it must not call back into the Env.
type SignalHandler func(ctx context.Context, signal wasi.Signal)

// Env is the runtime state of one instance: its descriptor table,
// working directory, capability providers and journal.
//
// Calls are serialized by a per-instance lock. Each public call drains
// host-queued work, computes its effect through an internal
// implementation, and on success appends exactly one journal entry
// before returning. Replay runs the same internal implementations with
// journaling suppressed.
type Env struct {
	instance   string
	fs         virtfs.FileSystem
	networking virtnet.Networking
	store      journal.Store
	clock      clock.Clock
	logger     *slog.Logger

	// callMu serializes calls. Everything below it is guarded by it.
	callMu    sync.Mutex
	table     *FdTable
	cwd       string
	replaying bool

	exit    atomic.Pointer[ExitError]
	pending PendingQueue

	handlersMu sync.Mutex
	handlers   map[wasi.Signal]SignalHandler
}

// NewEnv creates an instance with stdio on descriptors 0-2 and the
// configured preopens. The env borrows the file system, networking
// and journal; Close does not close them.
func NewEnv(config Config) (*Env, error) {
	config = config.withDefaults()
	env := &Env{
		instance:   config.Instance,
		fs:         config.FileSystem,
		networking: config.Networking,
		store:      config.Journal,
		clock:      config.Clock,
		logger:     config.Logger.With("instance", config.Instance),
		table:      NewFdTable(config.Allocator),
		cwd:        "/",
		handlers:   make(map[wasi.Signal]SignalHandler),
	}

	stdio := []struct {
		fd          wasi.Fd
		description *openDescription
		rights      wasi.Rights
	}{
		{wasi.FdStdin, &openDescription{filetype: wasi.FiletypeCharacterDevice, path: "/dev/stdin", reader: config.Stdin}, stdinRights},
		{wasi.FdStdout, &openDescription{filetype: wasi.FiletypeCharacterDevice, path: "/dev/stdout", writer: config.Stdout}, stdoutRights},
		{wasi.FdStderr, &openDescription{filetype: wasi.FiletypeCharacterDevice, path: "/dev/stderr", writer: config.Stderr}, stdoutRights},
	}
	for _, entry := range stdio {
		if err := env.table.insertAt(entry.fd, &descriptor{description: entry.description, rightsBase: entry.rights}); err != nil {
			return nil, fmt.Errorf("installing stdio fd %d: %w", entry.fd, err)
		}
	}

	for _, preopen := range config.Preopens {
		if err := env.preopen(preopen); err != nil {
			env.table.closeAll()
			return nil, err
		}
	}
	return env, nil
}

func (e *Env) preopen(preopen Preopen) error {
	dirPath := absolutePath(preopen.Path)
	info, err := e.fs.Stat(virtfs.Clean(dirPath))
	if err != nil {
		return fmt.Errorf("preopen %s: %w", dirPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("preopen %s: %w", dirPath, wasi.ErrnoNotdir)
	}
	rights := preopen.Rights
	if rights == 0 {
		rights = wasi.RightsAll
	}
	entry := &descriptor{
		description:      &openDescription{filetype: wasi.FiletypeDirectory, path: dirPath},
		rightsBase:       rights,
		rightsInheriting: rights,
	}
	if preopen.Fd != 0 {
		err = e.table.insertAt(preopen.Fd, entry)
	} else {
		_, err = e.table.insert(entry)
	}
	if err != nil {
		return fmt.Errorf("preopen %s at fd %d: %w", dirPath, preopen.Fd, err)
	}
	return nil
}

// Instance returns the id records from this env carry.
func (e *Env) Instance() string { return e.instance }

// Getcwd returns the working directory.
func (e *Env) Getcwd() string {
	e.callMu.Lock()
	defer e.callMu.Unlock()
	return e.cwd
}

// Descriptors returns the descriptor table sorted by id.
func (e *Env) Descriptors() []FdInfo {
	e.callMu.Lock()
	defer e.callMu.Unlock()
	return e.table.snapshot()
}

// Exited returns the termination of the instance, if it has
// terminated.
func (e *Env) Exited() (*ExitError, bool) {
	exit := e.exit.Load()
	return exit, exit != nil
}

// PendingState reports whether host work is waiting for the next call.
func (e *Env) PendingState() GateState { return e.pending.State() }

// SetSignalHandler registers the guest handler for signal. A nil
// handler restores the default action.
func (e *Env) SetSignalHandler(signal wasi.Signal, handler SignalHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	if handler == nil {
		delete(e.handlers, signal)
		return
	}
	e.handlers[signal] = handler
}

func (e *Env) handler(signal wasi.Signal) SignalHandler {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	return e.handlers[signal]
}

// QueueSignal delivers signal at the instance's next call. Safe to
// call from any goroutine.
func (e *Env) QueueSignal(signal wasi.Signal) {
	e.pending.Push(PendingOperation{Kind: PendingSignal, Signal: signal})
}

// QueueUnwind schedules run to execute at the next call boundary,
// before the call's own effect.
func (e *Env) QueueUnwind(run func(ctx context.Context) error) {
	e.pending.Push(PendingOperation{Kind: PendingUnwind, Run: run})
}

// QueueRewind schedules run to execute at the next call boundary.
func (e *Env) QueueRewind(run func(ctx context.Context) error) {
	e.pending.Push(PendingOperation{Kind: PendingRewind, Run: run})
}

// Close releases every descriptor. It does not journal and does not
// close the providers.
func (e *Env) Close() error {
	e.callMu.Lock()
	defer e.callMu.Unlock()
	return e.table.closeAll()
}

// begin acquires the call lock and drains pending work. On success the
// caller must call e.end.
func (e *Env) begin(ctx context.Context, call string) error {
	e.callMu.Lock()
	if exit := e.exit.Load(); exit != nil {
		e.callMu.Unlock()
		return exit
	}
	if err := ctx.Err(); err != nil {
		e.callMu.Unlock()
		return fmt.Errorf("%s: %w: %w", call, wasi.ErrnoIntr, err)
	}
	if err := e.drainPending(ctx); err != nil {
		e.callMu.Unlock()
		return err
	}
	return nil
}

func (e *Env) end() { e.callMu.Unlock() }

func (e *Env) drainPending(ctx context.Context) error {
	for _, operation := range e.pending.take() {
		switch operation.Kind {
		case PendingSignal:
			if err := e.deliverSignal(ctx, operation.Signal); err != nil {
				return err
			}
		case PendingUnwind, PendingRewind:
			if operation.Run == nil {
				continue
			}
			if err := operation.Run(ctx); err != nil {
				e.logger.Error("pending operation failed, terminating instance",
					"operation", operation.Kind, "error", err)
				return e.terminate(&ExitError{
					Code:  wasi.ExitCodeFromErrno(wasi.ErrnoFault),
					Cause: fmt.Errorf("%s: %w", operation.Kind, err),
				})
			}
		}
	}
	return nil
}

func (e *Env) deliverSignal(ctx context.Context, signal wasi.Signal) error {
	if handler := e.handler(signal); handler != nil {
		handler(ctx, signal)
		return nil
	}
	if !signal.DefaultTerminates() {
		e.logger.Debug("ignoring signal with no handler", "signal", signal)
		return nil
	}
	e.logger.Info("terminating on signal", "signal", signal)
	return e.exitProcess(ctx, signal.ExitCode(), signal)
}

// exitProcess journals the exit and terminates the instance.
func (e *Env) exitProcess(ctx context.Context, code wasi.ExitCode, signal wasi.Signal) error {
	if err := e.saveProcessExit(ctx, code); err != nil {
		return err
	}
	return e.terminate(&ExitError{Code: code, Signal: signal})
}

// terminate records exit unless the instance already terminated, and
// returns the exit in effect.
func (e *Env) terminate(exit *ExitError) *ExitError {
	if e.exit.CompareAndSwap(nil, exit) {
		return exit
	}
	return e.exit.Load()
}

// save appends entry for a call that has already taken effect. A
// failure terminates the instance: the returned error is its
// *ExitError wrapping a *SaveError.
func (e *Env) save(ctx context.Context, call string, entry journal.Entry) (journal.Record, error) {
	if e.store == nil || e.replaying {
		return journal.Record{}, nil
	}
	record, err := e.store.Append(context.WithoutCancel(ctx), e.instance, entry)
	if err == nil {
		return record, nil
	}
	fd := entryFd(entry)
	saveErr := &SaveError{Call: call, Kind: entry.Kind(), Fd: fd, Path: entryPath(entry), Err: err}
	e.logger.Error("journaling failed, terminating instance",
		"call", call,
		"kind", entry.Kind(),
		"fd", fd,
		"error", err,
	)
	return journal.Record{}, e.terminate(&ExitError{
		Code:  wasi.ExitCodeFromErrno(wasi.ErrnoFault),
		Cause: saveErr,
	})
}

// entryFd returns the descriptor an entry acts on or produces.
func entryFd(entry journal.Entry) wasi.Fd {
	if fd, ok := journal.DescriptorOf(entry); ok {
		return fd
	}
	switch e := entry.(type) {
	case *journal.CloseFileDescriptor:
		return e.Fd
	case *journal.FileDescriptorWrite:
		return e.Fd
	case *journal.FileDescriptorSeek:
		return e.Fd
	case *journal.FileDescriptorSetFlags:
		return e.Fd
	case *journal.FileDescriptorSetRights:
		return e.Fd
	case *journal.FileDescriptorSetSize:
		return e.Fd
	case *journal.CreateDirectory:
		return e.DirFd
	case *journal.RemoveDirectory:
		return e.DirFd
	case *journal.UnlinkFile:
		return e.DirFd
	case *journal.PathRename:
		return e.OldDirFd
	}
	return 0
}

func entryPath(entry journal.Entry) string {
	switch e := entry.(type) {
	case *journal.OpenFileDescriptor:
		return e.Path
	case *journal.CreateDirectory:
		return e.Path
	case *journal.RemoveDirectory:
		return e.Path
	case *journal.UnlinkFile:
		return e.Path
	case *journal.PathRename:
		return e.OldPath
	case *journal.ChangeDirectory:
		return e.Path
	}
	return ""
}

// absolutePath returns name as a rooted, cleaned path.
func absolutePath(name string) string {
	cleaned := virtfs.Clean(name)
	if cleaned == "." {
		return "/"
	}
	return "/" + cleaned
}

// resolveAt resolves name against the directory descriptor dirFd.
// Absolute names resolve from the root; relative names may not climb
// above the directory.
func (e *Env) resolveAt(dirFd wasi.Fd, name string, rights wasi.Rights) (string, error) {
	entry, err := e.table.get(dirFd)
	if err != nil {
		return "", err
	}
	if entry.description.filetype != wasi.FiletypeDirectory {
		return "", wasi.ErrnoNotdir
	}
	if err := entry.require(rights); err != nil {
		return "", err
	}
	return resolvePath(entry.description.path, name)
}

func resolvePath(dirPath, name string) (string, error) {
	if name == "" {
		return "", wasi.ErrnoNoent
	}
	if strings.HasPrefix(name, "/") {
		return absolutePath(name), nil
	}
	relative := path.Clean(name)
	if relative == ".." || strings.HasPrefix(relative, "../") {
		return "", wasi.ErrnoNotcapable
	}
	return absolutePath(path.Join(dirPath, relative)), nil
}

func (e *Env) stat(name string) (fs.FileInfo, error) {
	return e.fs.Stat(virtfs.Clean(name))
}

// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"context"
	"errors"
	"io"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

// FdDup duplicates fd onto the next free id. Both ids share the
// cursor and status flags.
func (e *Env) FdDup(ctx context.Context, fd wasi.Fd) (wasi.Fd, error) {
	if err := e.begin(ctx, "fd_dup"); err != nil {
		return 0, err
	}
	defer e.end()

	dup, err := e.fdDupInternal(fd)
	if err != nil {
		return 0, err
	}
	if err := e.saveDuplicate(ctx, "fd_dup", fd, dup, false); err != nil {
		return 0, err
	}
	return dup, nil
}

func (e *Env) fdDupInternal(fd wasi.Fd) (wasi.Fd, error) {
	return e.table.duplicate(fd)
}

// FdRenumber moves from onto to, closing whatever was open at to.
func (e *Env) FdRenumber(ctx context.Context, from, to wasi.Fd) error {
	if err := e.begin(ctx, "fd_renumber"); err != nil {
		return err
	}
	defer e.end()

	if err := e.fdRenumberInternal(from, to); err != nil {
		return err
	}
	return e.saveDuplicate(ctx, "fd_renumber", from, to, true)
}

func (e *Env) fdRenumberInternal(from, to wasi.Fd) error {
	return e.table.move(from, to, true)
}

// FdClose closes fd. The underlying file or socket is released when no
// other descriptor shares it.
func (e *Env) FdClose(ctx context.Context, fd wasi.Fd) error {
	if err := e.begin(ctx, "fd_close"); err != nil {
		return err
	}
	defer e.end()

	if _, err := e.table.get(fd); err != nil {
		return err
	}
	// The descriptor is gone even when releasing the file fails, so the
	// close is journaled either way.
	closeErr := e.fdCloseInternal(fd)
	if err := e.saveClose(ctx, fd); err != nil {
		return err
	}
	if closeErr != nil {
		return wasi.ErrnoFromError(closeErr)
	}
	return nil
}

func (e *Env) fdCloseInternal(fd wasi.Fd) error {
	return e.table.remove(fd)
}

// fileDescriptor returns the descriptor for fd when it refers to a
// regular file, checking rights.
func (e *Env) fileDescriptor(fd wasi.Fd, rights wasi.Rights) (*descriptor, error) {
	entry, err := e.table.get(fd)
	if err != nil {
		return nil, err
	}
	if err := entry.require(rights); err != nil {
		return nil, err
	}
	switch description := entry.description; {
	case description.filetype == wasi.FiletypeDirectory:
		return nil, wasi.ErrnoIsdir
	case description.socket != nil:
		return nil, wasi.ErrnoNotsup
	case description.isStdio():
		return nil, wasi.ErrnoSpipe
	case description.file == nil:
		return nil, wasi.ErrnoBadf
	}
	return entry, nil
}

// FdWrite writes data at the cursor (or at the end of the file when
// the description has the append flag) and advances the cursor.
// Writes to stdio go to the configured writers and are not journaled.
func (e *Env) FdWrite(ctx context.Context, fd wasi.Fd, data []byte) (int, error) {
	if err := e.begin(ctx, "fd_write"); err != nil {
		return 0, err
	}
	defer e.end()

	entry, err := e.table.get(fd)
	if err != nil {
		return 0, err
	}
	if entry.description.writer != nil {
		if err := entry.require(wasi.RightFdWrite); err != nil {
			return 0, err
		}
		n, err := entry.description.writer.Write(data)
		if err != nil {
			return n, wasi.ErrnoFromError(err)
		}
		return n, nil
	}

	entry, err = e.fileDescriptor(fd, wasi.RightFdWrite)
	if err != nil {
		return 0, err
	}
	offset := entry.description.offset
	if entry.description.flags&wasi.FdflagAppend != 0 {
		info, err := entry.description.file.Stat()
		if err != nil {
			return 0, wasi.ErrnoFromError(err)
		}
		offset = info.Size()
	}
	n, writeErr := e.fdWriteInternal(fd, offset, data, false)
	if n > 0 {
		if err := e.saveWrite(ctx, "fd_write", fd, offset, data[:n], false); err != nil {
			return 0, err
		}
	}
	if writeErr != nil {
		return n, wasi.ErrnoFromError(writeErr)
	}
	return n, nil
}

// FdPwrite writes data at offset without moving the cursor.
func (e *Env) FdPwrite(ctx context.Context, fd wasi.Fd, data []byte, offset int64) (int, error) {
	if err := e.begin(ctx, "fd_pwrite"); err != nil {
		return 0, err
	}
	defer e.end()

	if _, err := e.fileDescriptor(fd, wasi.RightFdWrite|wasi.RightFdSeek); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, wasi.ErrnoInval
	}
	n, writeErr := e.fdWriteInternal(fd, offset, data, true)
	if n > 0 {
		if err := e.saveWrite(ctx, "fd_pwrite", fd, offset, data[:n], true); err != nil {
			return 0, err
		}
	}
	if writeErr != nil {
		return n, wasi.ErrnoFromError(writeErr)
	}
	return n, nil
}

// fdWriteInternal writes data at an explicit offset. Unless pwrite is
// set the cursor moves to the end of the written range.
func (e *Env) fdWriteInternal(fd wasi.Fd, offset int64, data []byte, pwrite bool) (int, error) {
	entry, err := e.fileDescriptor(fd, wasi.RightFdWrite)
	if err != nil {
		return 0, err
	}
	n, err := entry.description.file.WriteAt(data, offset)
	if !pwrite && n > 0 {
		entry.description.offset = offset + int64(n)
	}
	return n, err
}

// FdRead reads at the cursor and advances it. A read that moves the
// cursor is journaled as a seek to the new offset so replay restores
// the position without re-reading.
func (e *Env) FdRead(ctx context.Context, fd wasi.Fd, buf []byte) (int, error) {
	if err := e.begin(ctx, "fd_read"); err != nil {
		return 0, err
	}
	defer e.end()

	entry, err := e.table.get(fd)
	if err != nil {
		return 0, err
	}
	if err := entry.require(wasi.RightFdRead); err != nil {
		return 0, err
	}
	if reader := entry.description.reader; reader != nil {
		n, err := reader.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, wasi.ErrnoFromError(err)
		}
		return n, nil
	}

	entry, err = e.fileDescriptor(fd, wasi.RightFdRead)
	if err != nil {
		return 0, err
	}
	n, err := entry.description.file.ReadAt(buf, entry.description.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, wasi.ErrnoFromError(err)
	}
	if n == 0 {
		return 0, nil
	}
	offset := entry.description.offset + int64(n)
	if err := e.fdSeekInternal(fd, offset); err != nil {
		return 0, err
	}
	if err := e.saveSeek(ctx, "fd_read", fd, offset); err != nil {
		return 0, err
	}
	return n, nil
}

// FdPread reads at offset without moving the cursor. It has no effect
// to journal.
func (e *Env) FdPread(ctx context.Context, fd wasi.Fd, buf []byte, offset int64) (int, error) {
	if err := e.begin(ctx, "fd_pread"); err != nil {
		return 0, err
	}
	defer e.end()

	entry, err := e.fileDescriptor(fd, wasi.RightFdRead|wasi.RightFdSeek)
	if err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, wasi.ErrnoInval
	}
	n, err := entry.description.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, wasi.ErrnoFromError(err)
	}
	return n, nil
}

// FdSeek moves the cursor and returns the new absolute offset. The
// journal always records the absolute result.
func (e *Env) FdSeek(ctx context.Context, fd wasi.Fd, delta int64, whence wasi.Whence) (int64, error) {
	if err := e.begin(ctx, "fd_seek"); err != nil {
		return 0, err
	}
	defer e.end()

	entry, err := e.fileDescriptor(fd, wasi.RightFdSeek)
	if err != nil {
		return 0, err
	}
	var base int64
	switch whence {
	case wasi.WhenceSet:
	case wasi.WhenceCur:
		base = entry.description.offset
	case wasi.WhenceEnd:
		info, err := entry.description.file.Stat()
		if err != nil {
			return 0, wasi.ErrnoFromError(err)
		}
		base = info.Size()
	default:
		return 0, wasi.ErrnoInval
	}
	offset := base + delta
	if offset < 0 {
		return 0, wasi.ErrnoInval
	}
	if offset == entry.description.offset {
		return offset, nil
	}
	if err := e.fdSeekInternal(fd, offset); err != nil {
		return 0, err
	}
	if err := e.saveSeek(ctx, "fd_seek", fd, offset); err != nil {
		return 0, err
	}
	return offset, nil
}

func (e *Env) fdSeekInternal(fd wasi.Fd, offset int64) error {
	entry, err := e.fileDescriptor(fd, 0)
	if err != nil {
		return err
	}
	if offset < 0 {
		return wasi.ErrnoInval
	}
	entry.description.offset = offset
	return nil
}

// FdTell returns the cursor.
func (e *Env) FdTell(ctx context.Context, fd wasi.Fd) (int64, error) {
	if err := e.begin(ctx, "fd_tell"); err != nil {
		return 0, err
	}
	defer e.end()

	entry, err := e.fileDescriptor(fd, wasi.RightFdTell)
	if err != nil {
		return 0, err
	}
	return entry.description.offset, nil
}

// FdFdstatSetFlags replaces the status flags of fd's description.
func (e *Env) FdFdstatSetFlags(ctx context.Context, fd wasi.Fd, flags wasi.Fdflags) error {
	if err := e.begin(ctx, "fd_fdstat_set_flags"); err != nil {
		return err
	}
	defer e.end()

	entry, err := e.table.get(fd)
	if err != nil {
		return err
	}
	if err := entry.require(wasi.RightFdFdstatSetFlags); err != nil {
		return err
	}
	if err := e.fdSetFlagsInternal(fd, flags); err != nil {
		return err
	}
	return e.saveSetFlags(ctx, fd, flags)
}

func (e *Env) fdSetFlagsInternal(fd wasi.Fd, flags wasi.Fdflags) error {
	entry, err := e.table.get(fd)
	if err != nil {
		return err
	}
	entry.description.flags = flags
	return nil
}

// FdFdstatSetRights narrows the rights of fd. Rights can never be
// added back.
func (e *Env) FdFdstatSetRights(ctx context.Context, fd wasi.Fd, rightsBase, rightsInheriting wasi.Rights) error {
	if err := e.begin(ctx, "fd_fdstat_set_rights"); err != nil {
		return err
	}
	defer e.end()

	if err := e.fdSetRightsInternal(fd, rightsBase, rightsInheriting); err != nil {
		return err
	}
	return e.saveSetRights(ctx, fd, rightsBase, rightsInheriting)
}

func (e *Env) fdSetRightsInternal(fd wasi.Fd, rightsBase, rightsInheriting wasi.Rights) error {
	entry, err := e.table.get(fd)
	if err != nil {
		return err
	}
	if !entry.rightsBase.Contains(rightsBase) || !entry.rightsInheriting.Contains(rightsInheriting) {
		return wasi.ErrnoNotcapable
	}
	entry.rightsBase = rightsBase
	entry.rightsInheriting = rightsInheriting
	return nil
}

// FdFilestatSetSize truncates or extends the file behind fd.
func (e *Env) FdFilestatSetSize(ctx context.Context, fd wasi.Fd, size int64) error {
	if err := e.begin(ctx, "fd_filestat_set_size"); err != nil {
		return err
	}
	defer e.end()

	if _, err := e.fileDescriptor(fd, wasi.RightFdFilestatSetSize); err != nil {
		return err
	}
	if err := e.fdSetSizeInternal(fd, size); err != nil {
		return err
	}
	return e.saveSetSize(ctx, fd, size)
}

func (e *Env) fdSetSizeInternal(fd wasi.Fd, size int64) error {
	entry, err := e.fileDescriptor(fd, 0)
	if err != nil {
		return err
	}
	if size < 0 {
		return wasi.ErrnoInval
	}
	if err := entry.description.file.Truncate(size); err != nil {
		return wasi.ErrnoFromError(err)
	}
	return nil
}

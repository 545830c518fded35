// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package wasix

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtfs"
)

const newFilePerm = 0o644

// PathOpen opens name relative to the directory descriptor dirFd and
// returns the new descriptor. The new descriptor's rights are the
// requested rights narrowed by the directory's inheriting rights.
func (e *Env) PathOpen(ctx context.Context, dirFd wasi.Fd, dirFlags wasi.LookupFlags, name string, oflags wasi.Oflags, rightsBase, rightsInheriting wasi.Rights, fdflags wasi.Fdflags) (wasi.Fd, error) {
	if err := e.begin(ctx, "path_open"); err != nil {
		return 0, err
	}
	defer e.end()

	fd, err := e.pathOpenInternal(dirFd, dirFlags, name, oflags, rightsBase, rightsInheriting, fdflags)
	if err != nil {
		return 0, err
	}
	if err := e.saveOpen(ctx, fd, dirFd, dirFlags, name, oflags, rightsBase, rightsInheriting, fdflags); err != nil {
		return 0, err
	}
	return fd, nil
}

func (e *Env) pathOpenInternal(dirFd wasi.Fd, _ wasi.LookupFlags, name string, oflags wasi.Oflags, rightsBase, rightsInheriting wasi.Rights, fdflags wasi.Fdflags) (wasi.Fd, error) {
	needed := wasi.RightPathOpen
	if oflags&wasi.OflagCreat != 0 {
		needed |= wasi.RightPathCreateFile
	}
	full, err := e.resolveAt(dirFd, name, needed)
	if err != nil {
		return 0, err
	}
	dir, _ := e.table.get(dirFd)
	rightsBase &= dir.rightsInheriting
	rightsInheriting &= dir.rightsInheriting

	info, statErr := e.stat(full)
	isDir := statErr == nil && info.IsDir()
	if oflags&wasi.OflagDirectory != 0 {
		if statErr != nil {
			return 0, wasi.ErrnoFromError(statErr)
		}
		if !isDir {
			return 0, wasi.ErrnoNotdir
		}
	}

	flags := os.O_RDONLY
	if oflags&wasi.OflagCreat != 0 {
		flags |= os.O_CREATE
		if oflags&wasi.OflagExcl != 0 {
			flags |= os.O_EXCL
		}
	}
	if !isDir {
		readable := rightsBase&wasi.RightFdRead != 0
		writable := rightsBase&wasi.RightFdWrite != 0 || fdflags&wasi.FdflagAppend != 0
		switch {
		case readable && writable:
			flags |= os.O_RDWR
		case writable:
			flags |= os.O_WRONLY
		}
		if writable && oflags&wasi.OflagTrunc != 0 {
			flags |= os.O_TRUNC
		}
	}

	file, err := e.fs.Open(virtfs.Clean(full), flags, newFilePerm)
	if err != nil {
		return 0, wasi.ErrnoFromError(err)
	}
	filetype := wasi.FiletypeRegularFile
	if opened, err := file.Stat(); err == nil && opened.IsDir() {
		filetype = wasi.FiletypeDirectory
	}
	fd, err := e.table.insert(&descriptor{
		description: &openDescription{
			filetype: filetype,
			path:     full,
			file:     file,
			flags:    fdflags,
		},
		rightsBase:       rightsBase,
		rightsInheriting: rightsInheriting,
	})
	if err != nil {
		file.Close()
		return 0, err
	}
	return fd, nil
}

// PathCreateDirectory creates a directory relative to dirFd.
func (e *Env) PathCreateDirectory(ctx context.Context, dirFd wasi.Fd, name string) error {
	if err := e.begin(ctx, "path_create_directory"); err != nil {
		return err
	}
	defer e.end()

	if err := e.pathCreateDirectoryInternal(dirFd, name); err != nil {
		return err
	}
	return e.saveCreateDirectory(ctx, dirFd, name)
}

func (e *Env) pathCreateDirectoryInternal(dirFd wasi.Fd, name string) error {
	full, err := e.resolveAt(dirFd, name, wasi.RightPathCreateDirectory)
	if err != nil {
		return err
	}
	if err := e.fs.Mkdir(virtfs.Clean(full), 0o755); err != nil {
		return wasi.ErrnoFromError(err)
	}
	return nil
}

// PathRemoveDirectory removes an empty directory relative to dirFd.
func (e *Env) PathRemoveDirectory(ctx context.Context, dirFd wasi.Fd, name string) error {
	if err := e.begin(ctx, "path_remove_directory"); err != nil {
		return err
	}
	defer e.end()

	if err := e.pathRemoveDirectoryInternal(dirFd, name); err != nil {
		return err
	}
	return e.saveRemoveDirectory(ctx, dirFd, name)
}

func (e *Env) pathRemoveDirectoryInternal(dirFd wasi.Fd, name string) error {
	full, err := e.resolveAt(dirFd, name, wasi.RightPathRemoveDirectory)
	if err != nil {
		return err
	}
	if full == "/" {
		return wasi.ErrnoBusy
	}
	if err := e.fs.RemoveDir(virtfs.Clean(full)); err != nil {
		return wasi.ErrnoFromError(err)
	}
	return nil
}

// PathUnlinkFile removes a non-directory relative to dirFd. Open
// descriptors to it stay usable.
func (e *Env) PathUnlinkFile(ctx context.Context, dirFd wasi.Fd, name string) error {
	if err := e.begin(ctx, "path_unlink_file"); err != nil {
		return err
	}
	defer e.end()

	if err := e.pathUnlinkFileInternal(dirFd, name); err != nil {
		return err
	}
	return e.saveUnlink(ctx, dirFd, name)
}

func (e *Env) pathUnlinkFileInternal(dirFd wasi.Fd, name string) error {
	full, err := e.resolveAt(dirFd, name, wasi.RightPathUnlinkFile)
	if err != nil {
		return err
	}
	if err := e.fs.Unlink(virtfs.Clean(full)); err != nil {
		return wasi.ErrnoFromError(err)
	}
	return nil
}

// PathRename moves oldPath under oldDirFd to newPath under newDirFd.
func (e *Env) PathRename(ctx context.Context, oldDirFd wasi.Fd, oldPath string, newDirFd wasi.Fd, newPath string) error {
	if err := e.begin(ctx, "path_rename"); err != nil {
		return err
	}
	defer e.end()

	if err := e.pathRenameInternal(oldDirFd, oldPath, newDirFd, newPath); err != nil {
		return err
	}
	return e.saveRename(ctx, oldDirFd, oldPath, newDirFd, newPath)
}

func (e *Env) pathRenameInternal(oldDirFd wasi.Fd, oldPath string, newDirFd wasi.Fd, newPath string) error {
	source, err := e.resolveAt(oldDirFd, oldPath, wasi.RightPathRenameSource)
	if err != nil {
		return err
	}
	target, err := e.resolveAt(newDirFd, newPath, wasi.RightPathRenameTarget)
	if err != nil {
		return err
	}
	if err := e.fs.Rename(virtfs.Clean(source), virtfs.Clean(target)); err != nil {
		return wasi.ErrnoFromError(err)
	}
	e.renameOpenPaths(source, target)
	return nil
}

// renameOpenPaths keeps the recorded paths of open descriptors in step
// with a rename, so relative opens through a renamed directory
// descriptor resolve where they did before.
func (e *Env) renameOpenPaths(source, target string) {
	for _, entry := range e.table.entries {
		description := entry.description
		switch {
		case description.isStdio() || description.socket != nil:
		case description.path == source:
			description.path = target
		case strings.HasPrefix(description.path, source+"/"):
			description.path = path.Join(target, strings.TrimPrefix(description.path, source+"/"))
		}
	}
}

// Chdir changes the working directory. Relative names resolve against
// the current working directory.
func (e *Env) Chdir(ctx context.Context, name string) error {
	if err := e.begin(ctx, "chdir"); err != nil {
		return err
	}
	defer e.end()

	dir := name
	if !strings.HasPrefix(dir, "/") {
		dir = path.Join(e.cwd, dir)
	}
	dir = absolutePath(dir)
	if err := e.chdirInternal(dir); err != nil {
		return err
	}
	return e.saveChdir(ctx, dir)
}

func (e *Env) chdirInternal(dir string) error {
	info, err := e.stat(dir)
	if err != nil {
		return wasi.ErrnoFromError(err)
	}
	if !info.IsDir() {
		return wasi.ErrnoNotdir
	}
	e.cwd = absolutePath(dir)
	return nil
}

// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package virtfs

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

// HostFS exposes a host directory. Every operation goes through an
// os.Root, so symlinks and ".." cannot reach outside the directory.
type HostFS struct {
	root *os.Root
}

var _ FileSystem = (*HostFS)(nil)

// NewHostFS opens dir as the root of a file system. The caller must
// Close it.
func NewHostFS(dir string) (*HostFS, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("opening host directory %s: %w", dir, err)
	}
	return &HostFS{root: root}, nil
}

// Name returns the host directory the file system was opened on.
func (h *HostFS) Name() string { return h.root.Name() }

func (h *HostFS) Close() error { return h.root.Close() }

func (h *HostFS) Open(name string, flags int, perm fs.FileMode) (File, error) {
	file, err := h.root.OpenFile(Clean(name), flags, perm)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (h *HostFS) Mkdir(name string, perm fs.FileMode) error {
	return h.root.Mkdir(Clean(name), perm)
}

func (h *HostFS) RemoveDir(name string) error {
	cleaned := Clean(name)
	info, err := h.root.Lstat(cleaned)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return pathError("rmdir", name, wasi.ErrnoNotdir)
	}
	return h.root.Remove(cleaned)
}

func (h *HostFS) Unlink(name string) error {
	cleaned := Clean(name)
	info, err := h.root.Lstat(cleaned)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return pathError("unlink", name, wasi.ErrnoIsdir)
	}
	return h.root.Remove(cleaned)
}

func (h *HostFS) Rename(oldName, newName string) error {
	return h.root.Rename(Clean(oldName), Clean(newName))
}

func (h *HostFS) Stat(name string) (fs.FileInfo, error) {
	return h.root.Stat(Clean(name))
}

func (h *HostFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(h.root.FS(), Clean(name))
}

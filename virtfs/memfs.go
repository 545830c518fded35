// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package virtfs

import (
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
)

// MemFS is a FileSystem held entirely in memory. It is safe for
// concurrent use.
type MemFS struct {
	mu   sync.Mutex
	root *memNode
}

var _ FileSystem = (*MemFS)(nil)

type memNode struct {
	mode     fs.FileMode
	modTime  time.Time
	data     []byte
	children map[string]*memNode
}

func (n *memNode) isDir() bool { return n.mode.IsDir() }

// NewMemFS returns an empty file system containing only its root.
func NewMemFS() *MemFS {
	return &MemFS{root: newDirNode(0o755)}
}

func newDirNode(perm fs.FileMode) *memNode {
	return &memNode{
		mode:     fs.ModeDir | perm.Perm(),
		modTime:  time.Now(),
		children: make(map[string]*memNode),
	}
}

func pathError(op, name string, err error) error {
	return &fs.PathError{Op: op, Path: name, Err: err}
}

// splitParent resolves the directory containing name and returns it
// with the final path element. The root itself has no parent.
func (m *MemFS) splitParent(op, name string) (*memNode, string, error) {
	cleaned := Clean(name)
	if cleaned == "." {
		return nil, "", pathError(op, name, fs.ErrInvalid)
	}
	dir, base := path.Split(cleaned)
	parent, err := m.lookup(op, strings.TrimSuffix(dir, "/"))
	if err != nil {
		return nil, "", err
	}
	if !parent.isDir() {
		return nil, "", pathError(op, name, wasi.ErrnoNotdir)
	}
	return parent, base, nil
}

func (m *MemFS) lookup(op, name string) (*memNode, error) {
	cleaned := Clean(name)
	node := m.root
	if cleaned == "." {
		return node, nil
	}
	for _, element := range strings.Split(cleaned, "/") {
		if !node.isDir() {
			return nil, pathError(op, name, wasi.ErrnoNotdir)
		}
		child, ok := node.children[element]
		if !ok {
			return nil, pathError(op, name, fs.ErrNotExist)
		}
		node = child
	}
	return node, nil
}

func (m *MemFS) Open(name string, flags int, perm fs.FileMode) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	writable := flags&(os.O_WRONLY|os.O_RDWR) != 0
	node, err := m.lookup("open", name)
	switch {
	case err == nil:
		if flags&os.O_CREATE != 0 && flags&os.O_EXCL != 0 {
			return nil, pathError("open", name, fs.ErrExist)
		}
		if node.isDir() && writable {
			return nil, pathError("open", name, wasi.ErrnoIsdir)
		}
		if flags&os.O_TRUNC != 0 && writable {
			node.data = nil
			node.modTime = time.Now()
		}
	case flags&os.O_CREATE != 0 && isNotExist(err):
		parent, base, err := m.splitParent("open", name)
		if err != nil {
			return nil, err
		}
		node = &memNode{mode: perm.Perm(), modTime: time.Now()}
		parent.children[base] = node
	default:
		return nil, err
	}

	return &memFile{
		fsys:     m,
		node:     node,
		name:     path.Base(Clean(name)),
		writable: writable,
		readable: flags&os.O_WRONLY == 0,
	}, nil
}

func isNotExist(err error) bool {
	pathErr, ok := err.(*fs.PathError)
	return ok && pathErr.Err == fs.ErrNotExist
}

func (m *MemFS) Mkdir(name string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, base, err := m.splitParent("mkdir", name)
	if err != nil {
		return err
	}
	if _, exists := parent.children[base]; exists {
		return pathError("mkdir", name, fs.ErrExist)
	}
	parent.children[base] = newDirNode(perm)
	return nil
}

func (m *MemFS) RemoveDir(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, base, err := m.splitParent("rmdir", name)
	if err != nil {
		return err
	}
	node, ok := parent.children[base]
	switch {
	case !ok:
		return pathError("rmdir", name, fs.ErrNotExist)
	case !node.isDir():
		return pathError("rmdir", name, wasi.ErrnoNotdir)
	case len(node.children) > 0:
		return pathError("rmdir", name, wasi.ErrnoNotempty)
	}
	delete(parent.children, base)
	return nil
}

func (m *MemFS) Unlink(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, base, err := m.splitParent("unlink", name)
	if err != nil {
		return err
	}
	node, ok := parent.children[base]
	if !ok {
		return pathError("unlink", name, fs.ErrNotExist)
	}
	if node.isDir() {
		return pathError("unlink", name, wasi.ErrnoIsdir)
	}
	delete(parent.children, base)
	return nil
}

func (m *MemFS) Rename(oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldParent, oldBase, err := m.splitParent("rename", oldName)
	if err != nil {
		return err
	}
	node, ok := oldParent.children[oldBase]
	if !ok {
		return pathError("rename", oldName, fs.ErrNotExist)
	}
	newParent, newBase, err := m.splitParent("rename", newName)
	if err != nil {
		return err
	}

	oldClean, newClean := Clean(oldName), Clean(newName)
	if oldClean == newClean {
		return nil
	}
	if node.isDir() && strings.HasPrefix(newClean, oldClean+"/") {
		return pathError("rename", newName, fs.ErrInvalid)
	}

	if existing, exists := newParent.children[newBase]; exists {
		switch {
		case node.isDir() && !existing.isDir():
			return pathError("rename", newName, wasi.ErrnoNotdir)
		case !node.isDir() && existing.isDir():
			return pathError("rename", newName, wasi.ErrnoIsdir)
		case existing.isDir() && len(existing.children) > 0:
			return pathError("rename", newName, wasi.ErrnoNotempty)
		}
	}
	delete(oldParent.children, oldBase)
	newParent.children[newBase] = node
	return nil
}

func (m *MemFS) Stat(name string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, err := m.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return node.info(path.Base(Clean(name))), nil
}

func (m *MemFS) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, err := m.lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	if !node.isDir() {
		return nil, pathError("readdir", name, wasi.ErrnoNotdir)
	}
	entries := make([]fs.DirEntry, 0, len(node.children))
	for childName, child := range node.children {
		entries = append(entries, fs.FileInfoToDirEntry(child.info(childName)))
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return entries, nil
}

func (n *memNode) info(name string) fs.FileInfo {
	return memFileInfo{name: name, size: int64(len(n.data)), mode: n.mode, modTime: n.modTime}
}

type memFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (i memFileInfo) Name() string       { return i.name }
func (i memFileInfo) Size() int64        { return i.size }
func (i memFileInfo) Mode() fs.FileMode  { return i.mode }
func (i memFileInfo) ModTime() time.Time { return i.modTime }
func (i memFileInfo) IsDir() bool        { return i.mode.IsDir() }
func (i memFileInfo) Sys() any           { return nil }

// memFile is an open MemFS node. A node unlinked while open stays
// readable and writable through the handle, as on POSIX systems.
type memFile struct {
	fsys     *MemFS
	node     *memNode
	name     string
	readable bool
	writable bool
	closed   bool
}

func (f *memFile) check(op string, needWrite bool) error {
	if f.closed {
		return pathError(op, f.name, fs.ErrClosed)
	}
	if f.node.isDir() {
		return pathError(op, f.name, wasi.ErrnoIsdir)
	}
	if needWrite && !f.writable {
		return pathError(op, f.name, wasi.ErrnoBadf)
	}
	if !needWrite && !f.readable {
		return pathError(op, f.name, wasi.ErrnoBadf)
	}
	return nil
}

func (f *memFile) ReadAt(p []byte, offset int64) (int, error) {
	f.fsys.mu.Lock()
	defer f.fsys.mu.Unlock()
	if err := f.check("read", false); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, pathError("read", f.name, fs.ErrInvalid)
	}
	if offset >= int64(len(f.node.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.node.data[offset:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, offset int64) (int, error) {
	f.fsys.mu.Lock()
	defer f.fsys.mu.Unlock()
	if err := f.check("write", true); err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, pathError("write", f.name, fs.ErrInvalid)
	}
	end := offset + int64(len(p))
	if size := int64(len(f.node.data)); end > size {
		f.node.data = slices.Grow(f.node.data, int(end-size))[:end]
		// Capacity left over from a shrinking truncate holds old bytes.
		clear(f.node.data[size:end])
	}
	copy(f.node.data[offset:], p)
	f.node.modTime = time.Now()
	return len(p), nil
}

func (f *memFile) Truncate(size int64) error {
	f.fsys.mu.Lock()
	defer f.fsys.mu.Unlock()
	if err := f.check("truncate", true); err != nil {
		return err
	}
	if size < 0 {
		return pathError("truncate", f.name, fs.ErrInvalid)
	}
	if size <= int64(len(f.node.data)) {
		f.node.data = f.node.data[:size]
	} else {
		f.node.data = append(f.node.data, make([]byte, size-int64(len(f.node.data)))...)
	}
	f.node.modTime = time.Now()
	return nil
}

func (f *memFile) Stat() (fs.FileInfo, error) {
	f.fsys.mu.Lock()
	defer f.fsys.mu.Unlock()
	if f.closed {
		return nil, pathError("stat", f.name, fs.ErrClosed)
	}
	return f.node.info(f.name), nil
}

func (f *memFile) Close() error {
	f.fsys.mu.Lock()
	defer f.fsys.mu.Unlock()
	if f.closed {
		return pathError("close", f.name, fs.ErrClosed)
	}
	f.closed = true
	return nil
}

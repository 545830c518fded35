// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

// Package virtfs defines the file system an instance sees and two
// implementations of it: an in-memory tree ([NewMemFS]) and a host
// directory confined with [os.Root] ([NewHostFS]).
//
// Paths are slash-separated and relative to the root of the file
// system. A leading slash is ignored and ".." never climbs above the
// root. Descriptor numbering is not part of this package; the runtime
// keeps its own table and holds [File] values in it.
//
// Errors are *fs.PathError values. Their Err is either an io/fs
// sentinel or a [wasi.Errno] for conditions the sentinels cannot
// express (not empty, is a directory), so wasi.ErrnoFromError maps
// every failure to a guest-visible errno.
package virtfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
)

// FileSystem is the capability an instance uses for path operations.
type FileSystem interface {
	// Open opens name with os.O_* flags. O_CREATE uses perm for a new
	// file. Directories can only be opened read-only.
	Open(name string, flags int, perm fs.FileMode) (File, error)

	Mkdir(name string, perm fs.FileMode) error

	// RemoveDir removes an empty directory.
	RemoveDir(name string) error

	// Unlink removes a file that is not a directory.
	Unlink(name string) error

	// Rename moves oldName to newName, replacing a file or an empty
	// directory at newName.
	Rename(oldName, newName string) error

	Stat(name string) (fs.FileInfo, error)

	// ReadDir lists a directory sorted by name.
	ReadDir(name string) ([]fs.DirEntry, error)
}

// File is an open file. Offsets are always explicit; cursor state
// belongs to the caller.
type File interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Stat() (fs.FileInfo, error)
	Close() error
}

const writeCreateTruncate = os.O_WRONLY | os.O_CREATE | os.O_TRUNC

// Clean returns name in the canonical form used by both
// implementations: slash-separated, no leading slash, "." for the root.
func Clean(name string) string {
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return "."
	}
	return strings.TrimPrefix(cleaned, "/")
}

// ReadFile reads the whole of name.
func ReadFile(fsys FileSystem, name string) ([]byte, error) {
	file, err := fsys.Open(name, 0, 0)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	data := make([]byte, info.Size())
	read, err := file.ReadAt(data, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data[:read], nil
}

// WriteFile creates or truncates name and writes data to it.
func WriteFile(fsys FileSystem, name string, data []byte, perm fs.FileMode) error {
	file, err := fsys.Open(name, writeCreateTruncate, perm)
	if err != nil {
		return err
	}
	if _, err := file.WriteAt(data, 0); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// TreeEntry is one node of a Tree listing.
type TreeEntry struct {
	IsDir bool
	Data  string
}

// Tree lists every file and directory below the root with file
// contents. Two file systems holding the same names and bytes produce
// equal trees, which is how replayed state is compared.
func Tree(fsys FileSystem) (map[string]TreeEntry, error) {
	tree := make(map[string]TreeEntry)
	pending := []string{"."}
	for len(pending) > 0 {
		dir := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		entries, err := fsys.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			name := path.Join(dir, entry.Name())
			if entry.IsDir() {
				tree[name] = TreeEntry{IsDir: true}
				pending = append(pending, name)
				continue
			}
			data, err := ReadFile(fsys, name)
			if err != nil {
				return nil, err
			}
			tree[name] = TreeEntry{Data: string(data)}
		}
	}
	return tree, nil
}

// TreeNames returns the sorted names in tree.
func TreeNames(tree map[string]TreeEntry) []string {
	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

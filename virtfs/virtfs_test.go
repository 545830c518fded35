// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package virtfs_test

import (
	"errors"
	"os"
	"testing"

	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtfs"
)

func fileSystems(t *testing.T) map[string]virtfs.FileSystem {
	t.Helper()
	host, err := virtfs.NewHostFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewHostFS: %v", err)
	}
	t.Cleanup(func() { host.Close() })
	return map[string]virtfs.FileSystem{
		"memfs":  virtfs.NewMemFS(),
		"hostfs": host,
	}
}

func requireErrno(t *testing.T, what string, err error, want wasi.Errno) {
	t.Helper()
	if got := wasi.ErrnoFromError(err); got != want {
		t.Errorf("%s: errno %s (%v), want %s", what, got, err, want)
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"":             ".",
		"/":            ".",
		"a/b":          "a/b",
		"/a/b/":        "a/b",
		"../../etc":    "etc",
		"a/../../b/./": "b",
	}
	for input, want := range tests {
		if got := virtfs.Clean(input); got != want {
			t.Errorf("Clean(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFileLifecycle(t *testing.T) {
	for name, fsys := range fileSystems(t) {
		t.Run(name, func(t *testing.T) {
			if err := fsys.Mkdir("docs", 0o755); err != nil {
				t.Fatalf("Mkdir: %v", err)
			}
			file, err := fsys.Open("docs/readme.txt", os.O_RDWR|os.O_CREATE, 0o644)
			if err != nil {
				t.Fatalf("Open(create): %v", err)
			}
			if _, err := file.WriteAt([]byte("hello world"), 0); err != nil {
				t.Fatalf("WriteAt: %v", err)
			}
			if _, err := file.WriteAt([]byte("there"), 6); err != nil {
				t.Fatalf("WriteAt: %v", err)
			}
			if err := file.Truncate(8); err != nil {
				t.Fatalf("Truncate: %v", err)
			}
			if err := file.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			data, err := virtfs.ReadFile(fsys, "/docs/readme.txt")
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if string(data) != "hello th" {
				t.Errorf("contents = %q, want %q", data, "hello th")
			}

			if err := fsys.Rename("docs/readme.txt", "docs/README"); err != nil {
				t.Fatalf("Rename: %v", err)
			}
			if _, err := fsys.Stat("docs/readme.txt"); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("Stat(old name) = %v, want not exist", err)
			}
			info, err := fsys.Stat("docs/README")
			if err != nil {
				t.Fatalf("Stat(new name): %v", err)
			}
			if info.Size() != 8 {
				t.Errorf("size = %d, want 8", info.Size())
			}

			requireErrno(t, "RemoveDir(non-empty)", fsys.RemoveDir("docs"), wasi.ErrnoNotempty)
			if err := fsys.Unlink("docs/README"); err != nil {
				t.Fatalf("Unlink: %v", err)
			}
			if err := fsys.RemoveDir("docs"); err != nil {
				t.Fatalf("RemoveDir: %v", err)
			}
		})
	}
}

func TestErrorsMapToErrno(t *testing.T) {
	for name, fsys := range fileSystems(t) {
		t.Run(name, func(t *testing.T) {
			if err := virtfs.WriteFile(fsys, "plain", []byte("x"), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if err := fsys.Mkdir("dir", 0o755); err != nil {
				t.Fatalf("Mkdir: %v", err)
			}

			_, err := fsys.Open("missing/file", os.O_RDWR|os.O_CREATE, 0o644)
			requireErrno(t, "Open(missing parent)", err, wasi.ErrnoNoent)

			_, err = fsys.Open("plain", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
			requireErrno(t, "Open(excl existing)", err, wasi.ErrnoExist)

			requireErrno(t, "Mkdir(existing)", fsys.Mkdir("dir", 0o755), wasi.ErrnoExist)
			requireErrno(t, "Unlink(dir)", fsys.Unlink("dir"), wasi.ErrnoIsdir)
			requireErrno(t, "RemoveDir(file)", fsys.RemoveDir("plain"), wasi.ErrnoNotdir)
			requireErrno(t, "Unlink(missing)", fsys.Unlink("nothing"), wasi.ErrnoNoent)
		})
	}
}

func TestTreeComparesContents(t *testing.T) {
	build := func(fsys virtfs.FileSystem, contents string) {
		if err := fsys.Mkdir("a", 0o755); err != nil {
			t.Fatalf("Mkdir: %v", err)
		}
		if err := virtfs.WriteFile(fsys, "a/file", []byte(contents), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	systems := fileSystems(t)
	build(systems["memfs"], "same")
	build(systems["hostfs"], "same")

	memTree, err := virtfs.Tree(systems["memfs"])
	if err != nil {
		t.Fatalf("Tree(memfs): %v", err)
	}
	hostTree, err := virtfs.Tree(systems["hostfs"])
	if err != nil {
		t.Fatalf("Tree(hostfs): %v", err)
	}
	if len(memTree) != 2 || len(hostTree) != 2 {
		t.Fatalf("trees list %v and %v", virtfs.TreeNames(memTree), virtfs.TreeNames(hostTree))
	}
	for name, entry := range memTree {
		if hostTree[name] != entry {
			t.Errorf("%s differs: %+v vs %+v", name, entry, hostTree[name])
		}
	}
}

func TestMemFSUnlinkedFileStaysOpen(t *testing.T) {
	fsys := virtfs.NewMemFS()
	file, err := fsys.Open("scratch", os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()
	if err := fsys.Unlink("scratch"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := file.WriteAt([]byte("still here"), 0); err != nil {
		t.Errorf("WriteAt after unlink: %v", err)
	}
	if _, err := fsys.Stat("scratch"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat after unlink = %v", err)
	}
}

func TestMemFSRenameIntoItself(t *testing.T) {
	fsys := virtfs.NewMemFS()
	if err := fsys.Mkdir("a", 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	requireErrno(t, "Rename(a, a/b)", fsys.Rename("a", "a/b"), wasi.ErrnoInval)
}

func TestHostFSConfinement(t *testing.T) {
	fsys, err := virtfs.NewHostFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewHostFS: %v", err)
	}
	defer fsys.Close()

	// Clean strips the escape, so this names a file inside the root.
	if err := virtfs.WriteFile(fsys, "../outside", []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := fsys.Stat("outside"); err != nil {
		t.Errorf("Stat(outside): %v", err)
	}
}

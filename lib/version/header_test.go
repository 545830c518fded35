// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const licenseHeader = "// Copyright 2026 The wasix-journal Authors\n// SPDX-License-Identifier: Apache-2.0\n"

// TestSourceFilesCarryLicenseHeader checks every Go file of the module,
// skipping directories the toolchain ignores.
func TestSourceFilesCarryLicenseHeader(t *testing.T) {
	root, err := filepath.Abs(filepath.Join("..", ".."))
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Fatalf("module root not found at %s: %v", root, err)
	}

	checked := 0
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			name := entry.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		checked++
		if !strings.HasPrefix(string(data), licenseHeader) {
			relative, _ := filepath.Rel(root, path)
			t.Errorf("%s does not start with the license header", relative)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir: %v", err)
	}
	if checked == 0 {
		t.Fatal("no Go files found")
	}
}

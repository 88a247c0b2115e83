// Package testfs provides small filesystem helpers for tests that
// exercise atomic file replacement: seeding existing targets, reading
// back results, and checking directories for leftover temp files.
package testfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// Write creates or truncates path with the given content and mode,
// failing the test on error. It returns path for convenience.
func Write(t *testing.T, path, content string, mode fs.FileMode) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
	// WriteFile's mode is masked by the process umask on creation;
	// chmod to get the exact bits the test asked for.
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
	return path
}

// Read returns the content of path, failing the test on error.
func Read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// Mode returns the permission bits of path, failing the test on error.
func Mode(t *testing.T, path string) fs.FileMode {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return fi.Mode().Perm()
}

// Leftovers returns the names of all entries in dir except those
// listed, sorted. Tests use it to assert that no temp files survive a
// finished replacement.
func Leftovers(t *testing.T, dir string, except ...string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !slices.Contains(except, e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// TempPath joins t.TempDir with name, for tests that want a target in
// a fresh directory without seeding it.
func TempPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

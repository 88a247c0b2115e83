//go:build unix

package testfs

import (
	"os"
	"syscall"
	"testing"
)

// Owner returns the uid and gid of path, failing the test on error.
func Owner(t *testing.T, path string) (uid, gid int) {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		t.Fatalf("stat %s: no Stat_t", path)
	}
	return int(st.Uid), int(st.Gid)
}

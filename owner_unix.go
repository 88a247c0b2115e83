//go:build unix

package atomicfileio

import (
	"io/fs"
	"syscall"
)

// fileOwner extracts the uid and gid from a stat result.
func fileOwner(fi fs.FileInfo) (uid, gid int, ok bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}
	return int(st.Uid), int(st.Gid), true
}

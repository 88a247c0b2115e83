//go:build windows

package atomicfileio

import "io/fs"

// fileOwner reports no ownership information on Windows; uid/gid
// replication and chown are POSIX concepts.
func fileOwner(fi fs.FileInfo) (uid, gid int, ok bool) {
	return 0, 0, false
}

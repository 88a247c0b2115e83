//go:build !windows

package atomicfileio

import "os"

// renameOverwrite replaces newpath with oldpath. On POSIX systems
// rename over an existing file is atomic.
func renameOverwrite(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

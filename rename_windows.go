//go:build windows

package atomicfileio

import (
	"errors"
	"io/fs"
	"os"
)

// renameOverwrite replaces newpath with oldpath. Windows rename fails
// if the destination exists, so the destination is removed first and
// the rename retried. This is NOT atomic: between the remove and the
// rename a reader can observe the destination missing. True atomicity
// is only guaranteed on POSIX systems.
func renameOverwrite(oldpath, newpath string) error {
	err := os.Rename(oldpath, newpath)
	if err == nil || !errors.Is(err, fs.ErrExist) {
		return err
	}
	if err := os.Remove(newpath); err != nil {
		return err
	}
	return os.Rename(oldpath, newpath)
}

//go:build windows

package atomicfileio

import "io/fs"

// CurrentUmask returns 0 on Windows, which has no umask concept;
// requested permission bits are applied unmasked.
func CurrentUmask() (fs.FileMode, error) { return 0, nil }

// CurrentUmaskUnsafe returns 0 on Windows, which has no umask concept.
func CurrentUmaskUnsafe() fs.FileMode { return 0 }

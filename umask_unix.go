//go:build unix

package atomicfileio

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// CurrentUmask returns the calling process's file mode creation mask
// without mutating it. The result is a snapshot taken at call time and
// is never cached, since another thread may change the mask at any
// moment.
//
// On Linux the mask is read from /proc/self/status, which involves no
// shared-state mutation at all. Where the kernel does not expose it
// there, a short-lived single-threaded shell child is spawned to report
// its inherited mask; the probe mutation happens inside that isolated
// process, so it cannot race with this process's other threads. If both
// mechanisms fail, the returned error wraps [ErrUmaskUnavailable].
func CurrentUmask() (fs.FileMode, error) {
	mask, err := umaskFromProcStatus()
	if err == nil {
		return mask, nil
	}
	mask, shellErr := umaskFromShell()
	if shellErr != nil {
		return 0, fmt.Errorf("%w: %v; %v", ErrUmaskUnavailable, err, shellErr)
	}
	return mask, nil
}

// CurrentUmaskUnsafe returns the process umask via an in-process
// set-and-restore probe. During the probe window, files created by
// other threads (or by children forked during it) get the probe mask of
// 0o066 instead of the real one. Callers must guarantee that no
// concurrent file creation, umask mutation, or forking can occur; when
// in doubt, use [CurrentUmask].
func CurrentUmaskUnsafe() fs.FileMode {
	// 0o066 is arbitrary, chosen because it denies group/other access
	// and so leaks the least if a race does occur.
	mask := unix.Umask(0o066)
	unix.Umask(mask)
	return fs.FileMode(mask)
}

// umaskFromProcStatus reads the "Umask:" line that Linux kernels 4.7+
// expose in /proc/self/status.
func umaskFromProcStatus() (fs.FileMode, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, fmt.Errorf("open /proc/self/status: %w", err)
	}
	defer f.Close()
	return parseProcStatusUmask(f)
}

func parseProcStatusUmask(r io.Reader) (fs.FileMode, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		rest, ok := strings.CutPrefix(line, "Umask:")
		if !ok {
			continue
		}
		mask, err := parseOctalMask(strings.TrimSpace(rest))
		if err != nil {
			return 0, fmt.Errorf("bad Umask line %q: %w", line, err)
		}
		return mask, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read process status: %w", err)
	}
	return 0, fmt.Errorf("no Umask line in process status")
}

// umaskFromShell spawns "sh -c umask". The child inherits this
// process's mask and reports it; the unsafe probe it performs happens
// in its own single-threaded address space.
func umaskFromShell() (fs.FileMode, error) {
	out, err := exec.Command("sh", "-c", "umask").Output()
	if err != nil {
		return 0, fmt.Errorf("spawn umask probe: %w", err)
	}
	mask, err := parseOctalMask(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("bad umask probe output %q: %w", out, err)
	}
	return mask, nil
}

func parseOctalMask(s string) (fs.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, err
	}
	if v > 0o777 {
		return 0, fmt.Errorf("mask %#o out of range", v)
	}
	return fs.FileMode(v), nil
}

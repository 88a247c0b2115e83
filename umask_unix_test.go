//go:build unix

package atomicfileio

import (
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

// setTestUmask pins the process umask for the duration of a test.
// Tests in this package do not run in parallel, so the probe cannot
// race with other file creation here.
func setTestUmask(t *testing.T, mask int) {
	t.Helper()
	old := unix.Umask(mask)
	t.Cleanup(func() { unix.Umask(old) })
}

func TestCurrentUmask(t *testing.T) {
	setTestUmask(t, 0o027)

	mask, err := CurrentUmask()
	if err != nil {
		t.Fatal(err)
	}
	if mask != 0o027 {
		t.Fatalf("got %o, want 0027", mask)
	}
}

func TestCurrentUmaskNotCached(t *testing.T) {
	setTestUmask(t, 0o022)
	if mask, err := CurrentUmask(); err != nil || mask != 0o022 {
		t.Fatalf("got %o, %v", mask, err)
	}

	// A change between calls must be observed.
	unix.Umask(0o077)
	if mask, err := CurrentUmask(); err != nil || mask != 0o077 {
		t.Fatalf("got %o, %v after change", mask, err)
	}
}

func TestCurrentUmaskUnsafe(t *testing.T) {
	setTestUmask(t, 0o037)

	if mask := CurrentUmaskUnsafe(); mask != 0o037 {
		t.Fatalf("got %o, want 0037", mask)
	}
	// The probe must restore the mask it found.
	if mask := CurrentUmaskUnsafe(); mask != 0o037 {
		t.Fatalf("mask not restored: got %o", mask)
	}
}

func TestUmaskFromShell(t *testing.T) {
	setTestUmask(t, 0o026)

	mask, err := umaskFromShell()
	if err != nil {
		t.Skipf("no shell available: %v", err)
	}
	if mask != 0o026 {
		t.Fatalf("got %o, want 0026", mask)
	}
}

func TestParseProcStatusUmask(t *testing.T) {
	status := strings.Join([]string{
		"Name:\tatomicfileio.test",
		"Umask:\t0022",
		"State:\tR (running)",
		"",
	}, "\n")

	mask, err := parseProcStatusUmask(strings.NewReader(status))
	if err != nil {
		t.Fatal(err)
	}
	if mask != 0o022 {
		t.Fatalf("got %o, want 0022", mask)
	}
}

func TestParseProcStatusUmaskMissing(t *testing.T) {
	status := "Name:\tsomething\nState:\tR (running)\n"
	if _, err := parseProcStatusUmask(strings.NewReader(status)); err == nil {
		t.Fatal("expected error for status without Umask line")
	}
}

func TestParseOctalMask(t *testing.T) {
	if m, err := parseOctalMask("0644"); err != nil || m != 0o644 {
		t.Fatalf("got %o, %v", m, err)
	}
	for _, bad := range []string{"", "9", "meow", "1777"} {
		if _, err := parseOctalMask(bad); err == nil {
			t.Errorf("parseOctalMask(%q): expected error", bad)
		}
	}
}

//go:build unix

package atomicfileio

import (
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/sammck/atomicfileio/internal/testfs"
)

func TestPreservesExistingMetadata(t *testing.T) {
	dir := t.TempDir()
	path := testfs.Write(t, filepath.Join(dir, "out.txt"), "old", 0o640)
	wantUID, wantGID := testfs.Owner(t, path)

	// A restrictive umask must not leak into replicated bits.
	err := WriteFile(path, []byte("new"), Options{Umask: modePtr(0o077)})
	if err != nil {
		t.Fatal(err)
	}

	if got := testfs.Mode(t, path); got != 0o640 {
		t.Fatalf("got mode %o, want 0640", got)
	}
	uid, gid := testfs.Owner(t, path)
	if uid != wantUID || gid != wantGID {
		t.Fatalf("got owner %d:%d, want %d:%d", uid, gid, wantUID, wantGID)
	}
}

func TestReplacePermsOverridesExisting(t *testing.T) {
	dir := t.TempDir()
	path := testfs.Write(t, filepath.Join(dir, "out.txt"), "old", 0o640)

	err := WriteFile(path, []byte("new"), Options{
		ReplacePerms: true,
		Perms:        modePtr(0o600),
		Umask:        modePtr(0),
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := testfs.Mode(t, path); got != 0o600 {
		t.Fatalf("got mode %o, want 0600", got)
	}
}

func TestFreshFileUsesProcessUmask(t *testing.T) {
	mask, err := CurrentUmask()
	if err != nil {
		t.Fatal(err)
	}
	path := testfs.TempPath(t, "out.txt")

	if err := WriteFile(path, []byte("x"), Options{}); err != nil {
		t.Fatal(err)
	}

	want := 0o666 &^ mask
	if got := testfs.Mode(t, path); got != want {
		t.Fatalf("got mode %o, want %o (umask %o)", got, want, mask)
	}
}

func TestSymbolicOwnerResolution(t *testing.T) {
	u, err := user.Current()
	if err != nil {
		t.Fatal(err)
	}
	g, err := user.LookupGroupId(u.Gid)
	if err != nil {
		t.Skipf("cannot resolve current group: %v", err)
	}
	path := testfs.TempPath(t, "out.txt")

	// Chown to the caller's own identity, named symbolically, always
	// succeeds.
	err = WriteFile(path, []byte("owned"), Options{
		Owner: u.Username,
		Group: g.Name,
	})
	if err != nil {
		t.Fatal(err)
	}

	uid, gid := testfs.Owner(t, path)
	if uid != os.Getuid() || gid != os.Getgid() {
		t.Fatalf("got owner %d:%d, want %d:%d", uid, gid, os.Getuid(), os.Getgid())
	}
}

func TestNumericOwnerOptions(t *testing.T) {
	uid := os.Getuid()
	gid := os.Getgid()
	path := testfs.TempPath(t, "out.txt")

	err := WriteFile(path, []byte("owned"), Options{UID: &uid, GID: &gid})
	if err != nil {
		t.Fatal(err)
	}

	gotUID, gotGID := testfs.Owner(t, path)
	if gotUID != uid || gotGID != gid {
		t.Fatalf("got owner %d:%d, want %d:%d", gotUID, gotGID, uid, gid)
	}
}

func TestMetadataFinalBeforeWrite(t *testing.T) {
	path := testfs.TempPath(t, "out.txt")

	// The temp file's bits must be final when the caller gets the
	// stream, not fixed up at commit time.
	err := Replace(path, Options{Perms: modePtr(0o640), Umask: modePtr(0)}, func(p *PendingFile) error {
		if got := testfs.Mode(t, p.Name()); got != 0o640 {
			t.Errorf("temp file mode %o before write, want 0640", got)
		}
		_, err := p.WriteString("x")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReplaceThroughSymlinkRewritesLinkTarget(t *testing.T) {
	linkTargetDir := t.TempDir()
	linkDir := t.TempDir()
	real := testfs.Write(t, filepath.Join(linkTargetDir, "real.txt"), "old", 0o640)
	link := filepath.Join(linkDir, "link.txt")
	if err := os.Symlink(real, link); err != nil {
		t.Fatal(err)
	}

	if err := WriteFile(link, []byte("new"), Options{}); err != nil {
		t.Fatal(err)
	}

	// The link survives; the file it points at is what got replaced.
	fi, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&fs.ModeSymlink == 0 {
		t.Fatalf("symlink was replaced by a %v", fi.Mode())
	}
	if got := testfs.Read(t, real); got != "new" {
		t.Fatalf("link target content %q, want %q", got, "new")
	}
	if got := testfs.Mode(t, real); got != 0o640 {
		t.Fatalf("link target mode %o, want 0640", got)
	}

	// The temp file lives (and is cleaned up) next to the resolved
	// target, not next to the link.
	if left := testfs.Leftovers(t, linkDir, "link.txt"); len(left) != 0 {
		t.Fatalf("leftover files next to link: %v", left)
	}
	if left := testfs.Leftovers(t, linkTargetDir, "real.txt"); len(left) != 0 {
		t.Fatalf("leftover files next to target: %v", left)
	}
}

func TestBeginThroughSymlinkResolvesTarget(t *testing.T) {
	dir := t.TempDir()
	real := testfs.Write(t, filepath.Join(dir, "real.txt"), "old", 0o644)
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink("real.txt", link); err != nil {
		t.Fatal(err)
	}

	p, err := Begin(link, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Abort()

	// t.TempDir may itself sit behind symlinks; compare resolved.
	want, err := filepath.EvalSymlinks(real)
	if err != nil {
		t.Fatal(err)
	}
	if p.Target() != want {
		t.Fatalf("target %q, want %q", p.Target(), want)
	}
	if filepath.Dir(p.Name()) != filepath.Dir(want) {
		t.Fatalf("temp file %q not next to resolved target %q", p.Name(), want)
	}
}

func TestReplaceDanglingSymlinkCreatesLinkTarget(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink("missing.txt", link); err != nil {
		t.Fatal(err)
	}

	err := WriteFile(link, []byte("x"), Options{Perms: modePtr(0o644), Umask: modePtr(0)})
	if err != nil {
		t.Fatal(err)
	}

	fi, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&fs.ModeSymlink == 0 {
		t.Fatalf("symlink was replaced by a %v", fi.Mode())
	}
	if got := testfs.Read(t, filepath.Join(dir, "missing.txt")); got != "x" {
		t.Fatalf("link target content %q, want %q", got, "x")
	}
	// The link now resolves.
	if got := testfs.Read(t, link); got != "x" {
		t.Fatalf("read through link got %q", got)
	}
}

func TestFreshFileDefaultUmaskFromProcess(t *testing.T) {
	// Pin the process umask for the duration of the test. Safe here:
	// the test binary runs this test sequentially with no concurrent
	// file creation in this process.
	old := unix.Umask(0o027)
	defer unix.Umask(old)

	path := testfs.TempPath(t, "out.txt")
	if err := WriteFile(path, []byte("x"), Options{Perms: modePtr(0o666)}); err != nil {
		t.Fatal(err)
	}

	if got := testfs.Mode(t, path); got != 0o640 {
		t.Fatalf("got mode %o, want 0640 (0666 &^ 0027)", got)
	}
}

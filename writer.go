package atomicfileio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
)

const (
	tokenChars        = "abcdefghijklmnopqrstuvwxyz0123456789"
	tokenLen          = 8
	maxCreateAttempts = 10000
)

// randomToken returns the random component of a temp file name. It
// only needs to be unique within a directory, not unpredictable.
func randomToken() string {
	var b [tokenLen]byte
	for i := range b {
		b[i] = tokenChars[rand.IntN(len(tokenChars))]
	}
	return string(b[:])
}

// opState tracks a replacement through its lifecycle. Committed and
// rolledBack are terminal; no transition leaves either.
type opState int

const (
	statePending opState = iota
	stateCommitted
	stateRolledBack
)

// PendingFile is an in-flight replacement: an open writable stream
// backed by a uniquely-named file in the target's directory, with the
// target's final ownership and permission bits already applied. Data
// written through it becomes visible at the target path only after
// [PendingFile.Commit].
//
// A PendingFile must be finished with exactly one of Commit or Abort.
// It is not safe for concurrent use.
type PendingFile struct {
	f      *os.File
	w      io.Writer
	buf    *bufio.Writer
	tmp    string
	target string
	keep   bool
	logger *slog.Logger
	state  opState
}

// Begin starts an atomic replacement of the file at path. It creates a
// temp file named "{base}.{8 random chars}{suffix}" in path's directory
// (same directory, so the final rename never crosses a filesystem),
// retrying with fresh tokens on name collision, and applies the
// ownership/permission policy from opts before returning.
//
// Symlinks in path are resolved first, so replacing a path that is a
// symlink rewrites the file the link points at and leaves the link
// itself in place; the temp file is created next to the resolved
// target.
//
// When the target exists and opts.ReplacePerms is false, its uid, gid,
// and permission bits are replicated onto the temp file unmasked.
// Otherwise the identity fields of opts (defaulting to the caller's
// effective identity) and opts.Perms masked by the effective umask
// determine them, the same way a fresh file creation would. The bits
// are final before Begin returns; callers may adjust them further via
// [PendingFile.File] and their adjustments are preserved.
//
// The caller must finish the returned PendingFile with Commit or Abort.
// When the outcome is tied to a single function, prefer [Replace],
// which guarantees cleanup on every exit path.
func Begin(path string, opts Options) (*PendingFile, error) {
	if !opts.Mode.valid() {
		return nil, fmt.Errorf("%w %d", ErrInvalidMode, int(opts.Mode))
	}
	logger := opts.logger()

	uid, gid, err := resolveOwnership(opts)
	if err != nil {
		return nil, err
	}

	target, err := resolveTarget(path)
	if err != nil {
		return nil, fmt.Errorf("atomicfileio: resolve target: %w", err)
	}

	// Decide the permission policy before touching the filesystem.
	var perms, umask fs.FileMode
	replicated := false
	if !opts.ReplacePerms {
		fi, err := os.Stat(target)
		switch {
		case err == nil:
			perms = fi.Mode().Perm()
			if u, g, ok := fileOwner(fi); ok {
				uid, gid = &u, &g
			}
			// Replicated bits are applied verbatim, never masked.
			umask = 0
			replicated = true
		case errors.Is(err, fs.ErrNotExist):
			// Fall through to fresh-file policy.
		default:
			return nil, fmt.Errorf("atomicfileio: stat target: %w", err)
		}
	}
	if !replicated {
		perms = 0o666
		if opts.Perms != nil {
			perms = opts.Perms.Perm()
		}
		if opts.Umask != nil {
			umask = opts.Umask.Perm()
		} else {
			umask, err = CurrentUmask()
			if err != nil {
				return nil, err
			}
		}
	}
	perms &^= umask

	dir := filepath.Dir(target)
	base := opts.TempBaseName
	if base == "" {
		base = filepath.Base(target)
	}
	suffix := opts.TempSuffix
	if suffix == "" {
		suffix = ".tmp"
	}

	f, tmp, err := createTemp(dir, base, suffix)
	if err != nil {
		return nil, fmt.Errorf("atomicfileio: create temp: %w", err)
	}

	p := &PendingFile{
		f:      f,
		tmp:    tmp,
		target: target,
		keep:   opts.KeepTempOnError,
		logger: logger,
	}
	if err := p.applyMetadata(uid, gid, perms); err != nil {
		p.rollback()
		return nil, err
	}

	var w io.Writer = f
	if opts.Mode == WriteText && opts.Newline != "" && opts.Newline != "\n" {
		w = &newlineWriter{w: w, nl: []byte(opts.Newline)}
	}
	if opts.BufferSize > 0 {
		p.buf = bufio.NewWriterSize(w, opts.BufferSize)
		w = p.buf
	}
	p.w = w

	logger.Debug("created temp file",
		"target", target, "temp", tmp, "perms", perms, "replicated", replicated)
	return p, nil
}

// resolveTarget resolves all symlinks in path to the file the
// replacement should actually land on. A path whose final component
// does not exist yet resolves its directory, then chases any dangling
// links by hand so a replacement through a not-yet-created link target
// still preserves the link.
func resolveTarget(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	for range 40 {
		dir, err := filepath.EvalSymlinks(filepath.Dir(path))
		if errors.Is(err, fs.ErrNotExist) {
			// Missing parent directory; let temp creation report it
			// against the literal path.
			return path, nil
		}
		if err != nil {
			return "", err
		}
		path = filepath.Join(dir, filepath.Base(path))
		fi, err := os.Lstat(path)
		if err != nil || fi.Mode()&fs.ModeSymlink == 0 {
			return path, nil
		}
		dest, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(dir, dest)
		}
		path = dest
	}
	return "", fmt.Errorf("too many links resolving %s", path)
}

// applyMetadata establishes ownership and permission bits on the just
// created temp file. The exclusive create leaves it at 0o600 owned by
// the caller, so only bits that actually differ are changed; this
// avoids chown failures when a non-root caller is preserving its own
// file's identity.
func (p *PendingFile) applyMetadata(uid, gid *int, perms fs.FileMode) error {
	fi, err := p.f.Stat()
	if err != nil {
		return fmt.Errorf("atomicfileio: stat temp: %w", err)
	}
	curUID, curGID, haveOwner := fileOwner(fi)

	chownUID, chownGID := -1, -1
	if uid != nil && (!haveOwner || *uid != curUID) {
		chownUID = *uid
	}
	if gid != nil && (!haveOwner || *gid != curGID) {
		chownGID = *gid
	}
	if chownUID != -1 || chownGID != -1 {
		if err := p.f.Chown(chownUID, chownGID); err != nil {
			return fmt.Errorf("atomicfileio: chown temp: %w", err)
		}
	}
	if fi.Mode().Perm() != perms {
		if err := p.f.Chmod(perms); err != nil {
			return fmt.Errorf("atomicfileio: chmod temp: %w", err)
		}
	}
	return nil
}

// Write writes to the pending replacement's stream.
func (p *PendingFile) Write(b []byte) (int, error) {
	if p.state != statePending {
		return 0, ErrCompleted
	}
	return p.w.Write(b)
}

// WriteString writes a string to the pending replacement's stream.
func (p *PendingFile) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}

// File returns the underlying temp file, for callers that want to make
// further metadata adjustments (fchmod, fchown, xattrs) before Commit.
// Writing to it directly bypasses any buffering or newline translation.
func (p *PendingFile) File() *os.File { return p.f }

// Name returns the temp file's path.
func (p *PendingFile) Name() string { return p.tmp }

// Target returns the final path the replacement will commit to.
func (p *PendingFile) Target() string { return p.target }

// Commit finishes the replacement: it flushes any buffered data, syncs
// and closes the temp file, and renames it over the target. After a
// successful Commit the target contains exactly the written bytes with
// the metadata established at Begin (plus any caller adjustments).
//
// On failure the target is left untouched and the temp file is removed
// (unless retention was requested); the replacement is then rolled back
// and cannot be retried on this PendingFile. Calling Commit after the
// replacement has already completed returns [ErrCompleted].
func (p *PendingFile) Commit() error {
	if p.state != statePending {
		return fmt.Errorf("%w: cannot commit", ErrCompleted)
	}
	if p.buf != nil {
		if err := p.buf.Flush(); err != nil {
			p.rollback()
			return fmt.Errorf("atomicfileio: flush: %w", err)
		}
	}
	if err := p.f.Sync(); err != nil {
		p.rollback()
		return fmt.Errorf("atomicfileio: fsync: %w", err)
	}
	if err := p.f.Close(); err != nil {
		p.rollback()
		return fmt.Errorf("atomicfileio: close temp: %w", err)
	}
	if err := renameOverwrite(p.tmp, p.target); err != nil {
		p.rollback()
		return fmt.Errorf("atomicfileio: rename: %w", err)
	}
	p.state = stateCommitted
	p.logger.Debug("committed replacement", "target", p.target)
	return nil
}

// Abort discards the replacement, leaving the target untouched. The
// temp file is removed unless retention was requested. Abort after the
// replacement has already completed is a no-op, so a deferred Abort is
// always safe.
func (p *PendingFile) Abort() error {
	if p.state != statePending {
		return nil
	}
	p.rollback()
	return nil
}

// rollback moves the replacement to its terminal rolled-back state.
// Close and remove errors are swallowed: this runs on failure paths
// where the triggering error must propagate unmasked.
func (p *PendingFile) rollback() {
	p.state = stateRolledBack
	_ = p.f.Close()
	if !p.keep {
		_ = os.Remove(p.tmp)
	}
	p.logger.Debug("rolled back replacement",
		"target", p.target, "temp", p.tmp, "kept", p.keep)
}

// Replace atomically replaces the file at path with whatever fn writes.
// It wraps [Begin], invokes fn with the pending replacement, and
// commits on clean return. If fn returns an error or panics, the
// replacement is aborted — the target stays untouched, the temp file is
// cleaned up per opts — and the error or panic propagates.
func Replace(path string, opts Options, fn func(*PendingFile) error) error {
	p, err := Begin(path, opts)
	if err != nil {
		return err
	}
	defer p.Abort()
	if err := fn(p); err != nil {
		return err
	}
	return p.Commit()
}

// WriteFile atomically replaces the file at path with data.
func WriteFile(path string, data []byte, opts Options) error {
	return Replace(path, opts, func(p *PendingFile) error {
		_, err := p.Write(data)
		return err
	})
}

// createTemp exclusively creates a uniquely-named file in dir, retrying
// with a fresh random token on collision. The file starts at 0o600;
// final bits are applied separately.
func createTemp(dir, base, suffix string) (*os.File, string, error) {
	for range maxCreateAttempts {
		path := filepath.Join(dir, base+"."+randomToken()+suffix)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no unique name in %s after %d attempts", dir, maxCreateAttempts)
}

// newlineWriter rewrites each "\n" in the written stream as nl. The
// returned count is in input bytes, as io.Writer requires.
type newlineWriter struct {
	w  io.Writer
	nl []byte
}

func (nw *newlineWriter) Write(b []byte) (int, error) {
	var written int
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			n, err := nw.w.Write(b)
			return written + n, err
		}
		if n, err := nw.w.Write(b[:i]); err != nil {
			return written + n, err
		}
		if _, err := nw.w.Write(nw.nl); err != nil {
			return written + i, err
		}
		written += i + 1
		b = b[i+1:]
	}
	return written, nil
}

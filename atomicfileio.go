// Package atomicfileio provides atomic create-or-overwrite of files. A
// reader that opens the target path at any point during a replacement
// sees either the complete old contents or the complete new contents,
// never a partial write.
//
// The replacement writes to a uniquely-named temporary file in the same
// directory as the target, establishes the final ownership and
// permission bits on it up front, and renames it over the target on
// commit. On POSIX systems the rename is atomic; on Windows a best
// effort is made (see [PendingFile.Commit]).
//
// Two replacements racing for the same path are independent; whichever
// commits last wins. No cross-process locking is performed.
package atomicfileio

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
)

// Sentinel errors, matched with [errors.Is]. Returned errors wrap these
// with additional context.
var (
	// ErrInvalidMode indicates a requested open mode other than the
	// supported write-only modes. It is reported before any
	// filesystem action is taken.
	ErrInvalidMode = errors.New("atomicfileio: unsupported open mode")

	// ErrIdentityNotFound indicates that a symbolic user or group
	// name did not resolve against the system identity database.
	ErrIdentityNotFound = errors.New("atomicfileio: identity not found")

	// ErrUmaskUnavailable indicates that the process umask could not
	// be determined by any available mechanism.
	ErrUmaskUnavailable = errors.New("atomicfileio: cannot determine process umask")

	// ErrCompleted indicates an operation on a [PendingFile] that has
	// already been committed or aborted.
	ErrCompleted = errors.New("atomicfileio: replacement already completed")
)

// OpenMode selects how the replacement stream treats written data.
// Only write-only modes exist; there is no way to read the target
// through a pending replacement.
type OpenMode int

const (
	// WriteText is the default mode. Written data passes through
	// verbatim unless [Options.Newline] requests translation.
	WriteText OpenMode = iota

	// WriteBinary writes bytes through verbatim, ignoring
	// [Options.Newline].
	WriteBinary
)

// ParseOpenMode parses the mode strings accepted by the CLI and by
// callers porting from stdio-style APIs: "w" and "wt" mean [WriteText],
// "wb" means [WriteBinary]. Anything else wraps [ErrInvalidMode].
func ParseOpenMode(s string) (OpenMode, error) {
	switch s {
	case "w", "wt":
		return WriteText, nil
	case "wb":
		return WriteBinary, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrInvalidMode, s)
	}
}

// String returns the stdio-style mode string.
func (m OpenMode) String() string {
	switch m {
	case WriteText:
		return "w"
	case WriteBinary:
		return "wb"
	default:
		return fmt.Sprintf("OpenMode(%d)", int(m))
	}
}

func (m OpenMode) valid() bool {
	return m == WriteText || m == WriteBinary
}

// Options configures a single replacement. The zero value requests a
// plain text-mode replacement that preserves an existing target's
// ownership and permissions.
type Options struct {
	// Mode is the open mode for the replacement stream. Only
	// [WriteText] (the default) and [WriteBinary] are accepted; any
	// other value is rejected with [ErrInvalidMode] before any
	// filesystem action.
	Mode OpenMode

	// ReplacePerms forces ownership and permissions to be computed
	// fresh (from UID/GID/Owner/Group/Perms and the effective umask)
	// even when the target already exists. When false and the target
	// exists, its uid, gid, and permission bits are replicated onto
	// the new file instead.
	ReplacePerms bool

	// Umask, if non-nil, overrides the process umask when computing
	// permissions for a fresh file. A value of 0 masks nothing.
	// Ignored when an existing target's permissions are replicated.
	Umask *fs.FileMode

	// UID and GID, if non-nil, are the numeric owner identities for a
	// fresh file. They take precedence over Owner and Group.
	UID *int
	GID *int

	// Owner and Group, if non-empty, name the owner identities for a
	// fresh file. A string of decimal digits is taken as a literal
	// numeric id; anything else is resolved via the system identity
	// database (see [LookupUID] and [LookupGID]).
	Owner string
	Group string

	// Perms, if non-nil, is the permission bits for a fresh file
	// before umask masking. Defaults to 0o666, mirroring how a plain
	// file creation computes permissions (not the restrictive 0o600
	// that anonymous temp-file APIs use).
	Perms *fs.FileMode

	// TempBaseName overrides the base of the temporary file's name.
	// Defaults to the target's filename. The temp file is named
	// "{base}.{8 random chars}{suffix}" in the target's directory.
	TempBaseName string

	// TempSuffix is appended to the temporary file's name.
	// Defaults to ".tmp".
	TempSuffix string

	// KeepTempOnError retains the temporary file on failure for
	// diagnosis instead of deleting it.
	KeepTempOnError bool

	// BufferSize, if positive, buffers writes to the temporary file
	// with a buffer of that many bytes. The buffer is flushed before
	// commit. Zero means unbuffered.
	BufferSize int

	// Newline, if non-empty in text mode, replaces each "\n" written
	// through the stream with this string. No other translation is
	// performed.
	Newline string

	// Logger receives debug-level records describing the temp file
	// lifecycle. If nil, nothing is logged.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

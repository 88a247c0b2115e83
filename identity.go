package atomicfileio

import (
	"fmt"
	"os/user"
	"strconv"
)

// LookupUID resolves a user identity expressed as either a decimal uid
// or a username. A string consisting entirely of decimal digits is
// taken as a literal uid without consulting the user database, so a
// numeric id can never be shadowed by a user whose name happens to be
// all digits. Any other string is looked up with [user.Lookup]; an
// unknown name returns an error wrapping [ErrIdentityNotFound].
func LookupUID(s string) (int, error) {
	if id, ok := parseID(s); ok {
		return id, nil
	}
	u, err := user.Lookup(s)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown user %q: %v", ErrIdentityNotFound, s, err)
	}
	id, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, fmt.Errorf("atomicfileio: non-numeric uid %q for user %q: %w", u.Uid, s, err)
	}
	return id, nil
}

// LookupGID resolves a group identity expressed as either a decimal gid
// or a group name, with the same literal-decimal rule as [LookupUID].
// An unknown name returns an error wrapping [ErrIdentityNotFound].
func LookupGID(s string) (int, error) {
	if id, ok := parseID(s); ok {
		return id, nil
	}
	g, err := user.LookupGroup(s)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown group %q: %v", ErrIdentityNotFound, s, err)
	}
	id, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, fmt.Errorf("atomicfileio: non-numeric gid %q for group %q: %w", g.Gid, s, err)
	}
	return id, nil
}

// parseID reports whether s is a literal non-negative decimal id.
// A leading sign disqualifies the string so that e.g. "-1" falls
// through to (and fails) name lookup rather than producing a negative
// identity.
func parseID(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		// Out of range for int; treat as unparseable.
		return 0, false
	}
	return id, true
}

// resolveOwnership turns the identity fields of opts into concrete
// numeric ids. A nil result means "use the default" (the calling
// process's effective identity, as established at file creation).
func resolveOwnership(opts Options) (uid, gid *int, err error) {
	uid = opts.UID
	if uid != nil && *uid < 0 {
		return nil, nil, fmt.Errorf("atomicfileio: negative uid %d", *uid)
	}
	if uid == nil && opts.Owner != "" {
		id, err := LookupUID(opts.Owner)
		if err != nil {
			return nil, nil, err
		}
		uid = &id
	}
	gid = opts.GID
	if gid != nil && *gid < 0 {
		return nil, nil, fmt.Errorf("atomicfileio: negative gid %d", *gid)
	}
	if gid == nil && opts.Group != "" {
		id, err := LookupGID(opts.Group)
		if err != nil {
			return nil, nil, err
		}
		gid = &id
	}
	return uid, gid, nil
}

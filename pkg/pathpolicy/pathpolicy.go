// Package pathpolicy evaluates allow-list/deny-list rules for filesystem
// paths. It backs the engine's download and log-retrieval endpoints: a path
// is only served after it has been resolved to its canonical absolute form
// and checked against the configured roots, so traversal segments and
// symlinks cannot escape the policy.
package pathpolicy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotAllowed is returned when an allow-list is configured and the
// resolved path does not fall under any allowed root.
var ErrNotAllowed = errors.New("path is not allowed")

// ErrBlocked is returned when the resolved path falls under a blocked root.
var ErrBlocked = errors.New("path is blocked")

// Policy holds directory roots guarding filesystem access. When Allowed is
// non-empty it strictly overrides Blocked: the deny-list is a fallback-only
// policy consulted when no allow-list is configured.
type Policy struct {
	Allowed []string
	Blocked []string
}

// Check evaluates the policy against a path that has already been
// canonicalized with Resolve.
func (p Policy) Check(resolved string) error {
	if len(p.Allowed) > 0 {
		for _, root := range p.Allowed {
			if Within(root, resolved) {
				return nil
			}
		}
		return ErrNotAllowed
	}
	for _, root := range p.Blocked {
		if Within(root, resolved) {
			return ErrBlocked
		}
	}
	return nil
}

// Resolve canonicalizes a path: absolute, cleaned of dot segments, and with
// symlinks resolved when the target exists. A nonexistent target resolves
// through its deepest existing ancestor so traversal cannot hide behind a
// missing suffix.
func Resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	// Target does not exist (or a component failed). Resolve the longest
	// existing ancestor and re-attach the remainder.
	dir, rest := abs, ""
	for {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return abs, nil
	}
	return filepath.Join(resolved, rest), nil
}

// Within reports whether path falls under root. Both arguments are
// canonicalized before the comparison, which is separator-aware so that
// "/tmp/abc" is not treated as inside "/tmp/ab".
func Within(root, path string) bool {
	resolvedRoot, err := Resolve(root)
	if err != nil {
		return false
	}
	resolvedPath, err := Resolve(path)
	if err != nil {
		return false
	}
	if resolvedPath == resolvedRoot {
		return true
	}
	return strings.HasPrefix(resolvedPath, resolvedRoot+string(filepath.Separator))
}

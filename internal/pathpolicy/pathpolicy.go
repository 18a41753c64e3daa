// Package pathpolicy canonicalizes and validates filesystem paths against a
// set of mutable roots, so tools cannot escape a session's workspace via
// relative traversal or symlinks.
package pathpolicy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

// Policy holds the set of roots under which paths checked by
// AssertInMutableRoots are permitted.
type Policy struct {
	// MutableRoots is the set of directories a path must resolve under.
	// Defaults to a single workspace directory.
	MutableRoots []string
	// DeniedPrefixes are root-relative prefixes that are never permitted
	// even though they fall under a mutable root (e.g. ".drost/state").
	DeniedPrefixes []string
}

// New builds a Policy whose only mutable root is workspaceDir.
func New(workspaceDir string) *Policy {
	return &Policy{MutableRoots: []string{workspaceDir}}
}

// Canonicalize resolves path (absolute or relative-to-root) to an absolute,
// symlink-resolved form. If path is relative it is joined against root.
// Canonicalize does not check containment; call
// AssertInMutableRoots for that.
func Canonicalize(root, path string) (string, error) {
	var joined string
	if filepath.IsAbs(path) {
		joined = filepath.Clean(path)
	} else {
		joined = filepath.Clean(filepath.Join(root, path))
	}

	real, err := filepath.EvalSymlinks(joined)
	if err == nil {
		return real, nil
	}
	// Path may not exist yet (about to be created) — resolve its parent
	// instead and re-append the base name.
	parentReal, perr := filepath.EvalSymlinks(filepath.Dir(joined))
	if perr != nil {
		return joined, nil
	}
	return filepath.Join(parentReal, filepath.Base(joined)), nil
}

// IsWithinRoot reports whether the canonical path candidate falls under the
// canonical root, treating root itself as included.
func IsWithinRoot(candidate, root string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != ".."
}

// AssertInMutableRoots canonicalizes path and verifies it falls within one
// of p.MutableRoots and not under any DeniedPrefixes of that root. It
// returns the canonical path on success.
func (p *Policy) AssertInMutableRoots(path string) (string, error) {
	if len(p.MutableRoots) == 0 {
		return "", gwerr.New(gwerr.KindPathOutsideRoots, "no mutable roots configured")
	}

	var lastErr error
	for _, root := range p.MutableRoots {
		rootReal, err := filepath.EvalSymlinks(root)
		if err != nil {
			rootReal = filepath.Clean(root)
		}
		candidate, err := Canonicalize(rootReal, path)
		if err != nil {
			lastErr = err
			continue
		}
		if !IsWithinRoot(candidate, rootReal) {
			lastErr = gwerr.New(gwerr.KindPathOutsideRoots,
				fmt.Sprintf("path %q escapes root %q", path, root))
			continue
		}
		if denied := p.deniedPrefixMatch(candidate, rootReal); denied != "" {
			return "", gwerr.New(gwerr.KindPathOutsideRoots,
				fmt.Sprintf("path %q falls under denied prefix %q", path, denied))
		}
		return candidate, nil
	}
	if lastErr == nil {
		lastErr = gwerr.New(gwerr.KindPathOutsideRoots, fmt.Sprintf("path %q not within any mutable root", path))
	}
	return "", lastErr
}

func (p *Policy) deniedPrefixMatch(candidate, root string) string {
	for _, prefix := range p.DeniedPrefixes {
		denied := filepath.Join(root, prefix)
		if IsWithinRoot(candidate, denied) {
			return prefix
		}
	}
	return ""
}

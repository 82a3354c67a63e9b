// Package pathpolicy centralizes validation of every external path input
// the core accepts — skill locations, export targets, restore inputs —
// so traversal and symlink-escape attacks are rejected before any file
// operation touches the filesystem.
package pathpolicy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Dicklesworthstone/meta-skill-sub000/internal/mserr"
)

// ValidateComponent rejects a single path component that is empty,
// contains a null byte, is "." or "..", or contains a directory
// separator. Used for any user-supplied name destined to become one
// segment of a filesystem path (a skill id, a tag, an export filename).
func ValidateComponent(component string) error {
	if component == "" {
		return mserr.NewPathPolicy(mserr.ViolationInvalidComponent, "empty path component")
	}
	if strings.ContainsRune(component, 0) {
		return mserr.NewPathPolicy(mserr.ViolationInvalidComponent, "path component contains null byte")
	}
	if component == "." || component == ".." {
		return mserr.NewPathPolicy(mserr.ViolationTraversalAttempt, "path component is a traversal sequence")
	}
	if strings.ContainsAny(component, "/\\") {
		return mserr.NewPathPolicy(mserr.ViolationInvalidComponent, "path component contains a directory separator")
	}
	return nil
}

// SafeJoin joins root with a caller-provided relative path, rejecting
// absolute paths, parent-traversal sequences, and null bytes. The
// returned path is not guaranteed to exist.
func SafeJoin(root, relative string) (string, error) {
	if strings.ContainsRune(relative, 0) {
		return "", mserr.NewPathPolicy(mserr.ViolationInvalidComponent, "relative path contains null byte")
	}
	if filepath.IsAbs(relative) {
		return "", mserr.NewPathPolicy(mserr.ViolationInvalidComponent, "relative path must not be absolute")
	}

	cleanRel := filepath.ToSlash(relative)
	for _, part := range strings.Split(cleanRel, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", mserr.NewPathPolicy(mserr.ViolationTraversalAttempt, "relative path contains a parent-traversal sequence")
		}
	}

	return filepath.Join(root, relative), nil
}

// CanonicalizeWithRoot resolves symlinks in both path and root and
// verifies the canonical target still lives under the canonical root.
// Both path and root must exist on disk.
func CanonicalizeWithRoot(path, root string) (string, error) {
	canonicalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", mserr.Wrap(mserr.KindPathPolicy, "cannot canonicalize root", err)
	}
	canonicalPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", mserr.Wrap(mserr.KindPathPolicy, "cannot canonicalize path", err)
	}
	if !isUnder(canonicalPath, canonicalRoot) {
		return "", mserr.NewPathPolicy(mserr.ViolationEscapesRoot, "path escapes root after canonicalization")
	}
	return canonicalPath, nil
}

// DenySymlinkEscape walks path component by component, and for every
// component that is itself a symlink, resolves its target (without
// requiring the target to exist further down) and rejects the path if
// that target lands outside root. Unlike CanonicalizeWithRoot this does
// not require the final path to exist.
func DenySymlinkEscape(path, root string) error {
	canonicalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		// Root doesn't exist yet: nothing to check against.
		return nil
	}

	// Walk accumulated prefix, component by component.
	parts := strings.Split(filepath.ToSlash(path), "/")
	current := ""
	if filepath.IsAbs(path) {
		current = "/"
	}
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			current = filepath.Dir(current)
			continue
		}
		current = filepath.Join(current, part)

		info, lerr := os.Lstat(current)
		if lerr != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, rerr := os.Readlink(current)
		if rerr != nil {
			continue
		}
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(current), target)
		}
		canonicalTarget, cerr := filepath.EvalSymlinks(resolved)
		if cerr != nil {
			// A dangling target cannot be canonicalized whole; canonicalize
			// its parent directory and keep the final name.
			parent, perr := filepath.EvalSymlinks(filepath.Dir(resolved))
			if perr != nil {
				continue
			}
			canonicalTarget = filepath.Join(parent, filepath.Base(resolved))
		}
		if !isUnder(canonicalTarget, canonicalRoot) {
			return mserr.NewPathPolicy(mserr.ViolationSymlinkEscape, "symlink target escapes root").
				WithContext(map[string]any{"symlink": current, "target": canonicalTarget, "root": canonicalRoot})
		}
	}
	return nil
}

// NormalizePath removes redundant "." and ".." components purely as a
// string operation — it performs no filesystem access and never resolves
// symlinks. ".." above an absolute root is a no-op rather than an error.
func NormalizePath(path string) string {
	isAbs := filepath.IsAbs(path)
	parts := strings.Split(filepath.ToSlash(path), "/")
	var out []string
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	joined := strings.Join(out, "/")
	if isAbs {
		return "/" + joined
	}
	return joined
}

// IsUnderRoot reports whether path is contained within root using purely
// string-normalized comparison (no symlink resolution). For
// symlink-aware checking use CanonicalizeWithRoot.
func IsUnderRoot(path, root string) bool {
	return isUnder(NormalizePath(path), NormalizePath(root))
}

func isUnder(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// Package pathguard constrains path resolution to an allow-listed set of
// base directories and rejects traversal attempts (spec §4.2).
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard validates raw path strings against an allow-listed set of
// absolute base directories. The zero value is not usable; construct with
// New.
type Guard struct {
	bases []string
}

// New constructs a Guard over the given absolute base directories. Each
// base is cleaned and made absolute relative to the current working
// directory if it isn't already.
func New(bases ...string) *Guard {
	g := &Guard{bases: make([]string, 0, len(bases))}
	for _, b := range bases {
		abs, err := filepath.Abs(b)
		if err != nil {
			abs = filepath.Clean(b)
		}
		g.bases = append(g.bases, abs)
	}
	return g
}

// forbiddenSubstrings are rejected anywhere they appear in a raw input,
// before any parsing is attempted (spec §4.2).
var forbiddenSubstrings = []string{"../", "..\\", "~", "${", "$ENV"}

// hasControlBytes reports whether s contains any byte below 0x20 (includes
// \x00) or the 0x7f DEL byte. Control bytes are never parsed around:
// their mere presence is a rejection.
func hasControlBytes(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

// Validate resolves raw against one of the Guard's allow-listed bases,
// returning the canonicalized absolute path. It does not require the
// target to exist; use ValidateExisting for that.
func (g *Guard) Validate(raw string) (string, error) {
	return g.validate(raw, false)
}

// ValidateExisting is Validate plus an existence check on the resolved
// path (spec §4.2).
func (g *Guard) ValidateExisting(raw string) (string, error) {
	return g.validate(raw, true)
}

func (g *Guard) validate(raw string, mustExist bool) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if hasControlBytes(raw) {
		return "", fmt.Errorf("%w: control bytes in path", ErrInvalidPath)
	}
	for _, sub := range forbiddenSubstrings {
		if strings.Contains(raw, sub) {
			return "", fmt.Errorf("%w: forbidden sequence %q", ErrInvalidPath, sub)
		}
	}
	if filepath.IsAbs(raw) {
		return "", fmt.Errorf("%w: absolute paths not permitted as input", ErrInvalidPath)
	}

	for _, base := range g.bases {
		joined := filepath.Join(base, raw)
		resolved, err := resolveSymlinks(joined)
		if err != nil {
			continue
		}
		if !withinBase(resolved, base) {
			continue
		}
		if mustExist {
			if _, err := os.Stat(resolved); err != nil {
				continue
			}
		}
		return resolved, nil
	}
	return "", fmt.Errorf("%w: %s does not resolve under any allow-listed base", ErrInvalidPath, raw)
}

// resolveSymlinks canonicalizes path, resolving symlinks where the path
// (or the deepest existing ancestor of it) exists. A not-yet-existing
// path is canonicalized by cleaning only, so Validate (without existence
// requirement) still works for output-directory creation.
func resolveSymlinks(path string) (string, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real, nil
	}
	// Path doesn't exist yet: walk up to the deepest existing ancestor,
	// resolve that, then re-append the remaining (not-yet-created)
	// components so a future symlink escape still gets caught once the
	// directory exists.
	clean := filepath.Clean(path)
	dir := filepath.Dir(clean)
	var suffix []string
	for {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			full := real
			for i := len(suffix) - 1; i >= 0; i-- {
				full = filepath.Join(full, suffix[i])
			}
			return filepath.Join(full, filepath.Base(clean)), nil
		}
		if dir == "/" || dir == "." {
			return clean, nil
		}
		suffix = append(suffix, filepath.Base(dir))
		dir = filepath.Dir(dir)
	}
}

// withinBase reports whether resolved is base itself or a descendant of
// it, guarding against a symlink-escape that would otherwise land outside
// the allow-listed root.
func withinBase(resolved, base string) bool {
	if resolved == base {
		return true
	}
	return strings.HasPrefix(resolved, base+string(filepath.Separator))
}

// ValidateWebhookTitle applies the stricter webhook-input rule (spec
// §4.2): the title must be a single directory name with no path
// separators and no ".." anywhere, in addition to the base rejection
// rules.
func ValidateWebhookTitle(title string) error {
	if title == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidPath)
	}
	if hasControlBytes(title) {
		return fmt.Errorf("%w: control bytes in title", ErrInvalidPath)
	}
	if strings.ContainsAny(title, "/\\") {
		return fmt.Errorf("%w: title must not contain a path separator", ErrInvalidPath)
	}
	if strings.Contains(title, "..") {
		return fmt.Errorf("%w: title must not contain ..", ErrInvalidPath)
	}
	for _, sub := range forbiddenSubstrings {
		if strings.Contains(title, sub) {
			return fmt.Errorf("%w: forbidden sequence %q", ErrInvalidPath, sub)
		}
	}
	return nil
}

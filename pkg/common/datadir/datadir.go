// Package datadir confines client-supplied file paths to a service's data
// directory.
package datadir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideRoot = errors.New("path escapes data directory")

// Resolve maps p onto root. A relative p is joined to root; an absolute p
// must already lie under it. Symlinks on the existing part of either path
// are followed before the check. An empty root leaves p unchanged.
func Resolve(root, p string) (string, error) {
	if root == "" || p == "" {
		return p, nil
	}
	base, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve data directory %s: %w", root, err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(realPath(base), realPath(target))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return target, nil
}

// realPath resolves symlinks on the longest existing prefix of p and keeps
// the missing tail as written.
func realPath(p string) string {
	var tail []string
	cur := p
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...)
		} else if !errors.Is(err, os.ErrNotExist) {
			return p
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

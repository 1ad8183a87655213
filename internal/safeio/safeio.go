// Package safeio provides read-only filesystem helpers locked to a fixed
// repository root. Every evidence read goes through it; violations surface as
// security errors that the verifier and retry router recognize and never
// retry around.
package safeio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrSecurity marks boundary violations (traversal, symlink, root escape).
// Wrapping errors carry the specific message; match with errors.Is.
var ErrSecurity = errors.New("security violation")

// SafeFS resolves paths relative to a fixed root and rejects anything that
// would read outside it.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

// NewSafeFS locks all future operations to the given root directory.
func NewSafeFS(root string) (*SafeFS, error) {
	if root == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("safeio: root is not a directory")
	}
	return &SafeFS{absRoot: abs}, nil
}

// Root returns the absolute root directory bound to this SafeFS.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// Resolve maps a repo-relative path to an absolute one, enforcing the
// sandbox: no absolute paths, no ".." traversal, no symlinks, no realpath
// escapes. The returned path is safe to open.
func (s *SafeFS) Resolve(rel string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	if rel == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal not allowed: %s", ErrSecurity, rel)
	}
	joined := filepath.Join(s.absRoot, clean)

	// Reject symlinked entries outright rather than following them.
	if info, err := os.Lstat(joined); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: symlink not allowed: %s", ErrSecurity, rel)
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return "", fmt.Errorf("%w: path escapes repo, resolved outside repository root: %s", ErrSecurity, rel)
	}
	return resolved, nil
}

// ReadFile reads a regular file relative to the root.
func (s *SafeFS) ReadFile(rel string) ([]byte, error) {
	p, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("safeio: path is a directory")
	}
	return os.ReadFile(p)
}

// Stat returns metadata for a file or directory under the root.
func (s *SafeFS) Stat(rel string) (fs.FileInfo, error) {
	p, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path, root)
}

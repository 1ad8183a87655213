// Package tools implements the bounded evidence tools: repository file
// listing and line-numbered file reading. All reads are sandboxed to the
// repository root via safeio.
package tools

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"repopilot/internal/safeio"
)

// ListFilesResult is the materialized output of one ListFiles call.
type ListFilesResult struct {
	Files           []string
	IgnoredDirCount int
}

// ReadOptions bounds a single read. Zero values take the defaults below.
// Setting LineStart or LineEnd switches to a chunk read (1-indexed,
// inclusive) that preserves absolute line numbers.
type ReadOptions struct {
	MaxLines  int
	MaxChars  int
	LineStart int
	LineEnd   int
}

// ReadFileResult carries line-numbered content plus flags. A binary file is
// reported with IsBinary set and no lines; it is not a failure.
type ReadFileResult struct {
	Path       string
	Lines      []string // each entry "N| text"
	TotalLines int
	Truncated  bool
	IsBinary   bool
	Err        string // binary marker note; empty otherwise
}

// Toolset is the evidence-tool boundary. The agent depends on this interface
// so tests can swap in fault-injecting or cached implementations.
type Toolset interface {
	ListFiles(root string) (ListFilesResult, error)
	ReadFile(root, rel string, opts ReadOptions) (ReadFileResult, error)
}

const (
	// DefaultMaxFiles caps a listing to avoid runaway scans.
	DefaultMaxFiles = 5000
	// DefaultMaxLines bounds a full read when the caller sets no limit.
	DefaultMaxLines = 200
	// DefaultMaxChars bounds the raw text consumed from one file.
	DefaultMaxChars = 50_000
)

// DefaultIgnoreDirs are junk directories never traversed by ListFiles.
var DefaultIgnoreDirs = map[string]bool{
	".git":          true,
	".venv":         true,
	"__pycache__":   true,
	"node_modules":  true,
	".pytest_cache": true,
	".mypy_cache":   true,
}

// TextExtensions is the allow-list that determines text readability.
// Anything else is surfaced as a binary marker, never as raw bytes.
var TextExtensions = map[string]bool{
	".py": true, ".pyi": true, ".pyx": true,
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
	".html": true, ".htm": true, ".css": true, ".scss": true, ".sass": true, ".less": true, ".svg": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cc": true, ".cxx": true, ".cs": true,
	".java": true, ".kt": true, ".kts": true, ".scala": true, ".groovy": true,
	".go": true, ".rs": true, ".rb": true, ".php": true, ".swift": true, ".m": true, ".mm": true,
	".r": true, ".jl": true, ".lua": true, ".pl": true, ".pm": true, ".ex": true, ".exs": true,
	".hs": true, ".erl": true, ".clj": true, ".dart": true, ".v": true, ".zig": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true, ".bat": true, ".cmd": true, ".ps1": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true, ".conf": true,
	".xml": true, ".env": true, ".properties": true, ".gradle": true,
	".md": true, ".txt": true, ".rst": true, ".csv": true, ".tsv": true, ".log": true,
	".sql": true,
	".dockerfile": true,
	".graphql": true, ".proto": true, ".tf": true, ".hcl": true,
}

// Local reads from the real filesystem. The zero value is ready to use.
type Local struct {
	// IgnoreDirs overrides DefaultIgnoreDirs when non-nil.
	IgnoreDirs map[string]bool
	// MaxFiles overrides DefaultMaxFiles when positive.
	MaxFiles int
}

var _ Toolset = (*Local)(nil)

// ListFiles walks the repository and returns sorted relative paths, skipping
// junk directories and never traversing above root.
func (l *Local) ListFiles(root string) (ListFilesResult, error) {
	var zero ListFilesResult
	sfs, err := safeio.NewSafeFS(root)
	if err != nil {
		return zero, fmt.Errorf("repo root is not a directory: %s: %w", root, err)
	}
	ignore := l.IgnoreDirs
	if ignore == nil {
		ignore = DefaultIgnoreDirs
	}
	maxFiles := l.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	var files []string
	ignored := 0
	stop := fmt.Errorf("file cap reached")
	err = filepath.WalkDir(sfs.Root(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != sfs.Root() && ignore[d.Name()] {
				ignored++
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(sfs.Root(), p)
		if relErr != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		if len(files) >= maxFiles {
			return stop
		}
		return nil
	})
	if err != nil && err != stop {
		return zero, err
	}
	sort.Strings(files)
	return ListFilesResult{Files: files, IgnoredDirCount: ignored}, nil
}

// ReadFile reads a text file under root and returns 1-indexed line-numbered
// content. Traversal, symlinks and realpath escapes fail with a security
// error; extensions outside the allow-list return a binary marker instead of
// failing.
func (l *Local) ReadFile(root, rel string, opts ReadOptions) (ReadFileResult, error) {
	var zero ReadFileResult
	sfs, err := safeio.NewSafeFS(root)
	if err != nil {
		return zero, err
	}
	norm := filepath.ToSlash(filepath.Clean(rel))

	if _, err := sfs.Resolve(filepath.FromSlash(norm)); err != nil {
		return zero, err
	}
	info, err := sfs.Stat(filepath.FromSlash(norm))
	if err != nil {
		return zero, fmt.Errorf("file not found: %s: %w", norm, err)
	}
	if info.IsDir() {
		return zero, fmt.Errorf("path is a directory: %s", norm)
	}

	ext := strings.ToLower(filepath.Ext(norm))
	if ext != "" && !TextExtensions[ext] {
		return ReadFileResult{
			Path:     norm,
			IsBinary: true,
			Err:      fmt.Sprintf("Unsupported/binary file type: %s", ext),
		}, nil
	}

	b, err := sfs.ReadFile(filepath.FromSlash(norm))
	if err != nil {
		return zero, err
	}
	raw := string(b)

	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	truncated := false
	if len(raw) > maxChars {
		raw = raw[:maxChars]
		truncated = true
	}

	lines := splitLines(raw)
	total := len(lines)

	// Chunk mode keeps absolute line numbers.
	if opts.LineStart > 0 || opts.LineEnd > 0 {
		ls := opts.LineStart
		if ls < 1 {
			ls = 1
		}
		le := opts.LineEnd
		if le == 0 {
			le = total
		}
		if le < ls {
			le = ls
		}
		if ls > total {
			lines = nil
		} else {
			if le > total {
				le = total
			}
			lines = lines[ls-1 : le]
		}
		numbered := make([]string, 0, len(lines))
		for i, line := range lines {
			numbered = append(numbered, fmt.Sprintf("%d| %s", ls+i, line))
		}
		return ReadFileResult{
			Path:       norm,
			Lines:      numbered,
			TotalLines: total,
			Truncated:  truncated,
		}, nil
	}

	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if total > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	numbered := make([]string, 0, len(lines))
	for i, line := range lines {
		numbered = append(numbered, fmt.Sprintf("%d| %s", i+1, line))
	}
	return ReadFileResult{
		Path:       norm,
		Lines:      numbered,
		TotalLines: total,
		Truncated:  truncated,
	}, nil
}

// splitLines mirrors text splitting on \n with \r stripped, dropping the
// phantom element a trailing newline would otherwise produce.
func splitLines(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	return parts
}

// Package cache provides an LRU-cached decorator over the evidence toolset.
// A successful, complete full read is cached by path; any later read of that
// path, full or chunked, is served by re-slicing the cached lines instead of
// touching the filesystem again. Failures, binary markers and truncated
// reads are never cached so retries always hit the real tool.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"repopilot/internal/tools"
)

// Toolset wraps an inner tools.Toolset with an LRU read cache.
type Toolset struct {
	next  tools.Toolset
	reads *lru.Cache[string, tools.ReadFileResult]
}

var _ tools.Toolset = (*Toolset)(nil)

// New builds a cached toolset holding up to size read results.
func New(next tools.Toolset, size int) (*Toolset, error) {
	if size <= 0 {
		size = 128
	}
	reads, err := lru.New[string, tools.ReadFileResult](size)
	if err != nil {
		return nil, err
	}
	return &Toolset{next: next, reads: reads}, nil
}

// ListFiles is passed through uncached; it runs once per plan anyway.
func (c *Toolset) ListFiles(root string) (tools.ListFilesResult, error) {
	return c.next.ListFiles(root)
}

// ReadFile serves the request from a cached complete read of the same path
// when one exists. Only untruncated full reads are stored: they contain the
// whole file, so every narrower request is a pure slice of them.
func (c *Toolset) ReadFile(root, rel string, opts tools.ReadOptions) (tools.ReadFileResult, error) {
	key := root + "\x00" + rel
	if res, ok := c.reads.Get(key); ok {
		if chunked(opts) {
			return sliceChunk(res, opts), nil
		}
		return boundFull(res, opts), nil
	}
	res, err := c.next.ReadFile(root, rel, opts)
	if err != nil {
		return res, err
	}
	if !chunked(opts) && !res.IsBinary && !res.Truncated && res.Err == "" {
		c.reads.Add(key, res)
	}
	return res, nil
}

// Len reports how many read results are cached.
func (c *Toolset) Len() int { return c.reads.Len() }

func chunked(opts tools.ReadOptions) bool {
	return opts.LineStart > 0 || opts.LineEnd > 0
}

// sliceChunk cuts the requested range out of a cached complete read. The
// cached lines are already numbered 1..total, so an index slice reproduces
// the absolute numbering the tool itself would emit.
func sliceChunk(res tools.ReadFileResult, opts tools.ReadOptions) tools.ReadFileResult {
	total := len(res.Lines)
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
	var lines []string
	if ls <= total {
		if le > total {
			le = total
		}
		lines = res.Lines[ls-1 : le]
	}
	return tools.ReadFileResult{
		Path:       res.Path,
		Lines:      lines,
		TotalLines: res.TotalLines,
	}
}

// boundFull re-applies the request's line budget to a cached complete read.
func boundFull(res tools.ReadFileResult, opts tools.ReadOptions) tools.ReadFileResult {
	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = tools.DefaultMaxLines
	}
	if len(res.Lines) <= maxLines {
		return res
	}
	out := res
	out.Lines = res.Lines[:maxLines]
	out.Truncated = true
	return out
}

// Package executor walks the plan, invoking evidence tools with a bounded
// retry/fallback policy and accumulating the two parallel logs: the tool-call
// audit trail and the content evidence store.
package executor

import (
	"io"
	"log"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"repopilot/internal/config"
	"repopilot/internal/planner"
	"repopilot/internal/taskscan"
	"repopilot/internal/tools"
	"repopilot/internal/types"
)

// Executor gathers evidence for one run. Tools is swappable so tests can
// inject faults; Limits bounds retries and budgets.
type Executor struct {
	Tools  tools.Toolset
	Limits config.Limits
	Log    *log.Logger
}

// New builds an executor with the given toolset and limits.
func New(ts tools.Toolset, lim config.Limits, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Executor{Tools: ts, Limits: lim, Log: logger}
}

// Execute walks the plan steps that belong to the executor, appending to the
// state's tool-call and evidence logs. It never fails the run; total
// evidence failure is the analyzer's call.
func (e *Executor) Execute(state *types.RunState) {
	e.Log.Printf("EXECUTOR: executing plan")

	var listed []string
	listSucceeded := false
	globalFailures := 0

	taskFiles := taskscan.Files(state.Task)
	taskLines := taskscan.LineRanges(state.Task)

	for _, step := range state.Plan {
		switch step {
		case planner.StepListFiles:
			listed, listSucceeded = e.listFiles(state)

		case planner.StepReadFiles:
			if listSucceeded && len(listed) == 0 {
				e.Log.Printf("  no file list available, skipping reads")
				continue
			}
			toRead := e.selectFiles(listed, listSucceeded, taskFiles)
			e.Log.Printf("  reading %d file(s)", len(toRead))
			for _, rel := range toRead {
				if globalFailures >= e.Limits.GlobalFailureBudget {
					e.Log.Printf("  global retry budget exhausted (%d)", e.Limits.GlobalFailureBudget)
					break
				}
				rel = filepath.ToSlash(filepath.Clean(rel))
				e.readWithRetries(state, rel, &globalFailures, taskLines)
			}
		}
	}
}

func (e *Executor) listFiles(state *types.RunState) ([]string, bool) {
	res, err := e.Tools.ListFiles(state.RepoPath)
	if err != nil {
		e.Log.Printf("  list_files failed: %v", err)
		state.ToolCalls = append(state.ToolCalls, types.ToolCall{
			Tool:   types.ToolListFiles,
			Err:    err.Error(),
			Status: types.StatusError,
		})
		return nil, false
	}
	state.ToolCalls = append(state.ToolCalls, types.ToolCall{
		Tool:              types.ToolListFiles,
		ReturnedFileCount: len(res.Files),
		IgnoredDirCount:   res.IgnoredDirCount,
		Status:            types.StatusSuccess,
	})
	files := res.Files
	if files == nil {
		files = []string{}
	}
	state.Evidence = append(state.Evidence, types.EvidenceItem{
		Tool:       types.ToolListFiles,
		Files:      files,
		TotalFiles: len(files),
	})
	e.Log.Printf("  found %d files (ignored dirs: %d)", len(res.Files), res.IgnoredDirCount)
	return res.Files, true
}

// selectFiles decides which files to read, always putting task-named files
// first and filling the rest by ranking.
func (e *Executor) selectFiles(listed []string, listSucceeded bool, taskFiles []string) []string {
	if !listSucceeded {
		if len(taskFiles) > 0 {
			return taskFiles
		}
		return []string{"main.py"}
	}

	var taskMentioned []string
	for _, tf := range taskFiles {
		tfNorm := strings.ReplaceAll(tf, `\`, "/")
		for _, lf := range listed {
			lfNorm := strings.ReplaceAll(lf, `\`, "/")
			if strings.HasSuffix(lfNorm, tfNorm) || strings.HasSuffix(tfNorm, lfNorm) {
				if !contains(taskMentioned, lf) {
					taskMentioned = append(taskMentioned, lf)
				}
				break
			}
		}
	}

	var remaining []string
	for _, f := range listed {
		if !contains(taskMentioned, f) {
			remaining = append(remaining, f)
		}
	}
	ranked := RankFiles(remaining, e.Limits.MaxFilesPerRun)

	toRead := append([]string{}, taskMentioned...)
	for _, f := range ranked {
		if !contains(toRead, f) {
			toRead = append(toRead, f)
		}
	}
	if len(toRead) > e.Limits.MaxFilesPerRun {
		toRead = toRead[:e.Limits.MaxFilesPerRun]
	}
	return toRead
}

// readWithRetries reads one file with bounded attempts. The first failure
// flips the file to a chunked read; a single task line range beyond the
// chunk threshold forces centered chunk reads on every attempt.
func (e *Executor) readWithRetries(state *types.RunState, rel string, globalFailures *int, taskLines []taskscan.LineRange) {
	var forced *tools.ReadOptions
	if len(taskLines) == 1 && taskLines[0].Start > e.Limits.ChunkLineThreshold {
		start := taskLines[0].Start - e.Limits.ChunkPadding
		if start < 1 {
			start = 1
		}
		forced = &tools.ReadOptions{
			LineStart: start,
			LineEnd:   taskLines[0].End + e.Limits.ChunkPadding,
		}
	}

	chunkFallback := false
	for attempt := 1; attempt <= e.Limits.FileReadRetries; attempt++ {
		if *globalFailures >= e.Limits.GlobalFailureBudget {
			break
		}

		var opts tools.ReadOptions
		switch {
		case forced != nil:
			opts = *forced
		case chunkFallback:
			opts = tools.ReadOptions{LineStart: 1, LineEnd: tools.DefaultMaxLines}
		default:
			opts = tools.ReadOptions{MaxLines: e.Limits.FullReadMaxLines}
		}

		res, err := e.Tools.ReadFile(state.RepoPath, rel, opts)
		if err == nil {
			state.ToolCalls = append(state.ToolCalls, types.ToolCall{
				Tool:          types.ToolReadFile,
				Path:          rel,
				ReturnedLines: len(res.Lines),
				Truncated:     res.Truncated,
				IsBinary:      res.IsBinary,
				Err:           res.Err,
				Attempt:       attempt,
				Status:        types.StatusSuccess,
			})
			state.Evidence = append(state.Evidence, types.EvidenceItem{
				Tool:       types.ToolReadFile,
				Path:       res.Path,
				Lines:      res.Lines,
				TotalLines: res.TotalLines,
				Truncated:  res.Truncated,
				IsBinary:   res.IsBinary,
				Err:        res.Err,
			})
			if res.IsBinary {
				e.Log.Printf("    read %s [BINARY/UNSUPPORTED]", rel)
			} else {
				e.Log.Printf("    read %s (%d lines, truncated=%v)", rel, len(res.Lines), res.Truncated)
			}
			return
		}

		*globalFailures++
		state.ToolCalls = append(state.ToolCalls, types.ToolCall{
			Tool:    types.ToolReadFile,
			Path:    rel,
			Err:     err.Error(),
			Attempt: attempt,
			Status:  types.StatusError,
		})
		if attempt < e.Limits.FileReadRetries {
			e.Log.Printf("    read failed (%d/%d) for %s: %v", attempt, e.Limits.FileReadRetries, rel, err)
			chunkFallback = true
		} else {
			e.Log.Printf("    skipped %s after %d attempts: %v", rel, e.Limits.FileReadRetries, err)
		}
	}

	// All attempts failed: the file stays in evidence, explicitly marked.
	state.Evidence = append(state.Evidence, types.EvidenceItem{
		Tool: types.ToolReadFile,
		Path: rel,
		Err:  "All read attempts failed",
	})
}

// RankFiles orders candidates by the fixed priority table (README first,
// entry points, config, source dirs, generic code, lock files last) and
// returns at most max entries.
func RankFiles(files []string, max int) []string {
	ranked := append([]string{}, files...)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scoreFile(ranked[i]), scoreFile(ranked[j])
		if si != sj {
			return si < sj
		}
		return ranked[i] < ranked[j]
	})
	if max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	return ranked
}

var entryPoints = map[string]bool{
	"main.py": true, "app.py": true, "server.py": true, "run.py": true,
	"index.js": true, "index.ts": true, "index.tsx": true,
	"app.js": true, "app.ts": true, "app.tsx": true,
	"src/main.py": true, "src/app.py": true,
	"src/index.js": true, "src/index.ts": true, "src/index.tsx": true,
	"src/app.js": true, "src/app.ts": true, "src/app.tsx": true,
}

var configNames = map[string]bool{
	"config.yml": true, "config.yaml": true, "config.json": true,
	"config.toml": true, "config.ini": true,
	"package.json": true, "pyproject.toml": true, "setup.py": true,
	"setup.cfg": true, "cargo.toml": true, "go.mod": true, "gemfile": true,
}

var lockNames = map[string]bool{
	"package-lock.json": true, "yarn.lock": true, "poetry.lock": true,
	"uv.lock": true, "pipfile.lock": true, "composer.lock": true,
	"gemfile.lock": true,
}

var sourceDirs = []string{"utils/", "src/", "app/", "lib/", "api/", "backend/", "frontend/src/"}

var codeExts = []string{
	".py", ".js", ".ts", ".tsx", ".jsx", ".go", ".rs",
	".java", ".rb", ".php", ".c", ".cpp", ".cs",
}

func scoreFile(p string) int {
	lp := strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
	name := path.Base(lp)

	switch name {
	case "readme.md", "readme.txt", "readme", "readme.rst":
		return -1
	}
	if entryPoints[lp] {
		return 0
	}
	if strings.HasSuffix(lp, "/settings.py") || strings.HasSuffix(lp, "/config.py") || configNames[lp] {
		return 1
	}
	if hasAnySuffix(lp, ".yml", ".yaml", ".toml", ".ini", ".cfg") {
		return 2
	}
	for _, d := range sourceDirs {
		if strings.HasPrefix(lp, d) {
			return 3
		}
	}
	if hasAnySuffix(lp, codeExts...) {
		return 4
	}
	if lockNames[name] {
		return 20
	}
	return 10
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

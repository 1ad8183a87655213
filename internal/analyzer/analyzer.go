// Package analyzer inspects gathered evidence and routes the run: call the
// model, skip it with a prebuilt answer, or terminate with an error payload.
package analyzer

import (
	"fmt"
	"io"
	"log"
	"strings"

	"repopilot/internal/taskscan"
	"repopilot/internal/types"
)

// Analyzer decides the route for one run.
type Analyzer struct {
	Log *log.Logger
}

func New(logger *log.Logger) *Analyzer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Analyzer{Log: logger}
}

// Analyze sets state.Route and, for skip and error routes, the final Output.
// The checks run in strict priority order, the first match wins.
func (a *Analyzer) Analyze(state *types.RunState) {
	state.Route = a.route(state)
	a.Log.Printf("ANALYZER: route=%s", state.Route)
}

func (a *Analyzer) route(state *types.RunState) types.Route {
	// 1. Total tool failure terminates the run.
	if allToolsFailed(state) {
		state.Output = map[string]any{
			"error":          "Agent failed: all tool operations failed.",
			types.KeySummary: "Cannot analyze: all tool operations failed.",
		}
		return types.RouteError
	}

	// 2. Tasks pointing outside the repository are refused without a model
	// call, with a clear explanation of the boundary.
	if taskscan.IsSystemPath(state.Task) {
		state.Output = types.FallbackOutput(
			"Cannot analyze: the requested path appears to be outside repository boundaries. "+
				"This is a path traversal security issue. Only files within the repository can be analyzed.",
			types.ConfidenceHigh)
		return types.RouteSkipModel
	}

	listed := state.ListedFiles()

	// 3. Nothing to analyze in an empty repository.
	if len(listed) == 0 {
		state.Output = types.FallbackOutput(
			"Repository is empty, no files to analyze.",
			types.ConfidenceHigh)
		return types.RouteSkipModel
	}

	// 4. A task aimed at a binary file gets a definitive answer, not a
	// model hallucination over bytes it never saw.
	for _, bf := range state.BinaryFiles() {
		if taskscan.TargetsFile(state.Task, bf) {
			state.Output = types.FallbackOutput(
				bf+" is a binary file and cannot analyze its contents as text. "+
					"Binary files require specialized tools for inspection.",
				types.ConfidenceHigh)
			return types.RouteSkipModel
		}
	}

	// 5. Listing worked but no file produced readable content.
	if !anyReadableEvidence(state) {
		failed := strings.Join(state.ErrorFiles(), ", ")
		if failed == "" {
			failed = "all files"
		}
		state.Output = types.FallbackOutput(
			fmt.Sprintf("Cannot analyze: all file reads failed (%s).", failed),
			types.ConfidenceLow)
		return types.RouteSkipModel
	}

	// 6. Model call. Context notes tell the summarizer what it cannot see.
	state.ContextNotes = buildContextNotes(state, listed)
	return types.RouteCallModel
}

// allToolsFailed reports whether every tool call errored. No tool calls at
// all counts as total failure.
func allToolsFailed(state *types.RunState) bool {
	if len(state.ToolCalls) == 0 {
		return true
	}
	for _, tc := range state.ToolCalls {
		if tc.Status != types.StatusError {
			return false
		}
	}
	return true
}

// anyReadableEvidence reports whether at least one read produced actual
// text lines.
func anyReadableEvidence(state *types.RunState) bool {
	for _, item := range state.Evidence {
		if item.Tool == types.ToolReadFile && !item.IsBinary && item.Err == "" && len(item.Lines) > 0 {
			return true
		}
	}
	return false
}

// buildContextNotes flags missing, binary, and unreadable files so the
// summarizer does not invent content for them.
func buildContextNotes(state *types.RunState, listed []string) []string {
	var notes []string
	if missing := taskscan.MissingFile(state.Task, listed); missing != "" {
		notes = append(notes, fmt.Sprintf(
			"MISSING FILE: %s not found. %s is not available for analysis.", missing, missing))
	}
	for _, item := range state.Evidence {
		if item.Tool != types.ToolReadFile {
			continue
		}
		switch {
		case item.IsBinary:
			notes = append(notes, fmt.Sprintf("NOTE: %s is a binary file", item.Path))
		case item.Err != "":
			notes = append(notes, fmt.Sprintf("NOTE: %s could not be read (%s)", item.Path, item.Err))
		}
	}
	return notes
}

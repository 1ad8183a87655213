// Package agent wires the nodes into the run graph: plan, execute, analyze,
// then either summarize/verify with a bounded retry back-edge, or one of the
// two terminal shortcuts (finalize, handleError).
package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"repopilot/internal/analyzer"
	"repopilot/internal/config"
	"repopilot/internal/executor"
	"repopilot/internal/llm"
	"repopilot/internal/planner"
	"repopilot/internal/summarizer"
	"repopilot/internal/tools"
	"repopilot/internal/types"
	"repopilot/internal/verifier"
)

// Validation errors containing any of these never trigger a retry: another
// model attempt cannot change what is on disk.
var nonRetryableKeywords = []string{"binary", "symlink", "path traversal", "outside repository"}

// Agent runs the full analysis graph. Verifier is exported so evaluation
// harnesses can attach rules and content assertions before a run.
type Agent struct {
	Client   llm.Client
	Tools    tools.Toolset
	Limits   config.Limits
	Verifier *verifier.Verifier
	Log      *log.Logger
}

// New assembles an agent around a model client and toolset.
func New(client llm.Client, ts tools.Toolset, lim config.Limits, logger *log.Logger) *Agent {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Agent{
		Client:   client,
		Tools:    ts,
		Limits:   lim,
		Verifier: verifier.New(logger),
		Log:      logger,
	}
}

// Run executes one task against one repository and returns the final state.
// Every terminal path leaves Output and all four validation fields set; the
// only error return is failing to enter the repository directory.
func (a *Agent) Run(ctx context.Context, task, repoPath string) (*types.RunState, error) {
	// Absolute root first: tool calls resolve against it after the chdir.
	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repository path: %w", err)
	}
	restore, err := pushd(absRepo)
	if err != nil {
		return nil, err
	}
	defer restore()

	a.Log.Printf("AGENT: started")

	state := types.NewRunState(task, absRepo)
	if a.Limits.MaxModelAttempts > 0 {
		state.MaxAttempts = a.Limits.MaxModelAttempts
	}

	state.Plan = planner.Plan(task)
	a.Log.Printf("PLANNER: %d step(s)", len(state.Plan))
	for _, step := range state.Plan {
		a.Log.Printf(" - %s", step)
	}

	executor.New(a.Tools, a.Limits, a.Log).Execute(state)
	analyzer.New(a.Log).Analyze(state)

	switch state.Route {
	case types.RouteError:
		a.handleError(state)
	case types.RouteSkipModel:
		a.finalize(state)
	default:
		a.summarizeLoop(ctx, state)
	}

	a.Log.Printf("AGENT: finished")
	return state, nil
}

// summarizeLoop is the one back-edge in the graph: summarize, verify, and
// retry with feedback while the attempt budget and error kinds allow.
func (a *Agent) summarizeLoop(ctx context.Context, state *types.RunState) {
	summ := summarizer.New(a.Client, a.Limits, a.Log)

	for {
		state.Attempts++
		a.Log.Printf(" - %s (attempt %d/%d)", planner.StepSummarize, state.Attempts, state.MaxAttempts)

		state.Output = summ.Summarize(ctx, state)
		a.Log.Printf(" - %s", planner.StepVerify)
		a.Verifier.Verify(state)

		if !shouldRetry(state) || ctx.Err() != nil {
			return
		}

		a.Log.Printf("--- RETRY: validation failed, re-prompting model (attempt %d/%d) ---",
			state.Attempts+1, state.MaxAttempts)
		state.SchemaValid = false
		state.CitationsValid = false
		state.SchemaErrors = nil
		state.CitationErrors = nil
	}
}

// finalize runs verification over a prebuilt output so skip paths report
// the same validation fields as model paths.
func (a *Agent) finalize(state *types.RunState) {
	a.Log.Printf(" - %s", planner.StepSummarize)
	a.Log.Printf(" - %s", planner.StepVerify)
	a.Verifier.Verify(state)
}

// handleError marks the run failed without verification; there is no
// evidence left to validate against.
func (a *Agent) handleError(state *types.RunState) {
	a.Log.Printf(" - Handle error (all tools failed)")
	state.SchemaValid = false
	state.SchemaErrors = []string{"Agent failed: all tool operations failed"}
	state.CitationsValid = false
	state.CitationErrors = []string{"No valid tool results; cannot validate citations"}
	a.Log.Printf("VERIFIER: skipped (all tools failed)")
}

func shouldRetry(state *types.RunState) bool {
	if state.SchemaValid && state.CitationsValid {
		return false
	}
	if state.Attempts >= state.MaxAttempts {
		return false
	}
	for _, err := range append(append([]string{}, state.SchemaErrors...), state.CitationErrors...) {
		lower := strings.ToLower(err)
		for _, kw := range nonRetryableKeywords {
			if strings.Contains(lower, kw) {
				return false
			}
		}
	}
	return true
}

// pushd enters the repository directory and returns the restore func.
// Tools resolve against the explicit root, but tasks that mention relative
// paths still expect the repository as the working directory.
func pushd(dir string) (func(), error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("enter repository: %w", err)
	}
	return func() {
		if err := os.Chdir(prev); err != nil {
			log.Printf("restore working directory: %v", err)
		}
	}, nil
}

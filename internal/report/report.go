// Package report renders a finished run for humans and machines.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"repopilot/internal/types"
	"repopilot/internal/util/jsonutil"
)

// Result is the stable output shape of one run.
type Result struct {
	Task       string         `json:"task"`
	Repo       string         `json:"repo"`
	Output     map[string]any `json:"output"`
	Validation Validation     `json:"validation"`
	Meta       Meta           `json:"meta"`
}

type Validation struct {
	SchemaValid    bool     `json:"schema_valid"`
	CitationsValid bool     `json:"citations_valid"`
	SchemaErrors   []string `json:"schema_errors"`
	CitationErrors []string `json:"citation_errors"`
}

type Meta struct {
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ModelAttempts  int     `json:"llm_attempts"`
}

// FromState snapshots a run state into a result.
func FromState(state *types.RunState, elapsed time.Duration) Result {
	return Result{
		Task:   state.Task,
		Repo:   state.RepoPath,
		Output: state.Output,
		Validation: Validation{
			SchemaValid:    state.SchemaValid,
			CitationsValid: state.CitationsValid,
			SchemaErrors:   orEmpty(state.SchemaErrors),
			CitationErrors: orEmpty(state.CitationErrors),
		},
		Meta: Meta{
			ElapsedSeconds: elapsed.Seconds(),
			ModelAttempts:  state.Attempts,
		},
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// JSON renders the result as indented JSON without HTML escaping, so file
// paths and code fragments survive round trips.
func (r Result) JSON() ([]byte, error) {
	return jsonutil.MarshalNoEscapeIndent(r, "", "  ")
}

var confidenceMarks = map[string]string{
	types.ConfidenceHigh:   "●",
	types.ConfidenceMedium: "◐",
	types.ConfidenceLow:    "○",
}

// Render writes the human-readable report.
func Render(w io.Writer, r Result) {
	banner := strings.Repeat("=", 60)
	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, "REPOPILOT ANALYSIS")
	fmt.Fprintf(w, "repo: %s\n", r.Repo)
	fmt.Fprintf(w, "task: %s\n", r.Task)
	fmt.Fprintln(w, banner)

	summary, _ := r.Output[types.KeySummary].(string)
	fmt.Fprintln(w, "\nSUMMARY")
	fmt.Fprintf(w, "  %s\n", summary)

	confidence, _ := r.Output[types.KeyConfidence].(string)
	if mark, ok := confidenceMarks[confidence]; ok {
		fmt.Fprintf(w, "\nCONFIDENCE  %s %s\n", mark, confidence)
	}

	if hra, ok := r.Output[types.KeyHighRiskAreas].([]any); ok && len(hra) > 0 {
		fmt.Fprintln(w, "\nHIGH RISK AREAS")
		for _, entry := range hra {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			desc, _ := item[types.KeyDescription].(string)
			fmt.Fprintf(w, "  %s\n", Locator(item))
			fmt.Fprintf(w, "      %s\n", desc)
		}
	}

	fmt.Fprintln(w, "\nVALIDATION")
	fmt.Fprintf(w, "  schema:    %s\n", passFail(r.Validation.SchemaValid))
	for _, e := range r.Validation.SchemaErrors {
		fmt.Fprintf(w, "      - %s\n", e)
	}
	fmt.Fprintf(w, "  citations: %s\n", passFail(r.Validation.CitationsValid))
	for _, e := range r.Validation.CitationErrors {
		fmt.Fprintf(w, "      - %s\n", e)
	}

	fmt.Fprintf(w, "\ncompleted in %.2fs (%d model attempt(s))\n",
		r.Meta.ElapsedSeconds, r.Meta.ModelAttempts)
}

// Locator formats a citation as file:line or file:start-end.
func Locator(item map[string]any) string {
	fp, _ := item[types.KeyFilePath].(string)
	ls := intOf(item[types.KeyLineStart])
	le := intOf(item[types.KeyLineEnd])
	if ls == le {
		return fmt.Sprintf("%s:%d", fp, ls)
	}
	return fmt.Sprintf("%s:%d-%d", fp, ls, le)
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

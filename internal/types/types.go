// Package types holds the shared data model threaded through the agent run.
package types

// Tool names recorded in evidence and tool-call logs.
const (
	ToolListFiles = "list_files"
	ToolReadFile  = "read_file"
)

// Tool-call statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Confidence levels the output schema accepts.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Output keys of the canonical report.
const (
	KeySummary       = "summary"
	KeyHighRiskAreas = "high_risk_areas"
	KeyConfidence    = "confidence"
)

// Citation keys of a high-risk-area entry.
const (
	KeyFilePath    = "file_path"
	KeyLineStart   = "line_start"
	KeyLineEnd     = "line_end"
	KeyDescription = "description"
)

// Route is the analyzer's decision on how the run proceeds after evidence
// collection.
type Route int

const (
	// RouteCallModel sends the evidence to the model for summarization.
	RouteCallModel Route = iota
	// RouteSkipModel finishes with a prebuilt output; the model is never called.
	RouteSkipModel
	// RouteError terminates the run with a fixed error payload.
	RouteError
)

func (r Route) String() string {
	switch r {
	case RouteSkipModel:
		return "skip_llm"
	case RouteError:
		return "error"
	default:
		return "call_llm"
	}
}

// ToolCall records one tool invocation attempt, including failed ones.
// Distinct from EvidenceItem: this is the attempt log, evidence stores only
// materialized results.
type ToolCall struct {
	Tool              string `json:"tool"`
	Path              string `json:"path,omitempty"`
	ReturnedFileCount int    `json:"returned_file_count,omitempty"`
	IgnoredDirCount   int    `json:"ignored_dir_count,omitempty"`
	ReturnedLines     int    `json:"returned_lines,omitempty"`
	Truncated         bool   `json:"truncated,omitempty"`
	IsBinary          bool   `json:"is_binary,omitempty"`
	Err               string `json:"error,omitempty"`
	Attempt           int    `json:"attempt,omitempty"`
	Status            string `json:"result_status"`
}

// EvidenceItem is the materialized result of one tool invocation. For
// list_files, Files holds sorted relative paths. For read_file, Lines holds
// 1-indexed entries in the form "N| text".
type EvidenceItem struct {
	Tool       string   `json:"tool"`
	Path       string   `json:"path,omitempty"`
	Files      []string `json:"files,omitempty"`
	TotalFiles int      `json:"total_files,omitempty"`
	Lines      []string `json:"lines,omitempty"`
	TotalLines int      `json:"total_lines,omitempty"`
	Truncated  bool     `json:"truncated,omitempty"`
	IsBinary   bool     `json:"is_binary,omitempty"`
	Err        string   `json:"error,omitempty"`
}

// RunState is the single mutable record threaded through the state machine.
// The orchestrator owns it; each node mutates its own slice and hands it on.
// Evidence and ToolCalls are append-only within a run; Output and the
// validation fields are replaced wholesale on each summarize/verify cycle.
type RunState struct {
	Task     string `json:"task"`
	RepoPath string `json:"repo_path"`

	// Planner
	Plan []string `json:"plan"`

	// Executor
	ToolCalls []ToolCall     `json:"tool_calls"`
	Evidence  []EvidenceItem `json:"retrieved_files"`

	// Analyzer
	Route        Route    `json:"-"`
	ContextNotes []string `json:"-"`

	// Summarizer. Kept as a generic map so the verifier can check the exact
	// key set and reject extras; model output is never trusted into a struct.
	Output map[string]any `json:"output"`

	// Verifier
	SchemaValid    bool     `json:"schema_valid"`
	CitationsValid bool     `json:"citations_valid"`
	SchemaErrors   []string `json:"schema_errors"`
	CitationErrors []string `json:"citation_errors"`

	// Retry loop
	Attempts     int    `json:"llm_attempts"`
	MaxAttempts  int    `json:"max_llm_attempts"`
	LastFeedback string `json:"-"`
}

// NewRunState seeds a run with the default retry budget.
func NewRunState(task, repoPath string) *RunState {
	return &RunState{
		Task:        task,
		RepoPath:    repoPath,
		MaxAttempts: 2,
	}
}

// ListedFiles returns the file list from the first list_files evidence item,
// or nil when none succeeded.
func (s *RunState) ListedFiles() []string {
	for _, item := range s.Evidence {
		if item.Tool == ToolListFiles && item.Files != nil {
			return item.Files
		}
	}
	return nil
}

// BinaryFiles returns paths of reads that were flagged binary.
func (s *RunState) BinaryFiles() []string {
	var out []string
	for _, item := range s.Evidence {
		if item.Tool == ToolReadFile && item.IsBinary {
			out = append(out, item.Path)
		}
	}
	return out
}

// ErrorFiles returns paths of reads that failed with a non-binary error.
func (s *RunState) ErrorFiles() []string {
	var out []string
	for _, item := range s.Evidence {
		if item.Tool == ToolReadFile && item.Err != "" && !item.IsBinary {
			out = append(out, item.Path)
		}
	}
	return out
}

// FallbackOutput builds a schema-compliant output with no citations.
func FallbackOutput(summary, confidence string) map[string]any {
	return map[string]any{
		KeySummary:       summary,
		KeyHighRiskAreas: []any{},
		KeyConfidence:    confidence,
	}
}

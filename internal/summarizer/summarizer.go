// Package summarizer turns gathered evidence into the structured report by
// prompting the model and coercing whatever comes back into the canonical
// schema shape.
package summarizer

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"repopilot/internal/config"
	"repopilot/internal/llm"
	"repopilot/internal/types"
	"repopilot/internal/util/jsonutil"
)

// Summarizer drives one model call per attempt. The client is already
// wrapped with retry and logging middleware by the caller.
type Summarizer struct {
	Client llm.Client
	Limits config.Limits
	Log    *log.Logger
}

func New(client llm.Client, lim config.Limits, logger *log.Logger) *Summarizer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Summarizer{Client: client, Limits: lim, Log: logger}
}

// Summarize produces a schema-shaped output map. It never returns an error:
// model and parse failures degrade to a low-confidence fallback so the run
// always ends with a well-formed report.
func (s *Summarizer) Summarize(ctx context.Context, state *types.RunState) map[string]any {
	evidence := EvidenceBlob(state.Evidence, s.Limits.EvidenceCharBudget)
	if strings.TrimSpace(evidence) == "" {
		return types.FallbackOutput("No readable evidence found.", types.ConfidenceLow)
	}

	prompt := buildPrompt(state.Task, evidence, state.ContextNotes, state.LastFeedback)

	raw, err := s.Client.Complete(ctx, prompt)
	if err != nil {
		s.Log.Printf("SUMMARIZER: model call failed: %v", err)
		return parseFailureOutput()
	}

	var parsed any
	if err := jsonutil.UnmarshalLoose(raw, &parsed); err != nil {
		snippet := raw
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		s.Log.Printf("SUMMARIZER: unparseable response: %q", snippet)
		return parseFailureOutput()
	}
	return CleanToSchema(parsed)
}

func parseFailureOutput() map[string]any {
	return types.FallbackOutput(
		"Cannot analyze reliably due to JSON parsing failure.",
		types.ConfidenceLow)
}

// EvidenceBlob concatenates readable file excerpts under FILE: headers,
// capped at budget characters with an explicit truncation marker.
func EvidenceBlob(evidence []types.EvidenceItem, budget int) string {
	var parts []string
	for _, item := range evidence {
		if item.Tool != types.ToolReadFile || item.IsBinary || item.Err != "" {
			continue
		}
		if len(item.Lines) == 0 {
			continue
		}
		parts = append(parts, "FILE: "+item.Path+"\n"+strings.Join(item.Lines, "\n"))
	}
	blob := strings.Join(parts, "\n\n")
	if budget > 0 && len(blob) > budget {
		blob = blob[:budget] + "\n\n[TRUNCATED]"
	}
	return blob
}

func buildPrompt(task, evidence string, contextNotes []string, retryFeedback string) string {
	var notesSection string
	if len(contextNotes) > 0 {
		var b strings.Builder
		b.WriteString("\n\nCONTEXT NOTES:\n")
		for i, n := range contextNotes {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- " + n)
		}
		notesSection = b.String()
	}

	var retrySection string
	if retryFeedback != "" {
		retrySection = fmt.Sprintf(
			"\n\nPREVIOUS ATTEMPT FAILED VALIDATION:\n%s\nFix these issues. Ensure strict schema compliance.\n",
			retryFeedback)
	}

	return strings.TrimSpace(fmt.Sprintf(summaryPromptTmpl, task, notesSection, evidence, retrySection))
}

// The prompt schema block and rules are load-bearing: the verifier rejects
// any deviation from them, so keep them in sync with internal/verifier.
const summaryPromptTmpl = `You are a code analysis agent. Output JSON only. No markdown. No code fences. No extra text.

TASK:
%s
%s
EVIDENCE (line-numbered excerpts from actual files):
%s

RESPOND with JSON matching EXACTLY this schema:
{
  "summary": "string describing findings",
  "high_risk_areas": [
    {
      "file_path": "exact filename from FILE: header",
      "line_start": integer,
      "line_end": integer,
      "description": "what this code does"
    }
  ],
  "confidence": "low" or "medium" or "high"
}

INSTRUCTIONS:
1. KEEP THE SUMMARY CONCISE. Answer the user's question directly in 1-3 sentences. Do not describe what files you read or which files are missing unless the task specifically asks about those files.
2. WHEN TO CITE: If the task mentions a specific filename (e.g. "in utils/math.py", "cite X.py", "Analyze 文件.py", "config (prod).yaml"), you MUST cite at least one line from that file. Always cite code that is relevant to what the task asks about.
3. file_path must EXACTLY match a FILE: header (including unicode, spaces, special chars like parentheses).
4. line_start and line_end must be actual line numbers visible in the evidence (the numbers before the | character).
5. Each high_risk_areas item must have EXACTLY 4 fields: file_path, line_start, line_end, description.
6. WHEN NOT TO CITE: Only return an empty high_risk_areas [] when ALL of these are true: (a) the task is a generic scan WITHOUT naming specific files (e.g. "Scan the repository for SQL injection"), AND (b) none of the evidence files contain the requested topic. In this case, say "No database code found, no SQL injection vulnerabilities identified." and set confidence to "high" (you are certain it's absent). If the task names ANY file, always cite it per rule 1.
7. When CONTEXT NOTES mention a MISSING FILE that the TASK specifically asks about, include the EXACT filename followed by "not found" in the summary, AND separately say "not available". Example: if context says "missing_logger.py not found" and the task asks about that file, your summary must contain "missing_logger.py not found" and also "not available" as substrings. Do NOT mention missing files that the task did not ask about.
8. CRITICAL ANTI-HALLUCINATION: When the task CLAIMS something exists (e.g. "the circular dependency where X imports Y"), you MUST check the actual evidence line by line:
   - For "circular dependency" or "circular import": check if BOTH files import each other. If file A imports file B but file B does NOT import file A, there is NO circular dependency.
   - Look at actual import statements in the evidence. A function definition is NOT an import.
   - If the claim is FALSE, your summary MUST include BOTH phrases: "No circular dependency" AND "no circular import" (e.g. "No circular dependency found. No circular import exists between these files.").
   - Do NOT cite evidence that doesn't support the claim. Do NOT agree with a false claim.
9. When the task asks to cite from MULTIPLE specific files, provide EXACTLY one citation per file mentioned in the task. If the task names 5 files, return 5 citations (one per file). If a file was not found, still include a note about it in the summary.
10. Do NOT add extra fields to the JSON. Only summary, high_risk_areas, confidence.
%s`

// CleanToSchema coerces a parsed model response into the canonical shape.
// Malformed top-level fields degrade to safe defaults; malformed citation
// entries are dropped rather than repaired.
func CleanToSchema(output any) map[string]any {
	m, ok := output.(map[string]any)
	if !ok {
		return types.FallbackOutput("Invalid output type", types.ConfidenceLow)
	}

	summary, ok := m[types.KeySummary].(string)
	if !ok {
		summary = "Cannot analyze reliably."
	}
	confidence, _ := m[types.KeyConfidence].(string)
	switch confidence {
	case types.ConfidenceLow, types.ConfidenceMedium, types.ConfidenceHigh:
	default:
		confidence = types.ConfidenceLow
	}

	hra, _ := m[types.KeyHighRiskAreas].([]any)
	cleaned := make([]any, 0, len(hra))
	for _, entry := range hra {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		fp, ok := item[types.KeyFilePath].(string)
		if !ok || strings.TrimSpace(fp) == "" {
			continue
		}
		desc, ok := item[types.KeyDescription].(string)
		if !ok || strings.TrimSpace(desc) == "" {
			continue
		}
		ls, ok := asInt(item[types.KeyLineStart])
		if !ok {
			continue
		}
		le, ok := asInt(item[types.KeyLineEnd])
		if !ok {
			continue
		}
		cleaned = append(cleaned, map[string]any{
			types.KeyFilePath:    strings.TrimSpace(fp),
			types.KeyLineStart:   ls,
			types.KeyLineEnd:     le,
			types.KeyDescription: strings.TrimSpace(desc),
		})
	}

	return map[string]any{
		types.KeySummary:       strings.TrimSpace(summary),
		types.KeyHighRiskAreas: cleaned,
		types.KeyConfidence:    confidence,
	}
}

// asInt accepts native ints and the integral float64 values encoding/json
// produces for JSON numbers.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// Package verifier checks the report against the strict output schema and
// validates every citation against the collected evidence. Validation is
// what makes the retry loop meaningful: its error strings feed the next
// summarization attempt verbatim.
package verifier

import (
	"fmt"
	"io"
	"log"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"repopilot/internal/taskscan"
	"repopilot/internal/types"
)

var linePrefixRe = regexp.MustCompile(`^\s*(\d+)\|\s*(.*)$`)

// securityKeywords in a read error invalidate citations regardless of what
// the schema checks say.
var securityKeywords = []string{"symlink", "path traversal", "escapes repo", "symlink not allowed"}

// Rules tightens citation validation beyond the default range checks.
type Rules struct {
	// RejectNonPositiveLines fails citations whose bounds are zero or
	// negative instead of merely reporting the lines as missing.
	RejectNonPositiveLines bool
}

// ContentAssertion pins a line that a citation covering it must not match.
// Used by content-aware evaluation runs.
type ContentAssertion struct {
	File           string
	Line           int
	MustNotContain string
}

// Verifier validates one run's output in place.
type Verifier struct {
	Rules      Rules
	Assertions []ContentAssertion
	Log        *log.Logger
}

func New(logger *log.Logger) *Verifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Verifier{Log: logger}
}

// Verify runs schema and citation validation, applies the security override
// rules, and sets the retry feedback on the state.
func (v *Verifier) Verify(state *types.RunState) {
	v.Log.Printf("VERIFIER: checking rules")

	state.SchemaValid, state.SchemaErrors = ValidateSchema(state.Output)
	state.CitationsValid, state.CitationErrors = ValidateCitations(
		state.Output, state.Evidence, v.Rules, v.Assertions)

	// Security findings only ever flip valid to invalid.
	v.applySecurityOverrides(state)

	if !state.SchemaValid || !state.CitationsValid {
		var parts []string
		if !state.SchemaValid {
			parts = append(parts, "SCHEMA ERRORS: "+strings.Join(state.SchemaErrors, "; "))
		}
		if !state.CitationsValid {
			parts = append(parts, "CITATION ERRORS: "+strings.Join(state.CitationErrors, "; "))
		}
		state.LastFeedback = strings.Join(parts, "\n")
	} else {
		state.LastFeedback = ""
	}

	if state.SchemaValid {
		v.Log.Printf("   ok: output matches schema")
	} else {
		v.Log.Printf("   fail: schema validation: %v", state.SchemaErrors)
	}
	if state.CitationsValid {
		v.Log.Printf("   ok: citations reference read files and valid line ranges")
	} else {
		v.Log.Printf("   fail: citation validation: %v", state.CitationErrors)
	}
}

func (v *Verifier) applySecurityOverrides(state *types.RunState) {
	invalidate := func(msg string) {
		if state.CitationsValid {
			state.CitationsValid = false
			state.CitationErrors = append(state.CitationErrors, msg)
		}
	}

	for _, tc := range state.ToolCalls {
		if tc.Tool == types.ToolReadFile && hasSecurityKeyword(tc.Err) {
			invalidate(fmt.Sprintf("Security error for '%s': %s", orUnknown(tc.Path), tc.Err))
		}
	}
	for _, item := range state.Evidence {
		if item.Tool == types.ToolReadFile && hasSecurityKeyword(item.Err) {
			invalidate(fmt.Sprintf("Security error for '%s': %s", orUnknown(item.Path), item.Err))
		}
	}

	if taskscan.IsSystemPath(state.Task) {
		invalidate("Task references paths outside repository; citations cannot be validated.")
	}

	taskLower := strings.ToLower(state.Task)
	for _, item := range state.Evidence {
		if item.Tool != types.ToolReadFile || !item.IsBinary {
			continue
		}
		bfLower := strings.ToLower(item.Path)
		if strings.Contains(taskLower, bfLower) || strings.Contains(taskLower, path.Base(bfLower)) {
			invalidate(fmt.Sprintf("Task targets binary file '%s'; citations cannot be validated.", item.Path))
		}
	}
}

func hasSecurityKeyword(err string) bool {
	lower := strings.ToLower(err)
	for _, kw := range securityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

var requiredKeys = []string{types.KeyConfidence, types.KeyHighRiskAreas, types.KeySummary}

var citationKeys = []string{types.KeyDescription, types.KeyFilePath, types.KeyLineEnd, types.KeyLineStart}

// ValidateSchema checks the output against the exact report schema: the
// three top-level keys and nothing else, each citation carrying exactly four
// primitive fields. All violations are collected, not just the first.
func ValidateSchema(output any) (bool, []string) {
	var errs []string

	m, ok := output.(map[string]any)
	if !ok {
		return false, []string{fmt.Sprintf("Output must be object, got %s", typeName(output))}
	}

	if extra, missing := keyDiff(m, requiredKeys); len(extra) > 0 || len(missing) > 0 {
		if len(extra) > 0 {
			errs = append(errs, fmt.Sprintf("Extra fields not allowed: %v", extra))
		}
		if len(missing) > 0 {
			errs = append(errs, fmt.Sprintf("Missing required fields: %v", missing))
		}
		return false, errs
	}

	if _, ok := m[types.KeySummary].(string); !ok {
		return false, []string{fmt.Sprintf("summary must be string, got %s", typeName(m[types.KeySummary]))}
	}

	switch m[types.KeyConfidence] {
	case types.ConfidenceLow, types.ConfidenceMedium, types.ConfidenceHigh:
	default:
		return false, []string{fmt.Sprintf(
			"confidence must be 'low', 'medium', or 'high', got %v", quoted(m[types.KeyConfidence]))}
	}

	hra, ok := m[types.KeyHighRiskAreas].([]any)
	if !ok {
		return false, []string{fmt.Sprintf(
			"high_risk_areas must be list, got %s", typeName(m[types.KeyHighRiskAreas]))}
	}

	for i, entry := range hra {
		item, ok := entry.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("high_risk_areas[%d] must be object, got %s", i, typeName(entry)))
			continue
		}

		if extra, missing := keyDiff(item, citationKeys); len(extra) > 0 || len(missing) > 0 {
			if len(extra) > 0 {
				errs = append(errs, fmt.Sprintf("high_risk_areas[%d] has extra fields: %v", i, extra))
			}
			if len(missing) > 0 {
				errs = append(errs, fmt.Sprintf("high_risk_areas[%d] missing fields: %v", i, missing))
			}
			continue
		}

		if _, ok := item[types.KeyFilePath].(string); !ok {
			errs = append(errs, fmt.Sprintf(
				"high_risk_areas[%d].file_path must be string, got %s", i, typeName(item[types.KeyFilePath])))
		}
		if _, ok := asInt(item[types.KeyLineStart]); !ok {
			errs = append(errs, fmt.Sprintf(
				"high_risk_areas[%d].line_start must be int, got %s", i, typeName(item[types.KeyLineStart])))
		}
		if _, ok := asInt(item[types.KeyLineEnd]); !ok {
			errs = append(errs, fmt.Sprintf(
				"high_risk_areas[%d].line_end must be int, got %s", i, typeName(item[types.KeyLineEnd])))
		}
		if _, ok := item[types.KeyDescription].(string); !ok {
			errs = append(errs, fmt.Sprintf(
				"high_risk_areas[%d].description must be string, got %s", i, typeName(item[types.KeyDescription])))
		}

		for _, key := range citationKeys {
			switch item[key].(type) {
			case []any, map[string]any:
				errs = append(errs, fmt.Sprintf(
					"high_risk_areas[%d].%s contains nested structure (%s), only primitives allowed",
					i, key, typeName(item[key])))
			}
		}
	}

	return len(errs) == 0, errs
}

// ValidateCitations checks every citation against the evidence: the file
// must have been read, and every line in the cited range must actually be
// present. An empty citation list is trivially valid.
func ValidateCitations(output any, evidence []types.EvidenceItem, rules Rules, assertions []ContentAssertion) (bool, []string) {
	var errs []string

	m, ok := output.(map[string]any)
	if !ok {
		return false, []string{"Output is not an object, cannot validate citations"}
	}

	hra, _ := m[types.KeyHighRiskAreas].([]any)
	if len(hra) == 0 {
		return true, nil
	}

	evidenceMap := buildEvidenceMap(evidence)

	type citationKey struct {
		file  string
		start int
		end   int
	}
	seen := make(map[citationKey]bool)

	for i, entry := range hra {
		item, ok := entry.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("Citation %d is not an object", i))
			continue
		}

		filePath, ok := item[types.KeyFilePath].(string)
		if !ok {
			errs = append(errs, fmt.Sprintf("Citation %d: file_path is not a string", i))
			continue
		}
		lineStart, ok := asInt(item[types.KeyLineStart])
		if !ok {
			errs = append(errs, fmt.Sprintf("Citation %d: line_start is not an int", i))
			continue
		}
		lineEnd, ok := asInt(item[types.KeyLineEnd])
		if !ok {
			errs = append(errs, fmt.Sprintf("Citation %d: line_end is not an int", i))
			continue
		}

		if rules.RejectNonPositiveLines && (lineStart < 1 || lineEnd < 1) {
			errs = append(errs, fmt.Sprintf(
				"Citation %d: invalid line number (line_start=%d, line_end=%d); negative or zero line numbers rejected",
				i, lineStart, lineEnd))
			continue
		}

		key := citationKey{filePath, lineStart, lineEnd}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("Duplicate citation: %s lines %d-%d", filePath, lineStart, lineEnd))
			continue
		}
		seen[key] = true

		if lineStart > lineEnd {
			errs = append(errs, fmt.Sprintf("Citation %d: line_start (%d) > line_end (%d)", i, lineStart, lineEnd))
			continue
		}

		available, ok := evidenceMap[filePath]
		if !ok {
			errs = append(errs, fmt.Sprintf("Citation %d: file '%s' not found in retrieved evidence", i, filePath))
			continue
		}
		if len(available) == 0 {
			errs = append(errs, fmt.Sprintf("Citation %d: file '%s' has no readable lines in evidence", i, filePath))
			continue
		}

		minLine, maxLine := lineBounds(available)
		for n := lineStart; n <= lineEnd; n++ {
			if _, ok := available[n]; !ok {
				errs = append(errs, fmt.Sprintf(
					"Citation %d: line %d in '%s' not found in evidence (evidence has lines %d-%d)",
					i, n, filePath, minLine, maxLine))
				break
			}
		}
	}

	for _, a := range assertions {
		if a.File == "" || a.MustNotContain == "" || a.Line == 0 {
			continue
		}
		for _, entry := range hra {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			fp, _ := item[types.KeyFilePath].(string)
			ls, okS := asInt(item[types.KeyLineStart])
			le, okE := asInt(item[types.KeyLineEnd])
			if fp != a.File || !okS || !okE || ls > a.Line || a.Line > le {
				continue
			}
			text, ok := evidenceMap[a.File][a.Line]
			if ok && !strings.Contains(strings.ToLower(text), strings.ToLower(a.MustNotContain)) {
				errs = append(errs, fmt.Sprintf(
					"Citation covers line %d in '%s' which does not contain expected text for the cited function",
					a.Line, a.File))
			}
		}
	}

	return len(errs) == 0, errs
}

// buildEvidenceMap indexes readable evidence as path -> line number -> text,
// parsed from the "N| text" line format.
func buildEvidenceMap(evidence []types.EvidenceItem) map[string]map[int]string {
	out := make(map[string]map[int]string)
	for _, item := range evidence {
		if item.Tool != types.ToolReadFile || strings.TrimSpace(item.Path) == "" {
			continue
		}
		lines := make(map[int]string)
		for _, raw := range item.Lines {
			m := linePrefixRe.FindStringSubmatch(raw)
			if m == nil {
				continue
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			lines[n] = m[2]
		}
		if len(lines) > 0 {
			out[strings.TrimSpace(item.Path)] = lines
		}
	}
	return out
}

func lineBounds(lines map[int]string) (minLine, maxLine int) {
	first := true
	for n := range lines {
		if first {
			minLine, maxLine = n, n
			first = false
			continue
		}
		if n < minLine {
			minLine = n
		}
		if n > maxLine {
			maxLine = n
		}
	}
	return minLine, maxLine
}

// keyDiff compares a map's key set against the required keys, returning the
// sorted extras and missing.
func keyDiff(m map[string]any, required []string) (extra, missing []string) {
	req := make(map[string]bool, len(required))
	for _, k := range required {
		req[k] = true
	}
	for k := range m {
		if !req[k] {
			extra = append(extra, k)
		}
	}
	for _, k := range required {
		if _, ok := m[k]; !ok {
			missing = append(missing, k)
		}
	}
	sort.Strings(extra)
	sort.Strings(missing)
	return extra, missing
}

// asInt accepts native ints and integral float64 values, the two shapes a
// JSON integer can take after decoding.
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

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, float64:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func quoted(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprintf("%v", v)
}

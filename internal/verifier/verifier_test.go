package verifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"repopilot/internal/types"
)

func validOutput() map[string]any {
	return map[string]any{
		"summary": "Reads environment variables.",
		"high_risk_areas": []any{
			map[string]any{
				"file_path":   "main.py",
				"line_start":  1,
				"line_end":    2,
				"description": "dumps env",
			},
		},
		"confidence": "medium",
	}
}

func mainEvidence() []types.EvidenceItem {
	return []types.EvidenceItem{
		{Tool: types.ToolReadFile, Path: "main.py", Lines: []string{
			"1| import os",
			"2| print(os.environ)",
		}},
	}
}

func TestValidateSchemaAccepts(t *testing.T) {
	ok, errs := ValidateSchema(validOutput())
	require.True(t, ok, "errors: %v", errs)
	require.Empty(t, errs)
}

func TestValidateSchemaExtraAndMissingKeys(t *testing.T) {
	ok, errs := ValidateSchema(map[string]any{
		"summary":  "x",
		"findings": []any{},
	})
	require.False(t, ok)
	require.Len(t, errs, 2)
	require.Contains(t, errs[0], "Extra fields not allowed: [findings]")
	require.Contains(t, errs[1], "Missing required fields: [confidence high_risk_areas]")
}

func TestValidateSchemaBadConfidence(t *testing.T) {
	out := validOutput()
	out["confidence"] = "certain"
	ok, errs := ValidateSchema(out)
	require.False(t, ok)
	require.Contains(t, errs[0], "confidence must be 'low', 'medium', or 'high'")
}

func TestValidateSchemaCitationFieldChecks(t *testing.T) {
	out := validOutput()
	out["high_risk_areas"] = []any{
		map[string]any{
			"file_path":   "main.py",
			"line_start":  "1",
			"line_end":    2,
			"description": "d",
		},
		map[string]any{
			"file_path":   "main.py",
			"line_start":  1,
			"line_end":    2,
			"description": "d",
			"severity":    "high",
		},
	}
	ok, errs := ValidateSchema(out)
	require.False(t, ok)
	require.Contains(t, errs[0], "high_risk_areas[0].line_start must be int")
	require.Contains(t, errs[1], "high_risk_areas[1] has extra fields: [severity]")
}

func TestValidateSchemaRejectsNestedStructures(t *testing.T) {
	out := validOutput()
	out["high_risk_areas"] = []any{
		map[string]any{
			"file_path":   "main.py",
			"line_start":  1,
			"line_end":    2,
			"description": []any{"nested"},
		},
	}
	ok, errs := ValidateSchema(out)
	require.False(t, ok)
	found := false
	for _, e := range errs {
		if e == "high_risk_areas[0].description contains nested structure (list), only primitives allowed" {
			found = true
		}
	}
	require.True(t, found, "errors: %v", errs)
}

func TestValidateSchemaAcceptsJSONNumbers(t *testing.T) {
	out := validOutput()
	out["high_risk_areas"] = []any{
		map[string]any{
			"file_path":   "main.py",
			"line_start":  float64(1),
			"line_end":    float64(2),
			"description": "d",
		},
	}
	ok, errs := ValidateSchema(out)
	require.True(t, ok, "errors: %v", errs)
}

func TestValidateCitationsEmptyListValid(t *testing.T) {
	out := validOutput()
	out["high_risk_areas"] = []any{}
	ok, errs := ValidateCitations(out, nil, Rules{}, nil)
	require.True(t, ok)
	require.Empty(t, errs)
}

func TestValidateCitationsHappyPath(t *testing.T) {
	ok, errs := ValidateCitations(validOutput(), mainEvidence(), Rules{}, nil)
	require.True(t, ok, "errors: %v", errs)
}

func TestValidateCitationsUnknownFile(t *testing.T) {
	out := validOutput()
	out["high_risk_areas"].([]any)[0].(map[string]any)["file_path"] = "ghost.py"
	ok, errs := ValidateCitations(out, mainEvidence(), Rules{}, nil)
	require.False(t, ok)
	require.Contains(t, errs[0], "file 'ghost.py' not found in retrieved evidence")
}

func TestValidateCitationsLineOutOfRange(t *testing.T) {
	out := validOutput()
	cite := out["high_risk_areas"].([]any)[0].(map[string]any)
	cite["line_start"] = 2
	cite["line_end"] = 5
	ok, errs := ValidateCitations(out, mainEvidence(), Rules{}, nil)
	require.False(t, ok)
	require.Contains(t, errs[0], "line 3 in 'main.py' not found in evidence (evidence has lines 1-2)")
	// Only the first missing line is reported per citation.
	require.Len(t, errs, 1)
}

func TestValidateCitationsReversedBounds(t *testing.T) {
	out := validOutput()
	cite := out["high_risk_areas"].([]any)[0].(map[string]any)
	cite["line_start"] = 2
	cite["line_end"] = 1
	ok, errs := ValidateCitations(out, mainEvidence(), Rules{}, nil)
	require.False(t, ok)
	require.Contains(t, errs[0], "line_start (2) > line_end (1)")
}

func TestValidateCitationsDuplicates(t *testing.T) {
	out := validOutput()
	dup := map[string]any{
		"file_path": "main.py", "line_start": 1, "line_end": 2, "description": "again",
	}
	out["high_risk_areas"] = append(out["high_risk_areas"].([]any), dup)
	ok, errs := ValidateCitations(out, mainEvidence(), Rules{}, nil)
	require.False(t, ok)
	require.Contains(t, errs[0], "Duplicate citation: main.py lines 1-2")
}

func TestValidateCitationsNonPositiveRule(t *testing.T) {
	out := validOutput()
	cite := out["high_risk_areas"].([]any)[0].(map[string]any)
	cite["line_start"] = 0

	ok, _ := ValidateCitations(out, mainEvidence(), Rules{}, nil)
	require.False(t, ok, "line 0 can never exist in evidence")

	ok, errs := ValidateCitations(out, mainEvidence(), Rules{RejectNonPositiveLines: true}, nil)
	require.False(t, ok)
	require.Contains(t, errs[0], "negative or zero line numbers rejected")
}

func TestValidateCitationsContentAssertion(t *testing.T) {
	assertions := []ContentAssertion{
		{File: "main.py", Line: 2, MustNotContain: "def helper"},
	}
	ok, errs := ValidateCitations(validOutput(), mainEvidence(), Rules{}, assertions)
	require.False(t, ok)
	require.Contains(t, errs[0], "does not contain expected text for the cited function")
}

func TestVerifySetsFeedback(t *testing.T) {
	state := types.NewRunState("Analyze main.py", "/repo")
	state.Evidence = mainEvidence()
	state.Output = validOutput()
	state.Output["confidence"] = "certain"

	New(nil).Verify(state)

	require.False(t, state.SchemaValid)
	require.True(t, state.CitationsValid)
	require.Contains(t, state.LastFeedback, "SCHEMA ERRORS: ")
	require.NotContains(t, state.LastFeedback, "CITATION ERRORS")
}

func TestVerifyCleanRunClearsFeedback(t *testing.T) {
	state := types.NewRunState("Analyze main.py", "/repo")
	state.Evidence = mainEvidence()
	state.Output = validOutput()

	New(nil).Verify(state)

	require.True(t, state.SchemaValid)
	require.True(t, state.CitationsValid)
	require.Empty(t, state.LastFeedback)
}

func TestVerifySecurityErrorOverridesValidCitations(t *testing.T) {
	state := types.NewRunState("Analyze main.py", "/repo")
	state.Evidence = mainEvidence()
	state.ToolCalls = []types.ToolCall{
		{Tool: types.ToolReadFile, Path: "link.py", Err: "symlink not allowed: link.py", Status: types.StatusError},
	}
	state.Output = validOutput()

	New(nil).Verify(state)

	require.True(t, state.SchemaValid)
	require.False(t, state.CitationsValid)
	require.Contains(t, state.CitationErrors[0], "Security error for 'link.py'")
}

func TestVerifySystemPathTaskInvalidatesCitations(t *testing.T) {
	state := types.NewRunState("Summarize /etc/passwd", "/repo")
	state.Evidence = mainEvidence()
	state.Output = validOutput()

	New(nil).Verify(state)

	require.False(t, state.CitationsValid)
	require.Contains(t, state.CitationErrors[0],
		"Task references paths outside repository; citations cannot be validated.")
}

func TestVerifyTwiceYieldsIdenticalResults(t *testing.T) {
	// A state that trips both security overrides: a symlink read failure in
	// the call log and a binary file the task targets. Re-verifying must not
	// stack additional override errors onto the previous result.
	state := types.NewRunState("What is inside data.db?", "/repo")
	state.Evidence = append(mainEvidence(), types.EvidenceItem{
		Tool: types.ToolReadFile, Path: "data.db", IsBinary: true,
		Err: "Unsupported/binary file type: .db",
	})
	state.ToolCalls = []types.ToolCall{
		{Tool: types.ToolReadFile, Path: "link.py", Err: "symlink not allowed: link.py", Status: types.StatusError},
	}
	state.Output = validOutput()

	v := New(nil)
	v.Verify(state)
	schemaValid, citationsValid := state.SchemaValid, state.CitationsValid
	schemaErrs := state.SchemaErrors
	citationErrs := state.CitationErrors
	feedback := state.LastFeedback

	v.Verify(state)
	require.Equal(t, schemaValid, state.SchemaValid)
	require.Equal(t, citationsValid, state.CitationsValid)
	require.Equal(t, schemaErrs, state.SchemaErrors)
	require.Equal(t, citationErrs, state.CitationErrors)
	require.Equal(t, feedback, state.LastFeedback)
}

func TestVerifyBinaryTargetInvalidatesCitations(t *testing.T) {
	state := types.NewRunState("What is inside data.db?", "/repo")
	state.Evidence = append(mainEvidence(), types.EvidenceItem{
		Tool: types.ToolReadFile, Path: "data.db", IsBinary: true,
		Err: "Unsupported/binary file type: .db",
	})
	state.Output = validOutput()

	New(nil).Verify(state)

	require.False(t, state.CitationsValid)
	require.Contains(t, state.CitationErrors[0], "Task targets binary file 'data.db'")
}

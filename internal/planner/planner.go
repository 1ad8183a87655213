// Package planner classifies the task and produces the ordered list of
// abstract steps the executor walks.
package planner

import (
	"regexp"
	"strings"

	"repopilot/internal/taskscan"
)

// Plan step names. The executor dispatches on these exact strings.
const (
	StepListFiles = "List repository files"
	StepReadFiles = "Read relevant files"
	StepAnalyze   = "Analyze code"
	StepSummarize = "Generate structured output"
	StepVerify    = "Verify reliability"
)

// TaskKind classifies the task to inform planning.
type TaskKind string

const (
	KindSecurityReject TaskKind = "security_reject"
	KindPossiblyBinary TaskKind = "possibly_binary"
	KindTargetedFile   TaskKind = "targeted_file"
	KindMultiFile      TaskKind = "multi_file"
	KindGeneral        TaskKind = "general"
)

var binaryExtensions = []string{".db", ".sqlite", ".exe", ".bin", ".dll", ".so", ".dylib"}

var reTargetedFile = regexp.MustCompile(`(?:file|path)\s+\S+\.\w+`)

var multiFileKeywords = []string{"all files", "every file", "each file", "across"}

// Classify determines the task kind from textual heuristics.
func Classify(task string) TaskKind {
	lower := strings.ToLower(task)

	if taskscan.IsSystemPath(lower) {
		return KindSecurityReject
	}
	for _, ext := range binaryExtensions {
		if strings.Contains(lower, ext) {
			return KindPossiblyBinary
		}
	}
	if reTargetedFile.MatchString(lower) {
		return KindTargetedFile
	}
	for _, kw := range multiFileKeywords {
		if strings.Contains(lower, kw) {
			return KindMultiFile
		}
	}
	return KindGeneral
}

// Plan returns the ordered steps for the task. All plans begin with a file
// listing; out-of-bounds tasks skip the read step and go straight to
// analysis, which will reject them without evidence.
func Plan(task string) []string {
	plan := []string{StepListFiles}
	if Classify(task) != KindSecurityReject {
		plan = append(plan, StepReadFiles)
	}
	plan = append(plan, StepAnalyze, StepSummarize, StepVerify)
	return plan
}

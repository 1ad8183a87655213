// Package taskscan extracts grounding hints from the free-text task: file
// mentions, requested line ranges, and system-path patterns that mark a task
// as out of bounds. The planner, executor, analyzer and verifier all share
// these heuristics.
package taskscan

import (
	"path"
	"regexp"
	"strings"
)

var systemPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\./\.\.`),
	regexp.MustCompile(`/etc/`),
	regexp.MustCompile(`/usr/`),
	regexp.MustCompile(`/var/`),
	regexp.MustCompile(`/tmp/`),
	regexp.MustCompile(`/home/`),
	regexp.MustCompile(`\\windows\\`),
}

var filePatterns = []*regexp.Regexp{
	regexp.MustCompile(`["']([a-zA-Z0-9_/\\.\-]+\.\w{1,5})["']`),
	regexp.MustCompile(`(?:file|path|in|from|of)\s+([a-zA-Z0-9_/\\.\-]+\.\w{1,5})`),
	regexp.MustCompile(`([a-zA-Z0-9_]+(?:/[a-zA-Z0-9_]+)*\.\w{1,5})`),
}

var (
	reLineRange  = regexp.MustCompile(`(?i)lines?\s+(\d[\d,]*)\s*(?:to|-)\s*(\d[\d,]*)`)
	reSingleLine = regexp.MustCompile(`(?i)line\s+(\d[\d,]*)`)
	reAnyFile    = regexp.MustCompile(`([a-zA-Z0-9_/\\.\-]+\.\w{1,5})`)
)

// LineRange is a 1-indexed inclusive range requested by the task.
type LineRange struct {
	Start int
	End   int
}

// IsSystemPath reports whether the task references parent-directory escapes
// or well-known system paths outside any repository.
func IsSystemPath(task string) bool {
	lower := strings.ToLower(task)
	for _, pat := range systemPathPatterns {
		if pat.MatchString(lower) {
			return true
		}
	}
	return false
}

// Files returns file paths mentioned in the task, deduplicated in order of
// first appearance.
func Files(task string) []string {
	var found []string
	seen := make(map[string]bool)
	for _, pat := range filePatterns {
		for _, m := range pat.FindAllStringSubmatch(task, -1) {
			candidate := strings.Trim(strings.TrimSpace(m[1]), `'"`)
			if len(candidate) <= 2 || strings.HasPrefix(candidate, ".") {
				continue
			}
			if !seen[candidate] {
				seen[candidate] = true
				found = append(found, candidate)
			}
		}
	}
	return found
}

// LineRanges returns explicit line ranges the task asks about; "line N"
// yields the degenerate range N..N.
func LineRanges(task string) []LineRange {
	var ranges []LineRange
	for _, m := range reLineRange.FindAllStringSubmatch(task, -1) {
		ranges = append(ranges, LineRange{Start: parseNum(m[1]), End: parseNum(m[2])})
	}
	for _, m := range reSingleLine.FindAllStringSubmatch(task, -1) {
		n := parseNum(m[1])
		ranges = append(ranges, LineRange{Start: n, End: n})
	}
	return ranges
}

// TargetsFile reports whether the task specifically asks about the given
// file, by full relative path or basename, case-insensitively.
func TargetsFile(task, filename string) bool {
	if filename == "" {
		return false
	}
	taskLower := strings.ToLower(task)
	nameLower := strings.ToLower(filename)
	return strings.Contains(taskLower, nameLower) ||
		strings.Contains(taskLower, path.Base(nameLower))
}

// MissingFile returns the first file the task mentions that is absent from
// the listing (no path or basename match), or "" when every mention exists.
func MissingFile(task string, listed []string) string {
	listedLower := make(map[string]bool, len(listed))
	for _, f := range listed {
		listedLower[strings.ToLower(strings.ReplaceAll(f, `\`, "/"))] = true
	}
	for _, m := range reAnyFile.FindAllStringSubmatch(task, -1) {
		mention := strings.Trim(strings.ToLower(strings.ReplaceAll(m[1], `\`, "/")), "./")
		if mention == "" || listedLower[mention] {
			continue
		}
		base := path.Base(mention)
		anyBase := false
		for _, f := range listed {
			if strings.HasSuffix(strings.ToLower(f), base) {
				anyBase = true
				break
			}
		}
		if !anyBase {
			return m[1]
		}
	}
	return ""
}

func parseNum(s string) int {
	s = strings.ReplaceAll(s, ",", "")
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

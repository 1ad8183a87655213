// Package jsonutil holds the JSON helpers the summarizer's parse ladder and
// the CLI output rely on: fence stripping, brace-balanced object extraction,
// and HTML-escape-free marshaling.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"strings"
)

// StripFences removes a leading/trailing markdown code fence (``` or
// ```json) when present; otherwise the input passes through unchanged.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// FirstObject extracts the first brace-balanced JSON object from s, skipping
// braces inside string literals. Returns false when no balanced object
// exists.
func FirstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// UnmarshalLoose parses raw into v with best effort: a direct parse first,
// then fence stripping, then the first balanced object. It is the parse
// ladder for model responses that wrap JSON in prose or fences.
func UnmarshalLoose(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	stripped := StripFences(raw)
	if err := json.Unmarshal([]byte(stripped), v); err == nil {
		return nil
	}
	if obj, ok := FirstObject(stripped); ok {
		return json.Unmarshal([]byte(obj), v)
	}
	return json.Unmarshal([]byte(stripped), v)
}

// MarshalNoEscape encodes v without escaping <, >, & into < etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalNoEscapeIndent is MarshalNoEscape with indentation.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

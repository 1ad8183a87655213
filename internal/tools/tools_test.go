package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"repopilot/internal/safeio"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestListFilesSortedAndIgnored(t *testing.T) {
	root := t.TempDir()
	write(t, root, "b.py", "x")
	write(t, root, "a.py", "x")
	write(t, root, "src/c.py", "x")
	write(t, root, "node_modules/skip.js", "x")
	write(t, root, ".git/config", "x")

	var ts Local
	res, err := ts.ListFiles(root)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := []string{"a.py", "b.py", "src/c.py"}
	if !slices.Equal(res.Files, want) {
		t.Fatalf("files=%v want=%v", res.Files, want)
	}
	if res.IgnoredDirCount != 2 {
		t.Fatalf("ignored=%d want 2", res.IgnoredDirCount)
	}
}

func TestListFilesCap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 8; i++ {
		write(t, root, fmt.Sprintf("f%d.txt", i), "x")
	}
	ts := Local{MaxFiles: 5}
	res, err := ts.ListFiles(root)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(res.Files) != 5 {
		t.Fatalf("len=%d want 5", len(res.Files))
	}
}

func TestListFilesNonDirectory(t *testing.T) {
	var ts Local
	if _, err := ts.ListFiles(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("want error for missing root")
	}
}

func TestReadFileNumbersLines(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.py", "one\ntwo\nthree\n")

	var ts Local
	res, err := ts.ReadFile(root, "a.py", ReadOptions{})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := []string{"1| one", "2| two", "3| three"}
	if !slices.Equal(res.Lines, want) {
		t.Fatalf("lines=%v want=%v", res.Lines, want)
	}
	if res.TotalLines != 3 || res.Truncated || res.IsBinary {
		t.Fatalf("unexpected flags: %+v", res)
	}
}

func TestReadFileChunkKeepsAbsoluteNumbers(t *testing.T) {
	root := t.TempDir()
	var sb strings.Builder
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	write(t, root, "big.go", sb.String())

	var ts Local
	res, err := ts.ReadFile(root, "big.go", ReadOptions{LineStart: 10, LineEnd: 12})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := []string{"10| line 10", "11| line 11", "12| line 12"}
	if !slices.Equal(res.Lines, want) {
		t.Fatalf("lines=%v want=%v", res.Lines, want)
	}
	if res.TotalLines != 50 {
		t.Fatalf("total=%d want 50", res.TotalLines)
	}
}

func TestReadFileChunkBeyondEOF(t *testing.T) {
	root := t.TempDir()
	write(t, root, "s.txt", "a\nb\n")
	var ts Local
	res, err := ts.ReadFile(root, "s.txt", ReadOptions{LineStart: 10, LineEnd: 20})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(res.Lines) != 0 {
		t.Fatalf("lines=%v want empty", res.Lines)
	}
}

func TestReadFileMaxLinesTruncates(t *testing.T) {
	root := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 300; i++ {
		sb.WriteString("x\n")
	}
	write(t, root, "long.txt", sb.String())

	var ts Local
	res, err := ts.ReadFile(root, "long.txt", ReadOptions{})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(res.Lines) != DefaultMaxLines || !res.Truncated {
		t.Fatalf("len=%d truncated=%v", len(res.Lines), res.Truncated)
	}
	if res.TotalLines != 300 {
		t.Fatalf("total=%d want 300", res.TotalLines)
	}
}

func TestReadFileBinaryMarker(t *testing.T) {
	root := t.TempDir()
	write(t, root, "data.db", "\x00\x01")

	var ts Local
	res, err := ts.ReadFile(root, "data.db", ReadOptions{})
	if err != nil {
		t.Fatalf("binary must not be an error, got %v", err)
	}
	if !res.IsBinary || len(res.Lines) != 0 {
		t.Fatalf("res=%+v want binary marker with no lines", res)
	}
	if !strings.Contains(res.Err, "binary") {
		t.Fatalf("err note %q", res.Err)
	}
}

func TestReadFileTraversalRejected(t *testing.T) {
	root := t.TempDir()
	var ts Local
	_, err := ts.ReadFile(root, "../outside.txt", ReadOptions{})
	if !errors.Is(err, safeio.ErrSecurity) {
		t.Fatalf("err=%v want security error", err)
	}
}

func TestReadFileMissing(t *testing.T) {
	root := t.TempDir()
	var ts Local
	if _, err := ts.ReadFile(root, "nope.py", ReadOptions{}); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestReadFileNoExtensionIsText(t *testing.T) {
	root := t.TempDir()
	write(t, root, "Makefile", "all:\n")
	var ts Local
	res, err := ts.ReadFile(root, "Makefile", ReadOptions{})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if res.IsBinary {
		t.Fatal("extensionless file must be readable")
	}
}

func TestFaultToolsetScriptedFailures(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.py", "ok\n")

	ft := NewFaultToolset(&Local{})
	ft.FailReads("a.py", 2, errors.New("boom"))

	for i := 0; i < 2; i++ {
		if _, err := ft.ReadFile(root, "a.py", ReadOptions{}); err == nil {
			t.Fatalf("attempt %d: want scripted failure", i+1)
		}
	}
	res, err := ft.ReadFile(root, "a.py", ReadOptions{})
	if err != nil {
		t.Fatalf("third attempt should pass through: %v", err)
	}
	if len(res.Lines) != 1 {
		t.Fatalf("lines=%v", res.Lines)
	}
	if ft.Attempts("a.py") != 3 {
		t.Fatalf("attempts=%d want 3", ft.Attempts("a.py"))
	}
}

//go:build unix

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Section 8: CLI Tests
// =============================================================================

// isolate points the cache and config lookups at temporary directories.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("DUPEHOUND_CACHE_PATH", t.TempDir())
	cfgDir := t.TempDir()
	t.Setenv("DUPEHOUND_CONFIG_PATH", cfgDir)
	return cfgDir
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestVersion(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.HasPrefix(out, "dupehound ") {
		t.Errorf("output = %q", out)
	}
}

func TestInvalidInvocation(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"dupes", "--no-such-flag", dir}},
		{"missing paths", []string{"dupes"}},
		{"bad method", []string{"dupes", "--method", "crc", "--progress=false", dir}},
		{"bad size", []string{"dupes", "--min-size", "lots", "--progress=false", dir}},
		{"missing root", []string{"empty", "--progress=false", filepath.Join(dir, "absent")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr, "error:") {
				t.Errorf("stderr = %q, want an error", stderr)
			}
		})
	}
}

func TestDupesCommand(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "sub", "b.txt")
	writeFile(t, a, "same content")
	writeFile(t, b, "same content")
	writeFile(t, filepath.Join(dir, "c.txt"), "other content")

	code, out, stderr := runCLI(t, "dupes", "--progress=false", dir)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	for _, want := range []string{"Group 1:", a, b, "Found 1 duplicates in 1 groups"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "c.txt") {
		t.Errorf("unique file reported:\n%s", out)
	}
}

func TestDupesDryRunKeepsFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	old := filepath.Join(dir, "old.txt")
	recent := filepath.Join(dir, "new.txt")
	writeFile(t, old, "payload")
	writeFile(t, recent, "payload")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	code, out, stderr := runCLI(t, "dupes", "--progress=false",
		"--delete-method", "all-except-oldest", "--dry-run", dir)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(out, "[dry-run] deleted "+recent) {
		t.Errorf("output missing dry-run deletion:\n%s", out)
	}
	for _, p := range []string{old, recent} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s removed in dry-run: %v", p, err)
		}
	}
}

func TestDupesDeleteAllExceptOldest(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	old := filepath.Join(dir, "old.txt")
	recent := filepath.Join(dir, "new.txt")
	writeFile(t, old, "payload")
	writeFile(t, recent, "payload")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	code, out, stderr := runCLI(t, "dupes", "--progress=false", "--delete-method", "all-except-oldest", dir)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(out, "1 deleted, 0 linked, 0 skipped") {
		t.Errorf("unexpected report:\n%s", out)
	}
	if _, err := os.Stat(old); err != nil {
		t.Errorf("oldest file removed: %v", err)
	}
	if _, err := os.Stat(recent); !os.IsNotExist(err) {
		t.Errorf("newer file still present: %v", err)
	}
}

func TestEmptyCommand(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	writeFile(t, empty, "")
	writeFile(t, filepath.Join(dir, "full"), "x")

	code, out, stderr := runCLI(t, "empty", "--progress=false", dir)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(out, empty+"\n") || !strings.Contains(out, "Found 1 empty files among 2 files") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestBigCommand(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	big := filepath.Join(dir, "big")
	writeFile(t, big, strings.Repeat("x", 1000))
	writeFile(t, filepath.Join(dir, "small"), "x")

	code, out, stderr := runCLI(t, "big", "--progress=false", "--count", "1", dir)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(out, big) || strings.Contains(out, filepath.Join(dir, "small")) {
		t.Errorf("unexpected listing:\n%s", out)
	}
	if !strings.Contains(out, "Listed 1 of 2 files") {
		t.Errorf("unexpected summary:\n%s", out)
	}
}

func TestSymlinksCommand(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	if err := os.Symlink(filepath.Join(dir, "missing"), link); err != nil {
		t.Fatal(err)
	}

	code, out, stderr := runCLI(t, "symlinks", "--progress=false", dir)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(out, link+" -> ") || !strings.Contains(out, "Found 1 invalid symlinks") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	cfgDir := isolate(t)

	code, out, stderr := runCLI(t, "config", "init")
	if code != 0 {
		t.Fatalf("init: exit code = %d, stderr = %s", code, stderr)
	}
	path := filepath.Join(cfgDir, "dupehound.yaml")
	if !strings.Contains(out, path) {
		t.Errorf("init output = %q, want %s", out, path)
	}

	if code, _, _ := runCLI(t, "config", "init"); code != 1 {
		t.Errorf("second init: exit code = %d, want 1", code)
	}
	if code, _, stderr := runCLI(t, "config", "init", "--force"); code != 0 {
		t.Errorf("forced init: exit code = %d, stderr = %s", code, stderr)
	}

	t.Setenv("DUPEHOUND_HASH_TYPE", "sha256")
	code, out, stderr = runCLI(t, "config", "show")
	if code != 0 {
		t.Fatalf("show: exit code = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(out, "hash_type: sha256") {
		t.Errorf("show ignores environment:\n%s", out)
	}
}

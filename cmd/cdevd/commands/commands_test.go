package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTranslateCommand(t *testing.T) {
	out, err := runCommand(t, "translate", "sd[a-z]*", "--match", "sdb1")
	if err != nil {
		t.Fatalf("translate failed: %v", err)
	}
	if !strings.Contains(out, "sd[a-z]") {
		t.Errorf("output missing translation: %q", out)
	}
	if !strings.Contains(out, "matches") {
		t.Errorf("output missing match verdict: %q", out)
	}
}

func TestTranslateCommandBadPattern(t *testing.T) {
	if _, err := runCommand(t, "translate", "sd[a-z"); err == nil {
		t.Fatal("expected error for unterminated character group")
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "10-good.rules")
	if err := os.WriteFile(good, []byte(`ACTION=="add", TARGET="allow"`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCommand(t, "validate", good); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	bad := filepath.Join(dir, "20-bad.rules")
	if err := os.WriteFile(bad, []byte(`BOGUS=="x"`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCommand(t, "validate", dir); err == nil {
		t.Fatal("expected validation failure for unknown name")
	}
}

func TestValidateCommandUnknownPreset(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "10-x.rules")
	if err := os.WriteFile(file, []byte("\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCommand(t, "validate", "--preset", "nope", file); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}

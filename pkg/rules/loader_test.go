package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderDirectoryOrder(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir, "50-default.rules", `KERNEL=="sd*", TARGET="allow"`)
	writeRules(t, dir, "10-early.rules", `SUBSYSTEM=="net", TARGET="deny"`)
	writeRules(t, dir, "notes.txt", "not a rule file")

	loader := NewLoader(testPreset(t), testLogger())
	rulesets, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}

	if len(rulesets) != 2 {
		t.Fatalf("ruleset count = %d, want 2", len(rulesets))
	}
	if got := filepath.Base(rulesets[0].File); got != "10-early.rules" {
		t.Errorf("first file = %q, want lexical order", got)
	}
	if got := filepath.Base(rulesets[1].File); got != "50-default.rules" {
		t.Errorf("second file = %q, want lexical order", got)
	}
}

func TestLoaderParseErrorIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir, "10-ok.rules", `KERNEL=="sda", TARGET="allow"`)
	writeRules(t, dir, "20-broken.rules", `BOGUS=="x"`)

	loader := NewLoader(testPreset(t), testLogger())
	_, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err == nil {
		t.Fatal("broken rule file loaded without error")
	}
	se, ok := AsSyntaxError(err)
	if !ok {
		t.Fatalf("error = %T (%v), want *SyntaxError in chain", err, err)
	}
	if filepath.Base(se.File) != "20-broken.rules" {
		t.Errorf("error file = %q", se.File)
	}
}

func TestLoaderSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir, "custom.rules", `ACTION=="add", TARGET="allow"`)

	loader := NewLoader(testPreset(t), testLogger())
	rulesets, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "custom.rules")})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(rulesets) != 1 || rulesets[0].Len() != 1 {
		t.Fatalf("unexpected load result: %d rulesets", len(rulesets))
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a config pointing at the test grid and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	grid, err := filepath.Abs("../../internal/pricegrid/testdata/grid.csv")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := "server:\n  log_level: error\ngrid:\n  path: " + grid + "\n  version: test\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestQuoteCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "quote",
		"--trade", "Nintendo Switch Lite", "--trade-condition", "good", "--target", "Nintendo Switch 2")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !strings.Contains(out, "top-up of S$440") || !strings.Contains(out, "top_up = 500 - 60 - 0 = 440") {
		t.Errorf("quote output:\n%s", out)
	}

	out, err = execute(t, "--config", cfg, "quote", "--spoken",
		"--trade", "Nintendo Switch Lite", "--trade-condition", "good", "--target", "Nintendo Switch 2")
	if err != nil {
		t.Fatalf("quote --spoken: %v", err)
	}
	if strings.Contains(out, "S$") || !strings.Contains(out, "440 dollars") {
		t.Errorf("spoken output = %q", out)
	}

	out, err = execute(t, "--config", cfg, "quote", "--json",
		"--trade", "PS5 Slim", "--target", "PS5 Pro")
	if err != nil {
		t.Fatalf("quote --json: %v", err)
	}
	var outcome struct {
		Clarification *struct {
			Side string `json:"side"`
		} `json:"clarification"`
	}
	if err := json.Unmarshal([]byte(out), &outcome); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if outcome.Clarification == nil || outcome.Clarification.Side != "trade" {
		t.Errorf("ambiguous quote = %s", out)
	}
}

func TestQuoteCommand_RequiresFlags(t *testing.T) {
	if _, err := execute(t, "--config", writeConfig(t), "quote", "--trade", "PS5 Slim"); err == nil {
		t.Error("expected error without --target")
	}
}

func TestLookupCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "lookup", "PS5", "Slim", "--variant", "1TB Digital")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if strings.TrimSpace(out) != "PS5 Slim 1TB Digital in good condition trades in for S$330 to S$370." {
		t.Errorf("lookup output = %q", out)
	}

	out, err = execute(t, "--config", cfg, "lookup", "--search", "switch")
	if err != nil {
		t.Fatalf("lookup --search: %v", err)
	}
	if n := strings.Count(out, "\n"); n != 3 {
		t.Errorf("search rows = %d, want 3:\n%s", n, out)
	}

	if _, err := execute(t, "--config", cfg, "lookup", "Game Boy"); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestGridCommands(t *testing.T) {
	cfg := writeConfig(t)
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "grid.csv")
	if _, err := execute(t, "--config", cfg, "grid", "export", "--out", csvPath); err != nil {
		t.Fatalf("grid export: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 9 {
		t.Errorf("exported %d lines, want header plus 8 rows", lines)
	}

	out, err := execute(t, "--config", cfg, "grid", "jsonl")
	if err != nil {
		t.Fatalf("grid jsonl: %v", err)
	}
	if lines := strings.Count(out, "\n"); lines != 8 {
		t.Errorf("jsonl lines = %d, want 8", lines)
	}

	if _, err := execute(t, "--config", cfg, "grid", "import", csvPath); err == nil {
		t.Error("grid import without a DSN should fail")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "--config", "/nonexistent.yaml", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("version output = %q", out)
	}
}

func TestBadConfig(t *testing.T) {
	if code := run([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "lookup", "PS5"}); code != 1 {
		t.Errorf("run = %d, want 1", code)
	}
}

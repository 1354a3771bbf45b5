package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kbukum/taskflow/config"
	"github.com/kbukum/taskflow/dag"
	"github.com/kbukum/taskflow/runstore"
	"github.com/kbukum/taskflow/version"
)

const pipelineYAML = `
nodes:
  - id: fetch
    executor: tool
    tool_name: echo
    input: {url: "https://example.com"}
  - id: parse
    executor: tool
    tool_name: echo
    input: {page: raw}
    source: fetch
`

const brokenYAML = `
nodes:
  - id: a
    executor: tool
    tool_name: echo
    source: b
  - id: b
    executor: tool
    tool_name: echo
    source: a
`

const failingYAML = `
nodes:
  - id: fetch
    executor: tool
    tool_name: no-such-tool
  - id: parse
    executor: tool
    tool_name: echo
    source: fetch
`

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := "store:\n  driver: file\n  path: " + filepath.Join(dir, "runs") + "\n"
	e := &env{dir: dir, config: filepath.Join(dir, "config.yml")}
	e.write(t, "config.yml", cfg)
	return e
}

func (e *env) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the CLI with args and returns stdout.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	a.loaderOpts = []config.LoaderOption{config.WithEnviron(nil)}
	cmd := newRootCommand(a)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func exitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	if err != nil {
		return 1
	}
	return 0
}

func TestVersionCommand(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "version", "--short")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != version.Short() {
		t.Errorf("version = %q, want %q", out, version.Short())
	}
}

func TestValidateCommand(t *testing.T) {
	e := newEnv(t)
	good := e.write(t, "good.yaml", pipelineYAML)
	bad := e.write(t, "bad.yaml", brokenYAML)

	out, err := e.run(t, "validate", good)
	if err != nil {
		t.Fatalf("validate good: %v", err)
	}
	if !strings.Contains(out, "valid (2 nodes, 1 edges)") || !strings.Contains(out, "entries: fetch") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = e.run(t, "validate", bad)
	if exitCode(err) != 2 {
		t.Fatalf("validate bad: exit %d (%v)", exitCode(err), err)
	}
	if !strings.Contains(out, "invalid") || !strings.Contains(out, "  - ") {
		t.Errorf("expected problem list, got:\n%s", out)
	}

	out, err = e.run(t, "validate", good, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var report validateReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !report.Valid || strings.Join(report.Exits, ",") != "parse" {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestRunReplayAndInspect(t *testing.T) {
	e := newEnv(t)
	graph := e.write(t, "pipeline.yaml", pipelineYAML)

	out, err := e.run(t, "run", graph, "--run-id", "first", "--max-parallel", "1")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Run first: success") || !strings.Contains(out, "Output of parse:") {
		t.Errorf("unexpected run output:\n%s", out)
	}

	store, err := runstore.NewFileStore(filepath.Join(e.dir, "runs"))
	if err != nil {
		t.Fatal(err)
	}
	rec, err := store.Load(context.Background(), "first")
	if err != nil {
		t.Fatalf("run not stored: %v", err)
	}
	if rec.Summary().Result() != dag.ResultSuccess {
		t.Errorf("stored result %s", rec.Summary().Result())
	}

	out, err = e.run(t, "replay", "first", "--set", "parse={page: edited}", "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "re-execute: parse") || !strings.Contains(out, "copy:       fetch") {
		t.Errorf("unexpected plan:\n%s", out)
	}

	out, err = e.run(t, "replay", "first", "--set", "parse={page: edited}", "--json")
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}
	var sum dag.Summary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	parse, _ := sum.Outputs["parse"].(map[string]any)
	if parse["page"] != "edited" {
		t.Errorf("replayed parse output = %v", sum.Outputs["parse"])
	}

	out, err = e.run(t, "runs", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "first") || strings.Count(out, "\n") != 3 {
		t.Errorf("expected header and two runs, got:\n%s", out)
	}

	out, err = e.run(t, "runs", "show", sum.RunID, "--events")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Replay of first") || !strings.Contains(out, "succeeded (copied)") {
		t.Errorf("unexpected show output:\n%s", out)
	}

	if _, err := e.run(t, "replay", "first"); err == nil {
		t.Error("expected error without overrides")
	}
	if _, err := e.run(t, "runs", "show", "missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestRunCommand_FailureExitCode(t *testing.T) {
	e := newEnv(t)
	graph := e.write(t, "failing.yaml", failingYAML)

	out, err := e.run(t, "run", graph, "--quiet")
	if exitCode(err) != 3 {
		t.Fatalf("exit %d (%v), want 3\n%s", exitCode(err), err, out)
	}
	if !strings.Contains(out, "failure") {
		t.Errorf("expected failure result, got:\n%s", out)
	}

	if _, err := e.run(t, "run", graph, "--policy", "bogus"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestLayoutCommand(t *testing.T) {
	e := newEnv(t)
	graph := e.write(t, "pipeline.yaml", pipelineYAML)

	out, err := e.run(t, "layout", graph)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "L0: fetch") || !strings.Contains(out, "L1: parse") {
		t.Errorf("unexpected layout:\n%s", out)
	}
}

func TestLoadOverrides(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "overrides.yaml", "parse:\n  page: from-file\nfetch: {url: x}\n")

	overrides, err := loadOverrides(path, []string{`parse={"page": "from-flag"}`})
	if err != nil {
		t.Fatal(err)
	}
	if len(overrides) != 2 {
		t.Errorf("expected 2 overrides, got %d", len(overrides))
	}
	parse, _ := overrides["parse"].(map[string]any)
	if parse["page"] != "from-flag" {
		t.Errorf("--set should win, got %v", overrides["parse"])
	}

	if _, err := loadOverrides("", []string{"novalue"}); err == nil {
		t.Error("expected error for malformed --set")
	}
}

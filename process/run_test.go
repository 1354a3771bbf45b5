package process_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	taskerrors "github.com/kbukum/taskflow/errors"
	"github.com/kbukum/taskflow/process"
	"github.com/kbukum/taskflow/provider"
	"github.com/kbukum/taskflow/resilience"
)

func TestRun_StdinToStdout(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary: "cat",
		Stdin:  strings.NewReader(`{"items":[1,2]}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := result.Value().(map[string]any)
	if !ok || len(v["items"].([]any)) != 2 {
		t.Fatalf("Value() = %#v", result.Value())
	}
}

func TestRun_ExitErrorCarriesStderr(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo bad input >&2; exit 42"},
	})
	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode != 42 || exitErr.Stderr != "bad input" || result.ExitCode != 42 {
		t.Fatalf("exit error = %+v", exitErr)
	}
}

func TestRun_MaxOutput(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary:    "sh",
		Args:      []string{"-c", `printf '{"k":"0123456789"}'`},
		MaxOutput: 6,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Stdout) != `{"k":"` || !result.Truncated {
		t.Fatalf("stdout = %q truncated = %v", result.Stdout, result.Truncated)
	}
	if result.Value() != `{"k":"` {
		t.Errorf("truncated output should stay text, got %#v", result.Value())
	}
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := process.Run(ctx, process.Command{
		Binary:      "sleep",
		Args:        []string{"10"},
		GracePeriod: 500 * time.Millisecond,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if result.Duration > 5*time.Second {
		t.Fatalf("process took too long to kill: %v", result.Duration)
	}
}

func TestRun_EmptyBinary(t *testing.T) {
	if _, err := process.Run(context.Background(), process.Command{}); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestRun_Env(t *testing.T) {
	result, err := process.Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "echo $MY_TEST_VAR"},
		Env:    []string{"MY_TEST_VAR=hello123"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Value() != "hello123" {
		t.Fatalf("expected 'hello123', got %#v", result.Value())
	}
}

func TestParseCommandLine(t *testing.T) {
	cmd, err := process.ParseCommandLine(`jq -r '.items[] | .name' "my file.json"`)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Binary != "jq" || len(cmd.Args) != 3 || cmd.Args[1] != ".items[] | .name" || cmd.Args[2] != "my file.json" {
		t.Fatalf("cmd = %+v", cmd)
	}
	if _, err := process.ParseCommandLine("   "); err == nil {
		t.Error("expected empty command error")
	}
	if _, err := process.ParseCommandLine(`echo "unterminated`); err == nil {
		t.Error("expected quote error")
	}
}

func TestRunner_Defaults(t *testing.T) {
	dir := t.TempDir()
	runner := process.NewRunner(process.Config{Name: "tools", Dir: dir}, provider.ResilienceConfig{})
	result, err := runner.Execute(context.Background(), process.Command{Binary: "pwd"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(result.Text(), dir) {
		t.Errorf("pwd = %q, want %q", result.Text(), dir)
	}
}

func TestRunner_Timeout(t *testing.T) {
	runner := process.NewRunner(process.Config{Timeout: 50 * time.Millisecond, GracePeriod: 100 * time.Millisecond}, provider.ResilienceConfig{})
	if _, err := runner.Execute(context.Background(), process.Command{Binary: "sleep", Args: []string{"10"}}); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestRunner_CircuitBreakerTrips(t *testing.T) {
	runner := process.NewRunner(process.Config{Name: "flaky"}, provider.ResilienceConfig{
		CircuitBreaker: &resilience.CircuitBreakerConfig{
			Name:             "test-proc-cb",
			MaxFailures:      2,
			Timeout:          time.Second,
			HalfOpenMaxCalls: 1,
		},
	})
	for i := 0; i < 2; i++ {
		if _, err := runner.Execute(context.Background(), process.Command{Binary: "false"}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	_, err := runner.Execute(context.Background(), process.Command{Binary: "false"})
	appErr, ok := taskerrors.AsAppError(err)
	if !ok || appErr.Code != taskerrors.ErrCodeServiceUnavailable {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %T: %v", err, err)
	}
}

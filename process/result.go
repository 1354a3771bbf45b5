package process

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Result holds the output and status of a completed subprocess.
type Result struct {
	// Stdout is the captured standard output.
	Stdout []byte
	// Stderr is the captured standard error.
	Stderr []byte
	// ExitCode is the process exit code. -1 if the process was killed.
	ExitCode int
	// Duration is how long the process ran.
	Duration time.Duration
	// Truncated reports that stdout went past Command.MaxOutput.
	Truncated bool
}

// Text returns stdout with surrounding whitespace removed.
func (r *Result) Text() string {
	return strings.TrimSpace(string(r.Stdout))
}

// Value decodes stdout as JSON when it is a complete JSON document and
// returns the trimmed text otherwise.
func (r *Result) Value() any {
	text := r.Text()
	if text == "" {
		return ""
	}
	if r.Truncated {
		return text
	}
	var v any
	if json.Valid([]byte(text)) && json.Unmarshal([]byte(text), &v) == nil {
		return v
	}
	return text
}

// ExitError reports a non-zero exit. Stderr holds the tail of the
// process's standard error.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("process: %s: exit code %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

const stderrTail = 512

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return s
}

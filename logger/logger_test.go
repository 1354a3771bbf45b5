package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	l := New(&Config{Level: "invalid-level", Format: "json", Output: "stdout"}, "test")
	if l == nil {
		t.Fatal("expected logger to be created even with invalid level")
	}
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "debug", Format: "json"}, &buf, "sched")
	l.WithComponent("scheduler").Info("node completed", Fields(FieldNodeID, "ST1", FieldStatus, "succeeded"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry[FieldComponent] != "scheduler" {
		t.Errorf("component = %v", entry[FieldComponent])
	}
	if entry[FieldNodeID] != "ST1" {
		t.Errorf("node_id = %v", entry[FieldNodeID])
	}
	if entry["message"] != "node completed" {
		t.Errorf("message = %v", entry["message"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "warn", Format: "json"}, &buf, "test")
	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info/debug suppressed, got %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn output, got %q", buf.String())
	}
}

func TestWithContextRunID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: "json"}, &buf, "test")
	ctx := ContextWithRunID(context.Background(), "run-42")
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = context.WithValue(ctx, contextKey(FieldTraceID), "abc123")

	l.WithContext(ctx).Info("hello")
	out := buf.String()
	for _, want := range []string{`"run_id":"run-42"`, `"request_id":"req-1"`, `"trace_id":"abc123"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestWithContextEmpty(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: "json"}, &buf, "test")
	l.WithContext(context.Background()).Info("plain")
	if strings.Contains(buf.String(), FieldRunID) {
		t.Errorf("unexpected run_id in %s", buf.String())
	}
}

func TestWithFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: "json"}, &buf, "test")
	l.WithFields(map[string]interface{}{"key": "value"}).WithError(errors.New("boom")).Error("failed")
	out := buf.String()
	if !strings.Contains(out, `"key":"value"`) || !strings.Contains(out, `"error":"boom"`) {
		t.Errorf("unexpected output %s", out)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("nothing")
	l.WithComponent("x").Error("nothing")
}

func TestInit(t *testing.T) {
	Init(&Config{Level: "info", Format: "console", Output: "stdout"})
	if GetGlobalLogger() == nil {
		t.Fatal("expected global logger to be set after Init")
	}
}

func TestGetGlobalLoggerDefault(t *testing.T) {
	globalLogger = nil
	if GetGlobalLogger() == nil {
		t.Fatal("expected default global logger to be created")
	}
}

func TestSetGlobalLogger(t *testing.T) {
	l := NewDefault("custom")
	SetGlobalLogger(l)
	if GetGlobalLogger() != l {
		t.Error("expected SetGlobalLogger to set the global logger")
	}
}

func TestPackageLevelFunctions(t *testing.T) {
	Init(&Config{Level: "debug", Format: "console", Output: "stdout"})
	Debug("debug msg")
	Info("info msg")
	Warn("warn msg")
	Error("error msg")
	if WithComponent("x") == nil {
		t.Fatal("expected non-nil component logger")
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got %q", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Errorf("expected format 'console', got %q", cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("expected output 'stdout', got %q", cfg.Output)
	}
	if !cfg.Timestamp {
		t.Error("expected Timestamp true")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Level: "info", Format: "json"}, false},
		{"pretty", Config{Level: "debug", Format: "pretty"}, false},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
		{"component level", Config{Level: "info", Format: "json", Components: map[string]string{"executor": "debug"}}, false},
		{"bad component level", Config{Level: "info", Format: "json", Components: map[string]string{"sse": "chatty"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConsoleFormatWritesLevelTag(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: "console", NoColor: true}, &buf, "scheduler")
	l.Info("ready")
	out := buf.String()
	if !strings.Contains(out, "[SCH]") || !strings.Contains(out, "[INF]") {
		t.Errorf("unexpected console output %q", out)
	}
}

func TestComponentLevels(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() {
		ResetComponentLevels()
		zerolog.SetGlobalLevel(prevLevel)
	})
	if err := SetComponentLevel("executor", "debug"); err != nil {
		t.Fatal(err)
	}
	if err := SetComponentLevel("sse", "error"); err != nil {
		t.Fatal(err)
	}
	if err := SetComponentLevel("x", "chatty"); err == nil {
		t.Error("expected invalid level error")
	}

	var buf bytes.Buffer
	base := NewWithWriter(&Config{Level: "info", Format: "json"}, &buf, "taskflow")
	base.WithComponent("executor").Debug("dispatch")
	base.WithComponent("sse").Warn("slow client")
	base.WithComponent("runs").Debug("hidden")
	base.WithComponent("runs").Info("saved")

	out := buf.String()
	if !strings.Contains(out, "dispatch") {
		t.Errorf("executor debug line missing: %q", out)
	}
	if strings.Contains(out, "slow client") || strings.Contains(out, "hidden") {
		t.Errorf("filtered lines written: %q", out)
	}
	if !strings.Contains(out, "saved") {
		t.Errorf("runs info line missing: %q", out)
	}
	if Nop().WithComponent("executor").GetLogger().GetLevel() != zerolog.Disabled {
		t.Error("override re-enabled a nop logger")
	}
}

func TestInitAppliesComponentLevels(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() {
		SetGlobalLogger(prev)
		ResetComponentLevels()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})
	Init(&Config{Level: "warn", Format: "json", Components: map[string]string{"executor": "debug"}})
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("global level = %v, want debug", zerolog.GlobalLevel())
	}
	if Get("executor").GetLogger().GetLevel() != zerolog.DebugLevel {
		t.Error("executor override not applied")
	}
	if Get("runs").GetLogger().GetLevel() != zerolog.WarnLevel {
		t.Error("runs should inherit the base level")
	}
}

func TestFields(t *testing.T) {
	f := Fields(FieldRunID, "r1", "count", 3, 42, "ignored", "dangling")
	if f[FieldRunID] != "r1" {
		t.Errorf("run_id = %v", f[FieldRunID])
	}
	if f["count"] != 3 {
		t.Errorf("count = %v", f["count"])
	}
	if len(f) != 2 {
		t.Errorf("expected 2 fields, got %d: %v", len(f), f)
	}
}

func TestErrorFields(t *testing.T) {
	f := ErrorFields("dispatch", errors.New("boom"))
	if f[FieldOperation] != "dispatch" || f[FieldError] != "boom" {
		t.Errorf("unexpected %v", f)
	}
}

func TestDurationFields(t *testing.T) {
	f := DurationFields("run", 1500*time.Millisecond)
	if f[FieldDuration] != int64(1500) {
		t.Errorf("duration = %v", f[FieldDuration])
	}
}

func TestMergeWithError(t *testing.T) {
	f := MergeWithError(nil, errors.New("x"))
	if f[FieldError] != "x" {
		t.Errorf("unexpected %v", f)
	}
	existing := map[string]interface{}{"a": 1}
	MergeWithError(existing, errors.New("y"))
	if existing[FieldError] != "y" || existing["a"] != 1 {
		t.Errorf("unexpected %v", existing)
	}
}

func TestMergeWithDuration(t *testing.T) {
	f := MergeWithDuration(nil, 2*time.Second)
	if f[FieldDuration] != int64(2000) {
		t.Errorf("unexpected %v", f)
	}
}

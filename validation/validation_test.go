package validation

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kbukum/taskflow/errors"
)

func TestValidatorRequired(t *testing.T) {
	if New().Required("name", "x").HasErrors() {
		t.Error("expected no errors for valid input")
	}
	if !New().Required("name", "").HasErrors() {
		t.Error("expected error for empty field")
	}
	if !New().Required("name", "   ").HasErrors() {
		t.Error("expected error for whitespace-only field")
	}
}

func TestValidatorRequiredUUID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", uuid.New().String(), false},
		{"empty", "", true},
		{"garbage", "not-a-uuid", true},
		{"nil uuid", uuid.Nil.String(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New().RequiredUUID("id", tt.value).HasErrors(); got != tt.wantErr {
				t.Errorf("HasErrors() = %v, want %v", got, tt.wantErr)
			}
		})
	}
}

func TestValidatorMinOneOfCustom(t *testing.T) {
	v := New().
		Min("max_parallel", -1, 0).
		OneOf("policy", "explode", []string{"skip", "fail-propagate"}).
		OneOf("optional", "", []string{"a"}).
		Custom(false, "store", "path required for sqlite")
	if len(v.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %v", v.Errors())
	}
	if v.Errors()[0].Field != "max_parallel" {
		t.Errorf("errors must keep insertion order, got %v", v.Errors())
	}
}

func TestValidatorValidate(t *testing.T) {
	if New().Validate() != nil {
		t.Error("expected nil for no errors")
	}
	appErr := New().Required("a", "").Required("b", "").Validate()
	if appErr == nil {
		t.Fatal("expected AppError")
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("code = %s", appErr.Code)
	}
	if !strings.Contains(appErr.Message, "a: is required") || !strings.Contains(appErr.Message, "b: is required") {
		t.Errorf("message = %q", appErr.Message)
	}
	if _, ok := appErr.Details["fields"]; !ok {
		t.Error("expected fields detail")
	}
}

type sampleConfig struct {
	MaxParallel int    `mapstructure:"max_parallel" validate:"gte=0"`
	Policy      string `json:"policy" validate:"required,oneof=skip fail-propagate execute-with-hole"`
	Inner       struct {
		Path string `json:"path" validate:"required"`
	} `json:"inner"`
}

func TestStructValidate(t *testing.T) {
	var ok sampleConfig
	ok.Policy = "skip"
	ok.Inner.Path = "runs"
	if err := Validate(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var bad sampleConfig
	bad.MaxParallel = -2
	err := Validate(bad)
	if err == nil {
		t.Fatal("expected error")
	}
	appErr, isApp := errors.AsAppError(err)
	if !isApp {
		t.Fatalf("expected AppError, got %T", err)
	}
	for _, want := range []string{"max_parallel", "policy: is required", "inner.path: is required"} {
		if !strings.Contains(appErr.Message, want) {
			t.Errorf("message %q missing %q", appErr.Message, want)
		}
	}
}

func TestValidateMap(t *testing.T) {
	rules := map[string]any{
		"query": "required,min=3",
		"limit": "omitempty,gte=1,lte=50",
		"filter": map[string]any{
			"lang": "required",
		},
	}

	good := map[string]any{"query": "golang", "limit": 10, "filter": map[string]any{"lang": "en"}}
	if err := ValidateMap(good, rules); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := map[string]any{"query": "go", "limit": 99, "filter": map[string]any{}}
	err := ValidateMap(bad, rules)
	if err == nil {
		t.Fatal("expected error")
	}
	appErr, _ := errors.AsAppError(err)
	fields, _ := appErr.Details["fields"].([]FieldError)
	if len(fields) != 3 {
		t.Fatalf("expected 3 field errors, got %v", fields)
	}
	want := []string{"filter.lang", "limit", "query"}
	for i, f := range fields {
		if f.Field != want[i] {
			t.Errorf("field %d = %s, want %s", i, f.Field, want[i])
		}
	}
}

func TestValidateMapMissingRequired(t *testing.T) {
	err := ValidateMap(map[string]any{}, map[string]any{"url": "required"})
	if err == nil || !strings.Contains(err.Error(), "url: is required") {
		t.Fatalf("expected missing url error, got %v", err)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{"MaxParallel": "max_parallel", "ID": "i_d", "name": "name"}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

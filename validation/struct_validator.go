package validation

import (
	stderrors "errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/taskflow/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "mapstructure"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return toSnakeCase(fld.Name)
		})
	})
	return validate
}

// Validate checks s against its `validate` struct tags.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Validation("validation failed").WithCause(err)
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(e.Namespace()), Message: formatValidationError(e)})
	}
	return fieldErrorsToAppError(fields)
}

// ValidateMap checks data against rules, where each rule value is either a
// validator tag string (e.g. "required,min=1") or a nested rule map for a
// nested object. Field errors are reported sorted by field path.
func ValidateMap(data map[string]any, rules map[string]any) error {
	raw := getValidator().ValidateMap(data, rules)
	if len(raw) == 0 {
		return nil
	}
	var fields []FieldError
	collectMapErrors("", raw, &fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return fieldErrorsToAppError(fields)
}

func collectMapErrors(prefix string, raw map[string]any, out *[]FieldError) {
	for key, val := range raw {
		field := key
		if prefix != "" {
			field = prefix + "." + key
		}
		switch e := val.(type) {
		case map[string]any:
			collectMapErrors(field, e, out)
		case validator.ValidationErrors:
			for _, fe := range e {
				*out = append(*out, FieldError{Field: field, Message: formatValidationError(fe)})
			}
		case error:
			*out = append(*out, FieldError{Field: field, Message: e.Error()})
		}
	}
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gt", "gte", "lt", "lte":
		return "must be " + e.Tag() + " " + e.Param()
	default:
		return "failed " + e.Tag() + " check"
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

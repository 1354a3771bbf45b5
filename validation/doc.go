// Package validation checks configuration structs, API requests and
// param-guard node inputs.
//
// Struct tags go through go-playground/validator:
//
//	type SchedulerConfig struct {
//	    MaxParallel int `mapstructure:"max_parallel" validate:"gte=0"`
//	}
//	err := validation.Validate(cfg)
//
// Maps are checked against a rule map of validator tags, which is how a
// param-guard node enforces its "rules":
//
//	err := validation.ValidateMap(params, map[string]any{"query": "required,min=3"})
//
// Hand-written checks collect into a Validator:
//
//	v := validation.New().Required("tool", name).Min("max_parallel", n, 0)
//	if appErr := v.Validate(); appErr != nil { ... }
package validation

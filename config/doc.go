// Package config loads the taskflow configuration.
//
// LoadConfig reads the first of ./taskflow.yml, ./config.yml,
// ./config/config.yml, ./cmd/taskflow/config.yml and
// $XDG_CONFIG_HOME/taskflow/config.yml with Viper, loads a .env file with
// godotenv, then applies environment overrides. Variables use the
// TASKFLOW_ prefix with underscores for nesting, e.g.
// TASKFLOW_SCHEDULER_MAX_PARALLEL=4. A few unprefixed names are also
// honored for compatibility: PLANNER_URL, PLANNER_KEY, PLANNER_MODEL,
// LLM_INPUT_MAX_CHARS and TOOL_OUTPUT_MAX_CHARS.
//
//	var cfg config.AppConfig
//	if err := config.LoadConfig("taskflow", &cfg); err != nil { ... }
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil { ... }
package config

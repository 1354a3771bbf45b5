package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileSystem abstracts the lookups the loader makes, for tests.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
	UserConfigDir() (string, error)
}

// RealFileSystem implements FileSystem on the local disk.
type RealFileSystem struct{}

func (RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (RealFileSystem) LoadEnv(path string) error { return godotenv.Load(path) }

func (RealFileSystem) UserConfigDir() (string, error) { return os.UserConfigDir() }

// Resolver finds the config and env files of a service.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles keeps explicit paths and searches for the rest.
func (cr *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{ConfigFile: opts.ConfigFile, EnvFile: opts.EnvFile}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = cr.first(cr.configCandidates(serviceName))
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = cr.first([]string{
			"./.env." + serviceName,
			"./.env",
			"./config/.env",
		})
	}
	return resolved
}

// configCandidates lists config locations from most to least specific:
// the working directory, the repository layout, then the user config dir.
func (cr *Resolver) configCandidates(serviceName string) []string {
	paths := []string{
		"./" + serviceName + ".yml",
		"./" + serviceName + ".yaml",
		"./config.yml",
		"./config/config.yml",
		"./cmd/" + serviceName + "/config.yml",
	}
	if dir, err := cr.FileSystem.UserConfigDir(); err == nil && dir != "" {
		paths = append(paths, filepath.Join(dir, serviceName, "config.yml"))
	}
	return paths
}

func (cr *Resolver) first(paths []string) string {
	for _, p := range paths {
		if cr.FileSystem.Exists(p) {
			return p
		}
	}
	return ""
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
	// Environ lists the environment. Defaults to os.Environ.
	Environ func() []string
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithEnviron replaces the process environment, for tests.
func WithEnviron(env []string) LoaderOption {
	return func(lc *LoaderConfig) { lc.Environ = func() []string { return env } }
}

// LoadConfig reads the config file and .env file of a service, applies
// environment overrides and unmarshals into cfg, a pointer to a struct
// with mapstructure tags. A missing file is fine; one that exists but
// does not parse is an error.
func LoadConfig(serviceName string, cfg interface{}, opts ...LoaderOption) error {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = RealFileSystem{}
	}
	if lc.Environ == nil {
		lc.Environ = os.Environ
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(serviceName, lc)

	v := viper.New()
	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", files.ConfigFile, err)
		}
	}
	// .env never overrides variables already set in the process.
	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", files.EnvFile, err)
		}
	}
	applyEnv(v, EnvNames(cfg), lc.Environ())

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config for service %s: %w", serviceName, err)
	}
	return nil
}

// EnvPrefix marks environment variables that override configuration.
const EnvPrefix = "TASKFLOW_"

// envAliases maps unprefixed variable names to configuration keys.
var envAliases = map[string]string{
	"PLANNER_URL":           "llm.base_url",
	"PLANNER_KEY":           "llm.api_key",
	"PLANNER_MODEL":         "llm.model",
	"LLM_INPUT_MAX_CHARS":   "llm.max_input_chars",
	"TOOL_OUTPUT_MAX_CHARS": "tools.output_max_chars",
}

// EnvNames maps every overridable variable name to its config key, e.g.
// TASKFLOW_SCHEDULER_MAX_PARALLEL to scheduler.max_parallel. Keys come
// from the mapstructure tags of cfg; map-typed sections are file-only.
func EnvNames(cfg interface{}) map[string]string {
	names := make(map[string]string)
	t := reflect.TypeOf(cfg)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return names
	}
	collectKeys(t, "", func(key string) {
		names[EnvPrefix+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	})
	return names
}

func collectKeys(t reflect.Type, prefix string, emit func(string)) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			continue
		}
		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if opts == "squash" && ft.Kind() == reflect.Struct {
			collectKeys(ft, prefix, emit)
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		switch ft.Kind() {
		case reflect.Struct:
			collectKeys(ft, key, emit)
		case reflect.Map:
		default:
			emit(key)
		}
	}
}

// applyEnv sets the known variables of environ on v. Prefixed variables
// win over aliases.
func applyEnv(v *viper.Viper, names map[string]string, environ []string) {
	set := make(map[string]bool)
	for _, env := range environ {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if key, known := names[name]; known {
			v.Set(key, value)
			set[key] = true
		}
	}
	for _, env := range environ {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if key, known := envAliases[name]; known && !set[key] {
			v.Set(key, value)
		}
	}
}

package logger

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// componentLevels holds per-component minimum levels set from
// Config.Components. WithComponent applies them.
var componentLevels = struct {
	sync.RWMutex
	m map[string]zerolog.Level
}{m: make(map[string]zerolog.Level)}

// SetComponentLevel overrides the level of loggers later tagged with name.
func SetComponentLevel(name, level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return fmt.Errorf("logging.components.%s: invalid level %q", name, level)
	}
	componentLevels.Lock()
	componentLevels.m[name] = lvl
	componentLevels.Unlock()
	return nil
}

// ResetComponentLevels drops every override.
func ResetComponentLevels() {
	componentLevels.Lock()
	componentLevels.m = make(map[string]zerolog.Level)
	componentLevels.Unlock()
}

func componentLevel(name string) (zerolog.Level, bool) {
	componentLevels.RLock()
	defer componentLevels.RUnlock()
	lvl, ok := componentLevels.m[name]
	return lvl, ok
}

// lowestLevel returns the most verbose of base and every override, which
// becomes the zerolog global level so overrides below base still emit.
func lowestLevel(base zerolog.Level) zerolog.Level {
	componentLevels.RLock()
	defer componentLevels.RUnlock()
	for _, lvl := range componentLevels.m {
		if lvl < base {
			base = lvl
		}
	}
	return base
}

// Get returns the global logger tagged with a component name.
func Get(name string) *Logger {
	return GetGlobalLogger().WithComponent(name)
}

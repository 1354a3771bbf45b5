package bootstrap

import (
	"github.com/kbukum/taskflow/config"
	"github.com/kbukum/taskflow/logger"
)

// Config is the constraint for application configuration types.
// *config.AppConfig satisfies it.
type Config interface {
	GetServiceConfig() *config.BaseConfig
	GetLogging() *logger.Config
	ApplyDefaults()
	Validate() error
}

// Package logger provides structured logging for taskflow using zerolog.
//
// It supports multiple output formats (JSON, console), log level
// configuration, and component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//	  components:
//	    executor: "debug"
//
// # Usage
//
//	log := logger.Get("scheduler")
//	log.Info("run finished", logger.Fields(logger.FieldRunID, id, "failed", 2))
package logger

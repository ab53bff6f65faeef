package app

import (
	"strings"

	"github.com/tom2984/aac-sub001/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level and format,
// defaulting to info and JSON.
func ConfigureLogging(level, format string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	format = strings.TrimSpace(format)
	if format == "" {
		return logger.Init(level)
	}
	return logger.InitWithFormat(level, format)
}

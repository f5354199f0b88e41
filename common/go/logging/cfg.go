package logging

import "go.uber.org/zap/zapcore"

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`
	// Output is the list of sinks log records are written to.
	//
	// Defaults to stderr, leaving stdout to human-readable command output.
	Output []string `yaml:"output"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  zapcore.InfoLevel,
		Output: []string{"stderr"},
	}
}

// Package logging provides logging helpers.
package logging

import (
	"fmt"
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats accepted by Setup.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config builds a zap configuration for the given level and format.
func Config(level zapcore.Level, format string) (zap.Config, error) {
	switch format {
	case "", FormatConsole:
		format = FormatConsole
	case FormatJSON:
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", format)
	}

	return zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		DisableCaller:     false,
		DisableStacktrace: level > zapcore.DebugLevel,
		Sampling:          nil,
		Encoding:          format,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}, nil
}

// Setup initializes the global logger with a given level and format
// ("console" or "json") and redirects the standard library logger to it.
func Setup(level zapcore.Level, format string) *zap.Logger {
	config, err := Config(level, format)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := config.Build()
	if err != nil {
		log.Fatal(err)
	}

	setupWithLogger(logger)
	return logger
}

// setupWithLogger initializes logging with a given logger and its level.
func setupWithLogger(logger *zap.Logger) {
	zap.ReplaceGlobals(logger)

	if _, err := zap.RedirectStdLogAt(logger, zap.InfoLevel); err != nil {
		log.Fatal(err)
	}
}

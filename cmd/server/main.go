// Package main is the entry point for the ZtoRGB server.
package main

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ztorgb/server/internal/logging"
)

// Globals are flags shared by all commands.
type Globals struct {
	Config string `default:"config/server.yaml" help:"Path to configuration file." type:"path"`

	Log struct {
		Level  string `default:"info"    help:"${help_log_level}"  enum:"${enum_log_level}"`
		Format string `default:"console" help:"${help_log_format}" enum:"${enum_log_format}"`
	} `embed:"" prefix:"log-"`
}

// The cli struct represents all command-line commands, fields and flags.
// It's used for parsing the user input.
var cli struct {
	Globals `embed:""`

	Serve  serveCmd  `cmd:"" default:"1" help:"Run the HTTP server."`
	Render renderCmd `cmd:""             help:"Render a field, colorbar or colorwheel to a PNG file."`
}

// Additional variables for the kong parsers.
var (
	logLevels = []string{
		zap.DebugLevel.String(),
		zap.InfoLevel.String(),
		zap.WarnLevel.String(),
		zap.ErrorLevel.String(),
	}

	logFormats = []string{logging.FormatConsole, logging.FormatJSON}

	kongOptions = []kong.Option{
		kong.Name("ztorgb"),
		kong.Description("Complex field to RGB rendering server."),
		kong.Vars{
			"enum_log_level":  strings.Join(logLevels, ","),
			"enum_log_format": strings.Join(logFormats, ","),

			"help_log_level":  fmt.Sprintf("Log level: '%s'.", strings.Join(logLevels, "', '")),
			"help_log_format": fmt.Sprintf("Log format: '%s'.", strings.Join(logFormats, "', '")),
		},
		kong.DefaultEnvars("ZTORGB"),
	}
)

func main() {
	kctx := kong.Parse(&cli, kongOptions...)

	level, err := zapcore.ParseLevel(cli.Log.Level)
	kctx.FatalIfErrorf(err)

	logger := logging.Setup(level, cli.Log.Format)
	defer logger.Sync()

	kctx.FatalIfErrorf(kctx.Run(&cli.Globals, logger))
}

package dryerd

import (
	"log/slog"
	"os"
	"regexp"

	"github.com/mdouchement/dryerd/environment"
	"github.com/mdouchement/logger"
	"github.com/phsym/console-slog"
)

// NewLogger returns the logger of the dryerd commands.
// Sources are added to the records in development.
func NewLogger(debug bool) logger.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var h slog.Handler
	if environment.Development() {
		h = console.NewHandler(os.Stdout, &console.HandlerOptions{
			AddSource: true,
			Level:     level,
		})
	} else {
		h = logger.NewSlogTextHandler(os.Stdout, &logger.SlogTextOption{
			Level:            level,
			ForceColors:      true,
			ForceFormatting:  true,
			PrefixRE:         regexp.MustCompile(`^(\[.*?\])\s`),
			DisableTimestamp: true, // Provided by journalctl
		})
	}

	return logger.WrapSlogHandler(h)
}

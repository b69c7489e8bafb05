package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig selects where and how log lines are written.
type LogConfig struct {
	Level      string
	Format     string // "text" or "json"
	File       string
	WithCaller bool
}

// InitLogger configures the global zerolog logger. Logs go to stderr; when a
// file is set they are also written to it, rotated by size.
func InitLogger(config LogConfig) error {
	return initLogger(config, os.Stderr)
}

func initLogger(config LogConfig, stderr io.Writer) error {
	// default is json
	var logWriter io.Writer
	if config.Format == "text" {
		logWriter = zerolog.ConsoleWriter{Out: stderr, NoColor: !isTerminal(stderr)}
	} else {
		logWriter = stderr
	}

	if config.File != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.File,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, // days
				},
			})
	}

	logger := zerolog.New(logWriter).With().Timestamp()
	if config.WithCaller {
		logger = logger.Caller()
	}
	log.Logger = logger.Logger()

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return errors.Errorf("unknown log level %q", config.Level)
	}

	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config selects the level, format and output of the logger.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds the service logger. An unknown level falls back to info.
func New(cfg Config) *logrus.Logger {
	log := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	log.SetOutput(out)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("invalid log level %q, using info: %v", cfg.Level, err)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

// NewTestLog returns a debug level logger that discards its output.
func NewTestLog() *logrus.Logger {
	return New(Config{Level: "debug", Output: io.Discard})
}

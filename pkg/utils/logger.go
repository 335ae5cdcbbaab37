// pkg/utils/logger.go
package utils

import (
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config holds logger settings
type Config struct {
	LogLevel  string
	LogFormat string // "text" or "json"
	Pretty    bool
}

// Logger wraps logrus with a few helpers used across services
type Logger struct {
	*logrus.Logger
}

// NewLogger builds a logger from config, falling back to info/text
func NewLogger(cfg Config) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			PrettyPrint:     cfg.Pretty && level == logrus.TraceLevel,
		})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     cfg.Pretty,
		})
	}

	return &Logger{Logger: l}
}

// WithFunc returns an entry tagged with the calling function name
func (l *Logger) WithFunc() *logrus.Entry {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return l.WithField("func", "unknown")
	}
	name := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
		// keep only pkg.Type.Method
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
	}
	return l.WithField("func", name)
}

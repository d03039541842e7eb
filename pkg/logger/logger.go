package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a LogLevel.
// Unknown names fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case DEBUG:
		return logrus.DebugLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	case FATAL:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger wraps a logrus entry so callers can attach fields
// (subject, segment, stage) without losing the printf-style API.
type Logger struct {
	mu    sync.Mutex
	base  *logrus.Logger
	entry *logrus.Entry
}

var (
	defaultLogger *Logger
	once          sync.Once
)

type Config struct {
	Level      LogLevel
	Colorize   bool
	ShowCaller bool
	ShowTime   bool
	TimeFormat string
	JSON       bool
	Output     io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:      INFO,
		Colorize:   true,
		ShowTime:   true,
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "2006-01-02 15:04:05"
	}

	base := logrus.New()
	base.SetOutput(cfg.Output)
	base.SetLevel(cfg.Level.logrus())
	base.SetReportCaller(cfg.ShowCaller)
	if cfg.JSON {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimeFormat})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			ForceColors:      cfg.Colorize,
			DisableColors:    !cfg.Colorize,
			FullTimestamp:    cfg.ShowTime,
			DisableTimestamp: !cfg.ShowTime,
			TimestampFormat:  cfg.TimeFormat,
		})
	}

	return &Logger{base: base, entry: logrus.NewEntry(base)}
}

// GetLogger returns the process-wide logger, configured once from LOG_LEVEL.
func GetLogger() *Logger {
	once.Do(func() {
		cfg := DefaultConfig()
		if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
			cfg.Level = ParseLevel(envLevel)
		}
		defaultLogger = New(cfg)
	})
	return defaultLogger
}

// WithFields returns a child logger that stamps every line with fields.
// The child shares level and output with its parent.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithField is the single-key form of WithFields.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithField(key, value)}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base.SetLevel(level.logrus())
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base.SetOutput(w)
}

func (l *Logger) SetColorize(colorize bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tf, ok := l.base.Formatter.(*logrus.TextFormatter); ok {
		tf.ForceColors = colorize
		tf.DisableColors = !colorize
	}
}

func (l *Logger) SetShowCaller(show bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.base.SetReportCaller(show)
}

// Logrus exposes the underlying logger for libraries that accept one.
func (l *Logger) Logrus() *logrus.Logger {
	return l.base
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any) { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any) { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Fatalf logs at FATAL level and exits the program.
func (l *Logger) Fatalf(format string, args ...any) { l.entry.Fatalf(format, args...) }

// Package-level convenience functions using the default logger

func Debugf(format string, args ...any) { GetLogger().Debugf(format, args...) }
func Infof(format string, args ...any) { GetLogger().Infof(format, args...) }
func Warnf(format string, args ...any) { GetLogger().Warnf(format, args...) }
func Errorf(format string, args ...any) { GetLogger().Errorf(format, args...) }
func Fatalf(format string, args ...any) { GetLogger().Fatalf(format, args...) }

// WithFields returns a child of the default logger.
func WithFields(fields map[string]any) *Logger { return GetLogger().WithFields(fields) }

func SetLevel(level LogLevel) { GetLogger().SetLevel(level) }
func SetOutput(w io.Writer) { GetLogger().SetOutput(w) }
func SetColorize(colorize bool) { GetLogger().SetColorize(colorize) }
func SetShowCaller(show bool) { GetLogger().SetShowCaller(show) }

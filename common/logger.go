package common

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents standard logging levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LoggerConfig contains configuration for creating a logger
type LoggerConfig struct {
	Level      LogLevel // Minimum log level
	Format     string   // "json" or "text"
	AddCaller  bool     // Add caller information
	TimeFormat string   // Time format for logs
}

// DefaultLoggerConfig returns a logger config with sensible defaults
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:      LogLevelInfo,
		Format:     "text",
		AddCaller:  false,
		TimeFormat: time.RFC3339,
	}
}

// ParseLogLevel maps a configuration string onto a LogLevel. Unknown values
// fall back to info.
func ParseLogLevel(level string) LogLevel {
	switch LogLevel(level) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return LogLevel(level)
	case "verbose":
		return LogLevelDebug
	case "warning":
		return LogLevelWarn
	default:
		return LogLevelInfo
	}
}

// NewLogger creates a new configured logger instance
func NewLogger(config LoggerConfig) *logrus.Logger {
	logger := logrus.New()
	Configure(logger, config)
	return logger
}

// Configure applies config to an existing logger. The CLI uses it to adjust the
// global Logger once flags and config files are read.
func Configure(logger *logrus.Logger, config LoggerConfig) {
	switch config.Level {
	case LogLevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.TimeFormat == "" {
		config.TimeFormat = time.RFC3339
	}
	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: config.TimeFormat,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: config.TimeFormat,
			FullTimestamp:   true,
		})
	}

	logger.SetReportCaller(config.AddCaller)
	logger.SetOutput(&OutputSplitter{})
}

// DeployLogger is the logging capability the deployment packages depend on.
// Log is for progress the user should see, Verbose for detail only shown with
// debug logging enabled.
type DeployLogger interface {
	Log(args ...interface{})
	Error(args ...interface{})
	Warning(args ...interface{})
	Verbose(args ...interface{})
}

// ChannelLogger implements DeployLogger on top of logrus. Every entry carries a
// "channel" field naming the subsystem that produced it.
type ChannelLogger struct {
	entry *logrus.Entry
}

var _ DeployLogger = (*ChannelLogger)(nil)

// NewChannelLogger creates a channel logger. A nil logger uses the global Logger.
func NewChannelLogger(logger *logrus.Logger, channel string) *ChannelLogger {
	if logger == nil {
		logger = Logger
	}
	return &ChannelLogger{entry: logger.WithField("channel", channel)}
}

// WithField returns a copy of the channel logger with an additional field.
func (cl *ChannelLogger) WithField(key string, value interface{}) *ChannelLogger {
	return &ChannelLogger{entry: cl.entry.WithField(key, value)}
}

// WithFields returns a copy of the channel logger with additional fields.
func (cl *ChannelLogger) WithFields(fields map[string]interface{}) *ChannelLogger {
	return &ChannelLogger{entry: cl.entry.WithFields(logrus.Fields(fields))}
}

// Log writes an info entry.
func (cl *ChannelLogger) Log(args ...interface{}) {
	cl.entry.Info(args...)
}

// Error writes an error entry.
func (cl *ChannelLogger) Error(args ...interface{}) {
	cl.entry.Error(args...)
}

// Warning writes a warning entry.
func (cl *ChannelLogger) Warning(args ...interface{}) {
	cl.entry.Warn(args...)
}

// Verbose writes a debug entry.
func (cl *ChannelLogger) Verbose(args ...interface{}) {
	cl.entry.Debug(args...)
}

// LogOperation logs the start and end of an operation with timing
func LogOperation(logger DeployLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.Verbose(fmt.Sprintf("%s started", operation))

	err := fn()

	duration := time.Since(start)
	if err != nil {
		logger.Error(fmt.Sprintf("%s failed after %s: %v", operation, duration.Round(time.Millisecond), err))
		return err
	}

	logger.Log(fmt.Sprintf("%s completed in %s", operation, duration.Round(time.Millisecond)))
	return nil
}

// DiscardLogger is a DeployLogger that drops every entry.
type DiscardLogger struct{}

func (DiscardLogger) Log(args ...interface{})     {}
func (DiscardLogger) Error(args ...interface{})   {}
func (DiscardLogger) Warning(args ...interface{}) {}
func (DiscardLogger) Verbose(args ...interface{}) {}

package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level      string // Log level (e.g., "info", "debug", "error")
	FilePath   string // Optional path to a rotated JSON log file
	MaxSize    int    // Maximum size in megabytes before log rotation
	MaxBackups int    // Maximum number of old log files to retain
	MaxAge     int    // Maximum number of days to retain old log files
	Compress   bool   // Whether to compress rotated log files
	Console    bool   // Whether to also log to the console
	Output     io.Writer
}

// NewLogger returns a new logrus.Logger configured according to the provided LoggerConfig.
// Console output is human readable text on stderr; the file sink, when set, receives JSON.
func NewLogger(config LoggerConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	console := config.Output
	if console == nil {
		console = os.Stderr
	}

	text := &logrus.TextFormatter{
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
	}

	if config.FilePath == "" {
		logger.SetFormatter(text)
		if config.Console {
			logger.SetOutput(console)
		} else {
			logger.SetOutput(io.Discard)
		}
		return logger, nil
	}

	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	jsonFormat := &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyFunc:  "function",
		},
	}

	if !config.Console {
		logger.SetFormatter(jsonFormat)
		logger.SetOutput(fileWriter)
		return logger, nil
	}

	logger.SetFormatter(text)
	logger.SetOutput(console)
	logger.AddHook(&fileHook{writer: fileWriter, formatter: jsonFormat})
	return logger, nil
}

// fileHook writes every entry to a second sink with its own formatter.
type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// WithFields returns a logger entry with the specified fields.
func WithFields(logger logrus.FieldLogger, fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

// WithFile returns a logger entry with the specified file context.
func WithFile(logger logrus.FieldLogger, filePath string) *logrus.Entry {
	return logger.WithField("file", filePath)
}

// WithJob returns a logger entry tagged with a job ID and its input file.
func WithJob(logger logrus.FieldLogger, jobID, filePath string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"job":  jobID,
		"file": filePath,
	})
}

// WithStrategy returns a logger entry with the strategy name added.
func WithStrategy(logger logrus.FieldLogger, strategy string) *logrus.Entry {
	return logger.WithField("strategy", strategy)
}

// Discard returns a logger that drops everything. Used in tests and library callers
// that do not care about logs.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// DefaultConfig returns the default LoggerConfig.
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:      "info",
		FilePath:   "",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
		Console:    true,
	}
}

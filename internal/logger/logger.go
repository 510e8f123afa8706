package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger with file rotation and redaction.
type Logger struct {
	logger   zerolog.Logger
	rotator  *RotatingWriter
	redactor *Redactor
}

// Config holds logger configuration.
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path, empty disables the file writer
	Console   bool   // enable console output
	Pretty    bool   // pretty format for console
	Redaction bool   // enable sensitive data redaction
	MaxSize   int    // max size in MB before rotation
	MaxAge    int    // max age in days for rotated files
	Compress  bool   // compress rotated logs
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}

// New creates a logger writing to console and/or a size-rotated file. The
// resulting logger is also installed as the zerolog global.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer

	if cfg.Console {
		var consoleWriter io.Writer = os.Stdout
		if cfg.Pretty {
			consoleWriter = zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
		}
		writers = append(writers, consoleWriter)
	}

	var rotator *RotatingWriter
	if cfg.File != "" {
		maxSize := cfg.MaxSize
		if maxSize <= 0 {
			maxSize = DefaultConfig().MaxSize
		}
		rotator, err = NewRotatingWriter(cfg.File, maxSize, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, err
		}
		writers = append(writers, rotator)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		writer = redactor.Wrap(writer)
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{
		logger:   logger,
		rotator:  rotator,
		redactor: redactor,
	}, nil
}

// Close closes the file writer if one is open.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Debug starts a debug-level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info starts an info-level event.
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn starts a warn-level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error starts an error-level event.
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal starts a fatal-level event; the message call exits the process.
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// GetZerolog returns the underlying zerolog.Logger.
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// With creates a child logger context.
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

package observ

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig selects level, encoding and destination of the process log
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init replaces the process logger. Call once before starting goroutines.
func Init(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

// SetOutput points the logger at w; tests use it to capture or silence logs
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

// Logger exposes the underlying zerolog logger for components that want it
func Logger() *zerolog.Logger {
	return &logger
}

// Log writes an info event with structured fields
func Log(event string, kv map[string]any) {
	emit(logger.Info(), event, kv)
}

func Debug(event string, kv map[string]any) {
	emit(logger.Debug(), event, kv)
}

func Warn(event string, kv map[string]any) {
	emit(logger.Warn(), event, kv)
}

// Error logs err alongside the event fields
func Error(event string, err error, kv map[string]any) {
	emit(logger.Error().Err(err), event, kv)
}

func emit(e *zerolog.Event, event string, kv map[string]any) {
	if e == nil {
		return
	}
	e.Str("event", event).Fields(kv).Send()
}

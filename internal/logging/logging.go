// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"harmonic-scanner/internal/analysis"
	"harmonic-scanner/internal/models"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "harmonic-scanner", "logs", "harmonic.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	// Console writer
	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	// File writer with rotation
	if cfg.File {
		// Ensure log directory exists
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	// Create multi-writer
	var writer io.Writer
	if len(writers) == 0 {
		writer = os.Stderr
	} else if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	// Set log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Create logger
	logger := zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()

	return logger
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithTimeframe adds a timeframe to the logger context.
func WithTimeframe(logger zerolog.Logger, timeframe models.Timeframe) zerolog.Logger {
	return logger.With().Str("timeframe", string(timeframe)).Logger()
}

// WithPair adds both symbol and timeframe to the logger context.
func WithPair(logger zerolog.Logger, pair models.Pair) zerolog.Logger {
	return WithTimeframe(WithSymbol(logger, pair.Symbol), pair.Timeframe)
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogPattern logs an emitted pattern and its setup.
func LogPattern(logger zerolog.Logger, em models.Emission) {
	p, s := em.Pattern, em.Setup
	logger.Info().
		Str("event", "pattern").
		Str("pattern_id", p.ID).
		Str("symbol", p.Symbol).
		Str("timeframe", string(p.Timeframe)).
		Str("type", string(p.Type)).
		Str("direction", string(p.Direction)).
		Float64("confidence", p.Confidence).
		Bool("projected", p.Projected()).
		Float64("entry", s.Entry).
		Float64("stop_loss", s.StopLoss).
		Float64("risk_reward", s.RiskReward).
		Bool("valid", s.Valid).
		Msg("Harmonic pattern detected")
}

// LogScan logs the outcome of one scan cycle.
func LogScan(logger zerolog.Logger, result *analysis.ScanResult, duration time.Duration, err error) {
	event := logger.Info()
	if err != nil {
		event = logger.Warn().Err(err)
	}
	event.
		Str("event", "scan").
		Str("symbol", result.Pair.Symbol).
		Str("timeframe", string(result.Pair.Timeframe)).
		Str("status", result.Summary()).
		Int("candles", result.Candles).
		Int("swings", result.Swings).
		Int("windows", result.Windows).
		Int("candidates", result.Candidates).
		Dur("duration", duration).
		Msg("Scan cycle completed")
}

// LogCall logs a call to an external collaborator such as the candle store or Redis.
func LogCall(logger zerolog.Logger, component, operation string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "call").
		Str("component", component).
		Str("operation", operation).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Call failed")
	} else {
		event.Msg("Call completed")
	}
}

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	slogsampling "github.com/samber/slog-sampling"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug   LogLevel = "DEBUG"
	LevelInfo    LogLevel = "INFO"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

// Config holds the logger configuration.
type Config struct {
	Level LogLevel
	// Output defaults to stdout.
	Output io.Writer
	// File, when set, receives a copy of every record with size-based rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	DisableSampling       bool
	ThresholdSamplingTick time.Duration
	ThresholdSamplingMax  uint64
	ThresholdSamplingRate float64
	// EnableLevelSampling drops a share of records by level instead of by
	// repetition.
	EnableLevelSampling bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:                 LevelWarning, // Default to WARNING to prevent spam.
		MaxSizeMB:             20,
		MaxBackups:            3,
		MaxAgeDays:            14,
		ThresholdSamplingTick: 5 * time.Second,
		ThresholdSamplingMax:  10,   // Allow first 10 identical messages.
		ThresholdSamplingRate: 0.05, // Then only 5% of subsequent messages.
	}
}

// ParseLevel converts a LOG_LEVEL value. Unknown values fall back to WARNING.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "ERROR":
		return LevelError
	default:
		return LevelWarning
	}
}

// NewLogger creates a JSON logger with sampling and an optional rotating file.
func NewLogger(config *Config) *slog.Logger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(config.Level)}
	var handler slog.Handler = slog.NewJSONHandler(out, opts)

	if config.File != "" {
		file := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		}
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(file, opts))
	}

	if config.DisableSampling {
		return slog.New(handler)
	}

	if config.EnableLevelSampling {
		levelOption := slogsampling.CustomSamplingOption{
			Sampler: func(ctx context.Context, record slog.Record) float64 {
				switch {
				case record.Level >= slog.LevelWarn:
					return 1.0 // Never drop warnings and errors.
				case record.Level >= slog.LevelInfo:
					return 0.5
				default:
					return 0.1
				}
			},
		}
		return slog.New(slogmulti.Pipe(levelOption.NewMiddleware()).Handler(handler))
	}

	// Threshold sampling: the first N identical messages per tick pass, then
	// only a fraction of them.
	thresholdOption := slogsampling.ThresholdSamplingOption{
		Tick:      config.ThresholdSamplingTick,
		Threshold: config.ThresholdSamplingMax,
		Rate:      config.ThresholdSamplingRate,
		Matcher:   slogsampling.MatchByLevelAndMessage(),
	}
	return slog.New(slogmulti.Pipe(thresholdOption.NewMiddleware()).Handler(handler))
}

// parseLogLevel converts LogLevel to slog.Level.
func parseLogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// WithComponent adds a component field to the logger.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}

// LogPlaybackEvent logs playback-related events with consistent fields.
func LogPlaybackEvent(logger *slog.Logger, level slog.Level, msg string, mediaID string, state string, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("media_id", mediaID),
		slog.String("state", state),
		slog.String("event_type", "playback"),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(context.Background(), level, msg, allAttrs...)
}

// LogScanEvent logs catalog scan events.
func LogScanEvent(logger *slog.Logger, level slog.Level, msg string, root string, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("root", root),
		slog.String("event_type", "scan"),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(context.Background(), level, msg, allAttrs...)
}

// LogConfigEvent logs configuration-related events.
func LogConfigEvent(logger *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	allAttrs := []slog.Attr{
		slog.String("event_type", "config"),
	}
	allAttrs = append(allAttrs, attrs...)

	logger.LogAttrs(context.Background(), level, msg, allAttrs...)
}

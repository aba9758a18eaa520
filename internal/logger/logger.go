package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultRetentionDays is how long rolled log files are kept.
const DefaultRetentionDays = 3

// Options tunes the environment preset.
type Options struct {
	Level         string // debug, info, warn, error; empty keeps the preset level
	File          string // also write to this file, rolled daily, when set
	RetentionDays int    // rolled files older than this are removed (default 3)
}

// NewLogger creates a zap logger for the given environment.
// prod uses JSON output, local/dev use colored console output.
func NewLogger(env string, opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}

	if opts.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	buildOpts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.File != "" {
		days := opts.RetentionDays
		if days <= 0 {
			days = DefaultRetentionDays
		}
		buildOpts = append(buildOpts, teeFile(cfg, newDailyFile(opts.File, days)))
	}

	l, err := cfg.Build(buildOpts...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// teeFile mirrors every entry into w using the preset's encoding and level.
func teeFile(cfg zap.Config, w zapcore.WriteSyncer) zap.Option {
	enc := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	if cfg.Encoding == "console" {
		enc = zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	}
	fileCore := zapcore.NewCore(enc, w, cfg.Level)
	return zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})
}

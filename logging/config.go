package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Config selects and tunes a logging backend.
type Config struct {
	// Backend is "zap" (default) or "slog". "none" disables logging.
	Backend string `yaml:"backend" toml:"backend"`
	// Level is debug, info, warn or error.
	Level string `yaml:"level" toml:"level"`
	// Format is "json" (default) or "text" for console output.
	Format string `yaml:"format" toml:"format"`
	// File enables an additional rotating JSON log file (zap backend only).
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// DefaultConfig returns a zap JSON logger at info level without file output.
func DefaultConfig() Config {
	return Config{
		Backend:    "zap",
		Level:      "info",
		Format:     "json",
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// New builds a Logger from cfg. The returned close function flushes and
// releases backend resources.
func New(cfg Config) (Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case "", "zap":
		zl, closeFile := newZapLogger(cfg, level)
		adapter := NewZapAdapter(zl)
		return adapter, func() error {
			// Sync on stderr returns EINVAL on some platforms; only file errors matter.
			_ = adapter.Sync()
			return closeFile()
		}, nil
	case "slog":
		opts := &slog.HandlerOptions{Level: level.slogLevel()}
		var handler slog.Handler
		if cfg.Format == "text" {
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		return NewSlogAdapter(slog.New(handler)), func() error { return nil }, nil
	case "none":
		return NoOpLogger{}, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown logging backend %q", cfg.Backend)
	}
}

package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/animus-labs/cbas-go/internal/platform/env"
)

type Config struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func ConfigFromEnv() (Config, error) {
	maxSize, err := env.Int("CBAS_LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	maxBackups, err := env.Int("CBAS_LOG_MAX_BACKUPS", 5)
	if err != nil {
		return Config{}, err
	}
	maxAge, err := env.Int("CBAS_LOG_MAX_AGE_DAYS", 14)
	if err != nil {
		return Config{}, err
	}
	compress, err := env.Bool("CBAS_LOG_COMPRESS", true)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Level:      env.String("CBAS_LOG_LEVEL", "info"),
		File:       strings.TrimSpace(env.String("CBAS_LOG_FILE", "")),
		MaxSizeMB:  maxSize,
		MaxBackups: maxBackups,
		MaxAgeDays: maxAge,
		Compress:   compress,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	if c.File != "" && c.MaxSizeMB < 1 {
		return errors.New("CBAS_LOG_MAX_SIZE_MB must be >= 1")
	}
	if c.MaxBackups < 0 {
		return errors.New("CBAS_LOG_MAX_BACKUPS must be >= 0")
	}
	if c.MaxAgeDays < 0 {
		return errors.New("CBAS_LOG_MAX_AGE_DAYS must be >= 0")
	}
	return nil
}

// New builds the JSON logger. The returned closer releases the rotating file, if any.
func New(cfg Config, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	var out io.Writer = stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(stdout, rotating)
		closer = rotating
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

func parseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("CBAS_LOG_LEVEL %q is invalid", value)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

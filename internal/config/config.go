package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the engine, the scheduler and the ops bot.
type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"taskflow.db"`

	DefaultTimezone     string        `env:"DEFAULT_TIMEZONE" envDefault:"UTC"`
	MaxOccurrences      int           `env:"MAX_OCCURRENCES" envDefault:"5000"`
	OccurrenceBatchSize int           `env:"OCCURRENCE_BATCH_SIZE" envDefault:"500"`
	DateChangeTolerance time.Duration `env:"DATE_CHANGE_TOLERANCE" envDefault:"60s"`
	SyncTimeout         time.Duration `env:"SYNC_TIMEOUT" envDefault:"30s"`

	SweepAt      string `env:"SWEEP_AT" envDefault:"00:05"`
	SweepWorkers int    `env:"SWEEP_WORKERS" envDefault:"4"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// TelegramToken enables the ops bot when set.
	TelegramToken    string  `env:"TELEGRAM_TOKEN"`
	TelegramAdminIDs []int64 `env:"TELEGRAM_ADMIN_IDS" envSeparator:","`
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MaxOccurrences <= 0 {
		return fmt.Errorf("MAX_OCCURRENCES must be positive")
	}
	if c.OccurrenceBatchSize <= 0 {
		return fmt.Errorf("OCCURRENCE_BATCH_SIZE must be positive")
	}
	if c.SweepWorkers <= 0 {
		return fmt.Errorf("SWEEP_WORKERS must be positive")
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("SYNC_TIMEOUT must be positive")
	}
	if c.DateChangeTolerance < 0 {
		return fmt.Errorf("DATE_CHANGE_TOLERANCE must not be negative")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	if c.TelegramToken != "" && len(c.TelegramAdminIDs) == 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_IDS is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

// Location returns the default zone for tasks without their own timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BotEnabled reports whether the ops bot should run.
func (c Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

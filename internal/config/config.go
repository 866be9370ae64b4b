// Package config provides configuration management for the harmonic scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"harmonic-scanner/internal/analysis/harmonic"
	"harmonic-scanner/internal/errors"
	"harmonic-scanner/internal/logging"
	"harmonic-scanner/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Detection DetectionConfig `mapstructure:"detection"`
	Setup     SetupConfig     `mapstructure:"setup"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DetectionConfig holds pattern detection parameters.
type DetectionConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"` // 0-100
	SwingWindow   int     `mapstructure:"swing_window"`   // odd, >= 3
	CandleWindow  int     `mapstructure:"candle_window"`  // candles per snapshot
	Projection    bool    `mapstructure:"projection"`
}

// SetupConfig holds trade setup derivation parameters.
type SetupConfig struct {
	StopBufferPercent float64 `mapstructure:"stop_buffer_percent"`
	ValidityBars      int     `mapstructure:"validity_bars"`
	PriceDecimals     int32   `mapstructure:"price_decimals"`
}

// ScannerConfig holds periodic scan configuration.
type ScannerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Workers  int           `mapstructure:"workers"`
	Pairs    []models.Pair `mapstructure:"pairs"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"` // "sqlite", "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// PublishConfig holds downstream publication configuration.
type PublishConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis pub/sub configuration.
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
	Path    string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/harmonic-scanner"
	}
	return filepath.Join(home, ".config", "harmonic-scanner")
}

// Default returns the configuration used when no config file overrides it.
func Default() *Config {
	return defaults(DefaultConfigDir())
}

func defaults(dir string) *Config {
	dc := harmonic.DefaultConfig()
	return &Config{
		Detection: DetectionConfig{
			MinConfidence: dc.Emitter.MinConfidence,
			SwingWindow:   dc.SwingWindow,
			CandleWindow:  500,
			Projection:    dc.Projection,
		},
		Setup: SetupConfig{
			StopBufferPercent: dc.Emitter.StopBufferPercent,
			ValidityBars:      dc.Emitter.ValidityBars,
			PriceDecimals:     dc.Emitter.PriceDecimals,
		},
		Scanner: ScannerConfig{
			Interval: 5 * time.Minute,
			Workers:  4,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(dir, "harmonic.db"),
		},
		Publish: PublishConfig{
			Redis: RedisConfig{
				Addr:          "localhost:6379",
				ChannelPrefix: "harmonic",
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    true,
			Path:    filepath.Join(dir, "logs", "harmonic.log"),
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is written from the template and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := loadDotEnv(configDir); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaults(configDir)
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env from the working directory and the config directory.
// Variables already set in the environment win.
func loadDotEnv(configDir string) error {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HARMONIC_MIN_CONFIDENCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.NewValidationError("HARMONIC_MIN_CONFIDENCE", v, "must be a number")
		}
		cfg.Detection.MinConfidence = f
	}
	if v := os.Getenv("HARMONIC_DB_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("HARMONIC_POSTGRES_DSN"); v != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("HARMONIC_REDIS_ADDR"); v != "" {
		cfg.Publish.Redis.Enabled = true
		cfg.Publish.Redis.Addr = v
	}
	if v := os.Getenv("HARMONIC_REDIS_PASSWORD"); v != "" {
		cfg.Publish.Redis.Password = v
	}
	if v := os.Getenv("HARMONIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 100 {
		return errors.NewValidationError("detection.min_confidence", c.Detection.MinConfidence, "must be between 0 and 100")
	}
	if c.Detection.SwingWindow < 3 || c.Detection.SwingWindow%2 == 0 {
		return errors.NewValidationError("detection.swing_window", c.Detection.SwingWindow, "must be an odd number >= 3")
	}
	if c.Detection.CandleWindow < 5 {
		return errors.NewValidationError("detection.candle_window", c.Detection.CandleWindow, "must be at least 5")
	}

	if c.Setup.StopBufferPercent < 0 || c.Setup.StopBufferPercent >= 100 {
		return errors.NewValidationError("setup.stop_buffer_percent", c.Setup.StopBufferPercent, "must be in [0, 100)")
	}
	if c.Setup.ValidityBars < 1 {
		return errors.NewValidationError("setup.validity_bars", c.Setup.ValidityBars, "must be positive")
	}

	if c.Scanner.Interval <= 0 {
		return errors.NewValidationError("scanner.interval", c.Scanner.Interval, "must be positive")
	}
	if c.Scanner.Workers < 1 {
		return errors.NewValidationError("scanner.workers", c.Scanner.Workers, "must be at least 1")
	}
	for _, p := range c.Scanner.Pairs {
		if p.Symbol == "" {
			return errors.NewValidationError("scanner.pairs", p.String(), "symbol is required")
		}
		if !p.Timeframe.Valid() {
			return errors.NewValidationError("scanner.pairs", p.String(), "unsupported timeframe")
		}
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.NewValidationError("storage.sqlite_path", "", "required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.NewValidationError("storage.postgres_dsn", "", "required for the postgres driver")
		}
	default:
		return errors.NewValidationError("storage.driver", c.Storage.Driver, "must be 'sqlite' or 'postgres'")
	}

	if c.Publish.Redis.Enabled && c.Publish.Redis.Addr == "" {
		return errors.NewValidationError("publish.redis.addr", "", "required when redis publishing is enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewValidationError("logging.level", c.Logging.Level, "must be debug, info, warn or error")
	}

	return nil
}

// DetectorConfig converts the detection and setup sections into the detector's configuration.
func (c *Config) DetectorConfig() harmonic.Config {
	return harmonic.Config{
		SwingWindow: c.Detection.SwingWindow,
		Projection:  c.Detection.Projection,
		Emitter: harmonic.EmitterConfig{
			MinConfidence:     c.Detection.MinConfidence,
			StopBufferPercent: c.Setup.StopBufferPercent,
			ValidityBars:      c.Setup.ValidityBars,
			PriceDecimals:     c.Setup.PriceDecimals,
		},
	}
}

// LogConfig converts the logging section into the logger's configuration.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.Logging.Level
	lc.Console = c.Logging.Console
	lc.File = c.Logging.File
	if c.Logging.Path != "" {
		lc.FilePath = c.Logging.Path
	}
	return lc
}

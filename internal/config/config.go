package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Screener ScreenerConfig `yaml:"screener"`
	Output   OutputConfig   `yaml:"output"`
}

// ExchangeConfig holds exchange client settings.
type ExchangeConfig struct {
	BaseURL   string `yaml:"base_url"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute
}

// ScreenerConfig holds screening pipeline settings.
type ScreenerConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
	Window  int           `yaml:"window"` // visible bars per timeframe
	Top     int           `yaml:"top"`    // universe size by 24h volume
}

// OutputConfig holds result output settings.
type OutputConfig struct {
	Dir      string `yaml:"dir"`      // directory for CSV results
	Database string `yaml:"database"` // sqlite path, empty disables history
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			BaseURL:   "https://www.okx.com",
			RateLimit: 120,
		},
		Screener: ScreenerConfig{
			Workers: 5,
			Timeout: 15 * time.Minute,
			Window:  100,
			Top:     195,
		},
		Output: OutputConfig{
			Dir: ".",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return applyEnv(cfg), nil
}

func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("OKX_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("PERPSCAN_DB"); v != "" {
		cfg.Output.Database = v
	}
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange base_url is required")
	}
	if c.Exchange.RateLimit < 1 {
		return fmt.Errorf("rate_limit must be at least 1")
	}
	if c.Screener.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.Screener.Window < 1 {
		return fmt.Errorf("window must be at least 1")
	}
	if c.Screener.Top < 1 {
		return fmt.Errorf("top must be at least 1")
	}
	return nil
}

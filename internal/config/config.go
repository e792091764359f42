package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		APIURL   string `yaml:"api_url"`
	} `yaml:"telegram"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Storage struct {
		BaseDir     string `yaml:"base_dir"`
		ArtifactDir string `yaml:"artifact_dir"`
	} `yaml:"storage"`
	Model struct {
		Path       string `yaml:"path"`
		ServiceURL string `yaml:"service_url"`
	} `yaml:"model"`
	Governor struct {
		Window    time.Duration `yaml:"window"`
		MaxCalls  int           `yaml:"max_calls"`
		RedisAddr string        `yaml:"redis_addr"`
	} `yaml:"governor"`
	Fetch struct {
		MaxRetries  int           `yaml:"max_retries"`
		Backoff     time.Duration `yaml:"backoff"`
		Period      string        `yaml:"period"`
		Interval    string        `yaml:"interval"`
		PrimaryURL  string        `yaml:"primary_url"`
		FallbackURL string        `yaml:"fallback_url"`
	} `yaml:"fetch"`
	Dispatcher struct {
		Workers int `yaml:"workers"`
	} `yaml:"dispatcher"`
	Schedule struct {
		RefreshCron string `yaml:"refresh_cron"`
		JanitorCron string `yaml:"janitor_cron"`
	} `yaml:"schedule"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Path returns the config file location, honouring CONFIG_PATH.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyEnv() error {
	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("MODEL_SERVICE_URL"); v != "" {
		c.Model.ServiceURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Governor.RedisAddr = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REFRESH_CRON"); v != "" {
		c.Schedule.RefreshCron = v
	}
	if v := os.Getenv("RATE_WINDOW"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("RATE_WINDOW: %w", err)
		}
		c.Governor.Window = d
	}
	if v := os.Getenv("RATE_MAX_CALLS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_MAX_CALLS: %w", err)
		}
		c.Governor.MaxCalls = n
	}
	if v := os.Getenv("FETCH_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FETCH_MAX_RETRIES: %w", err)
		}
		c.Fetch.MaxRetries = n
	}
	if v := os.Getenv("FETCH_BACKOFF"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("FETCH_BACKOFF: %w", err)
		}
		c.Fetch.Backoff = d
	}
	return nil
}

// parseDuration accepts Go durations ("90s") or a bare number of seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func (c *Config) applyDefaults() {
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = "https://api.telegram.org"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/stock_insight.db"
	}
	if c.Storage.BaseDir == "" {
		c.Storage.BaseDir = "."
	}
	if c.Storage.ArtifactDir == "" {
		c.Storage.ArtifactDir = "static/plots"
	}
	if c.Model.Path == "" {
		c.Model.Path = "configs/model.yaml"
	}
	if c.Governor.Window == 0 {
		c.Governor.Window = 60 * time.Second
	}
	if c.Governor.MaxCalls == 0 {
		c.Governor.MaxCalls = 10
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = 5
	}
	if c.Fetch.Backoff == 0 {
		c.Fetch.Backoff = 3 * time.Second
	}
	if c.Fetch.Period == "" {
		c.Fetch.Period = "10y"
	}
	if c.Fetch.Interval == "" {
		c.Fetch.Interval = "1d"
	}
	if c.Fetch.PrimaryURL == "" {
		c.Fetch.PrimaryURL = "https://query1.finance.yahoo.com"
	}
	if c.Fetch.FallbackURL == "" {
		c.Fetch.FallbackURL = "https://query2.finance.yahoo.com"
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = 4
	}
	if c.Schedule.JanitorCron == "" {
		c.Schedule.JanitorCron = "0 */15 * * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Governor.Window <= 0 {
		return fmt.Errorf("governor.window must be positive")
	}
	if c.Governor.MaxCalls <= 0 {
		return fmt.Errorf("governor.max_calls must be positive")
	}
	if c.Fetch.MaxRetries <= 0 {
		return fmt.Errorf("fetch.max_retries must be positive")
	}
	if c.Fetch.Backoff < 0 {
		return fmt.Errorf("fetch.backoff must not be negative")
	}
	if c.Dispatcher.Workers <= 0 {
		return fmt.Errorf("dispatcher.workers must be positive")
	}
	return nil
}

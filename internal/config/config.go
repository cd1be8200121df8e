package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Terminal  TerminalConfig  `yaml:"terminal"`
	Data      DataConfig      `yaml:"data"`
	Build     BuildConfig     `yaml:"build"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Insight   InsightConfig   `yaml:"insight"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Web       WebConfig       `yaml:"web"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	SecretKey string          `yaml:"secret_key"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type TerminalConfig struct {
	BridgeURL    string `yaml:"bridge_url"`
	BinaryPath   string `yaml:"binary_path"`
	Login        string `yaml:"login"`
	Password     string `yaml:"password"`
	Server       string `yaml:"server"`
	LaunchWaitS  int    `yaml:"launch_wait_seconds"`
	SignalWaitS  int    `yaml:"signal_wait_seconds"`
}

type DataConfig struct {
	CacheDir      string `yaml:"cache_dir"`
	CacheTTLMin   int    `yaml:"cache_ttl_minutes"`
	MirrorDir     string `yaml:"mirror_dir"`
	ProviderURL   string `yaml:"provider_url"`
	Retries       int    `yaml:"retries"`
	BackoffBaseS  int    `yaml:"backoff_base_seconds"`
	AllowFallback bool   `yaml:"allow_fallback"`
}

type BuildConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type WatchdogConfig struct {
	Enabled          bool `yaml:"enabled"`
	IntervalSeconds  int  `yaml:"interval_seconds"`
	HeartbeatMaxAgeS int  `yaml:"heartbeat_max_age_seconds"`
}

type InsightConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WebConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	// Credentials may live in .env next to the config; missing file is fine.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TERMINAL_LOGIN"); v != "" {
		cfg.Terminal.Login = v
	}
	if v := os.Getenv("TERMINAL_PASSWORD"); v != "" {
		cfg.Terminal.Password = v
	}
	if v := os.Getenv("TERMINAL_SERVER"); v != "" {
		cfg.Terminal.Server = v
	}
	if v := os.Getenv("TERMINAL_PATH"); v != "" {
		cfg.Terminal.BinaryPath = v
	}
	if v := os.Getenv("INSIGHT_API_KEY"); v != "" {
		cfg.Insight.APIKey = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Terminal.BridgeURL == "" {
		cfg.Terminal.BridgeURL = "http://127.0.0.1:18812"
	}
	if cfg.Terminal.LaunchWaitS == 0 {
		cfg.Terminal.LaunchWaitS = 30
	}
	if cfg.Terminal.SignalWaitS == 0 {
		cfg.Terminal.SignalWaitS = 30
	}
	if cfg.Data.CacheDir == "" {
		cfg.Data.CacheDir = "data/cache"
	}
	if cfg.Data.CacheTTLMin == 0 {
		cfg.Data.CacheTTLMin = 60
	}
	if cfg.Data.ProviderURL == "" {
		cfg.Data.ProviderURL = "https://query1.finance.yahoo.com"
	}
	if cfg.Data.Retries == 0 {
		cfg.Data.Retries = 3
	}
	if cfg.Data.BackoffBaseS == 0 {
		cfg.Data.BackoffBaseS = 2
	}
	if cfg.Build.Workers == 0 {
		cfg.Build.Workers = 2
	}
	if cfg.Build.QueueSize == 0 {
		cfg.Build.QueueSize = 16
	}
	if cfg.Watchdog.IntervalSeconds == 0 {
		cfg.Watchdog.IntervalSeconds = 10
	}
	if cfg.Watchdog.HeartbeatMaxAgeS == 0 {
		cfg.Watchdog.HeartbeatMaxAgeS = 60
	}
	if cfg.Insight.Model == "" {
		cfg.Insight.Model = "deepseek-chat"
	}
	if cfg.Insight.TimeoutSeconds == 0 {
		cfg.Insight.TimeoutSeconds = 60
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/robopilot.db"
	}
}

func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key is required (set SECRET_KEY)")
	}
	if c.Insight.Enabled && c.Insight.APIKey == "" {
		return fmt.Errorf("insight.api_key is required when insight is enabled")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Data.CacheTTLMin) * time.Minute
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Data.BackoffBaseS) * time.Second
}

func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Watchdog.IntervalSeconds) * time.Second
}

func (c *Config) HeartbeatMaxAge() time.Duration {
	return time.Duration(c.Watchdog.HeartbeatMaxAgeS) * time.Second
}

func (c *Config) LaunchWait() time.Duration {
	return time.Duration(c.Terminal.LaunchWaitS) * time.Second
}

func (c *Config) SignalWait() time.Duration {
	return time.Duration(c.Terminal.SignalWaitS) * time.Second
}

func (c *Config) InsightTimeout() time.Duration {
	return time.Duration(c.Insight.TimeoutSeconds) * time.Second
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvFile is loaded into the environment by LoadWithEnv when it exists.
// Variables already set in the environment win.
const EnvFile = ".env"

type Config struct {
	Monitor MonitorConfig  `yaml:"monitor"`
	Storage StorageConfig  `yaml:"storage"`
	Log     LogConfig      `yaml:"log"`
	Targets []TargetConfig `yaml:"targets"`
}

type MonitorConfig struct {
	Interval    string `yaml:"interval"`
	Timeout     string `yaml:"timeout"`
	Concurrency int    `yaml:"concurrency"`
	UserAgent   string `yaml:"user_agent"`
}

type StorageConfig struct {
	Driver         string `yaml:"driver"`
	DataDir        string `yaml:"data_dir"`
	SaveAttempts   int    `yaml:"save_attempts"`
	SaveRetryDelay string `yaml:"save_retry_delay"`
}

type LogConfig struct {
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TargetConfig seeds the store at startup.
type TargetConfig struct {
	URL string `yaml:"url"`
}

func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Interval:    "5s",
			Timeout:     "10s",
			Concurrency: 32,
			UserAgent:   "Upquack/1.0 (Uptime Monitor)",
		},
		Storage: StorageConfig{
			Driver:         "json",
			DataDir:        "data",
			SaveAttempts:   3,
			SaveRetryDelay: "200ms",
		},
		Log: LogConfig{
			Dir:        "log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Targets: []TargetConfig{},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

func LoadWithEnv(path string) (*Config, error) {
	if err := loadEnvFile(EnvFile); err != nil {
		return nil, err
	}

	config, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return config, nil
}

func loadEnvFile(name string) error {
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("loading %s: %w", name, err)
	}
	return nil
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("UPQUACK_INTERVAL"); v != "" {
		c.Monitor.Interval = v
	}
	if v := os.Getenv("UPQUACK_TIMEOUT"); v != "" {
		c.Monitor.Timeout = v
	}
	if v := os.Getenv("UPQUACK_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitor.Concurrency = n
		}
	}
	if v := os.Getenv("UPQUACK_USER_AGENT"); v != "" {
		c.Monitor.UserAgent = v
	}
	if v := os.Getenv("UPQUACK_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("UPQUACK_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("UPQUACK_LOG_DIR"); v != "" {
		c.Log.Dir = v
	}
	if v := os.Getenv("UPQUACK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("UPQUACK_TARGETS"); v != "" {
		for _, url := range strings.Split(v, ",") {
			if url = strings.TrimSpace(url); url != "" {
				c.Targets = append(c.Targets, TargetConfig{URL: url})
			}
		}
	}
}

func (c *Config) Validate() error {
	if err := positiveDuration("interval", c.Monitor.Interval); err != nil {
		return err
	}
	if err := positiveDuration("timeout", c.Monitor.Timeout); err != nil {
		return err
	}
	if c.Monitor.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	switch c.Storage.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Storage.SaveAttempts < 1 {
		return fmt.Errorf("save_attempts must be at least 1")
	}
	if c.Storage.SaveRetryDelay != "" {
		if _, err := time.ParseDuration(c.Storage.SaveRetryDelay); err != nil {
			return fmt.Errorf("invalid save_retry_delay %q: %w", c.Storage.SaveRetryDelay, err)
		}
	}

	if c.Log.Dir == "" {
		return fmt.Errorf("log dir is required")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	for i, target := range c.Targets {
		if target.URL == "" {
			return fmt.Errorf("target[%d]: url is required", i)
		}
	}

	return nil
}

func positiveDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

func (c *MonitorConfig) GetInterval() time.Duration {
	return parseDuration(c.Interval, 5*time.Second)
}

func (c *MonitorConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

func (c *StorageConfig) GetSaveRetryDelay() time.Duration {
	return parseDuration(c.SaveRetryDelay, 200*time.Millisecond)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

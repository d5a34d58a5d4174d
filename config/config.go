// Package config loads service configuration from the environment (with
// an optional .env file) and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"charting-systemv1/internal/indicator"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the indicator engine service.
type Config struct {
	ServiceName     string        `yaml:"service_name"`
	LogLevel        string        `yaml:"log_level"`
	HTTPAddr        string        `yaml:"http_addr"`
	Capacity        int           `yaml:"capacity"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	FanoutBuffer    int           `yaml:"fanout_buffer"`

	// Empty SQLitePath disables the bar archive.
	SQLitePath       string `yaml:"sqlite_path"`
	ArchiveBatchSize int    `yaml:"archive_batch_size"`
	// ArchiveRetention is the number of bars kept per symbol by the periodic
	// prune; 0 keeps everything.
	ArchiveRetention int `yaml:"archive_retention"`

	// Empty RedisAddr disables record publication and remote commands.
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	CommandChannel string `yaml:"command_channel"`
	PublishPrefix  string `yaml:"publish_prefix"`

	// IndicatorSpecs is the INDICATOR_CONFIGS shorthand, e.g. "SMA:200,EMA:9".
	IndicatorSpecs string            `yaml:"indicator_configs"`
	Indicators     []IndicatorConfig `yaml:"indicators"`
}

// IndicatorConfig declares an extra catalog entry.
//
//	indicators:
//	  - id: BB_50
//	    name: Bollinger (50, 2.5)
//	    kind: BB
//	    params: {period: 50, stdDevMultiplier: 2.5}
type IndicatorConfig struct {
	ID     string             `yaml:"id"`
	Name   string             `yaml:"name"`
	Kind   string             `yaml:"kind"`
	Params map[string]float64 `yaml:"params"`
}

// Load reads .env (if present), then environment variables with defaults,
// then the YAML file at path. An empty path falls back to CONFIG_FILE;
// if that is empty too no file is read.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:      getEnv("SERVICE_NAME", "indengine"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPAddr:         getEnv("INDENGINE_HTTP_ADDR", ":9095"),
		Capacity:         getEnvInt("BAR_CAPACITY", 1000),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		FanoutBuffer:     getEnvInt("FANOUT_BUFFER", 256),
		SQLitePath:       getEnv("SQLITE_PATH", "data/bars.db"),
		ArchiveBatchSize: getEnvInt("ARCHIVE_BATCH_SIZE", 100),
		ArchiveRetention: getEnvInt("ARCHIVE_RETENTION", 10000),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		CommandChannel:   getEnv("COMMAND_CHANNEL", "cmd:indicators"),
		PublishPrefix:    getEnv("PUBLISH_PREFIX", "pub:ind"),
		IndicatorSpecs:   getEnv("INDICATOR_CONFIGS", ""),
	}

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Capacity < 1 {
		errs = append(errs, fmt.Errorf("capacity must be >= 1, got %d", c.Capacity))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.FanoutBuffer < 1 {
		errs = append(errs, fmt.Errorf("fanout_buffer must be >= 1, got %d", c.FanoutBuffer))
	}
	if c.ArchiveRetention < 0 {
		errs = append(errs, fmt.Errorf("archive_retention must be >= 0, got %d", c.ArchiveRetention))
	}
	if c.ArchiveRetention > 0 && c.ArchiveRetention < c.Capacity {
		errs = append(errs, fmt.Errorf("archive_retention %d is below capacity %d", c.ArchiveRetention, c.Capacity))
	}
	return errors.Join(errs...)
}

// Definitions builds the extra catalog entries: YAML indicators first,
// then INDICATOR_CONFIGS entries.
func (c *Config) Definitions() ([]indicator.Definition, error) {
	defs := make([]indicator.Definition, 0, len(c.Indicators))
	for _, ic := range c.Indicators {
		kind, err := indicator.ParseKind(ic.Kind)
		if err != nil {
			return nil, fmt.Errorf("indicator %s: %w", ic.ID, err)
		}
		d, err := indicator.NewDefinition(ic.ID, ic.Name, kind, ic.Params)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return append(defs, indicator.ParseIndicatorSpecs(c.IndicatorSpecs)...), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

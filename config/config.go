// Package config 进程级配置：日志级别、重试策略与存储后端，以 YAML 文件提供。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/favbox/chainkit/caller"
	"github.com/favbox/chainkit/internal/logging"
	"github.com/favbox/chainkit/store"
	"github.com/favbox/chainkit/store/memory"
	"github.com/favbox/chainkit/store/redis"
	"github.com/favbox/chainkit/store/sqlite"
)

// 存储驱动名称。
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config 配置文件的结构。
type Config struct {
	Log   LogConfig   `yaml:"log"`
	Retry RetryConfig `yaml:"retry"`
	Store StoreConfig `yaml:"store"`
}

// LogConfig 日志配置。
type LogConfig struct {
	// Level debug、info、warn、error
	Level string `yaml:"level"`
}

// RetryConfig 重试策略，对应 caller 包的选项。
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Factor         float64       `yaml:"factor"`
	Jitter         float64       `yaml:"jitter"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// StoreConfig 存储后端。
type StoreConfig struct {
	Driver string       `yaml:"driver"`
	Redis  RedisConfig  `yaml:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Default 返回默认配置：info 日志、caller 默认重试策略、内存存储。
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Retry: RetryConfig{
			MaxRetries:   caller.DefaultMaxRetries,
			InitialDelay: caller.DefaultInitialDelay,
			MaxDelay:     caller.DefaultMaxDelay,
			Factor:       caller.DefaultFactor,
			Jitter:       caller.DefaultJitter,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: redis.DefaultPrefix},
			SQLite: SQLiteConfig{Path: "chainkit.db"},
		},
	}
}

// Load 读取 path 处的 YAML 文件，未出现的字段保留默认值。path 为空时返回默认配置。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围。
func (c *Config) Validate() error {
	r := c.Retry
	switch {
	case r.MaxRetries < 0:
		return fmt.Errorf("retry.max_retries must not be negative")
	case r.InitialDelay < 0 || r.MaxDelay < 0:
		return fmt.Errorf("retry delays must not be negative")
	case r.Factor < 1:
		return fmt.Errorf("retry.factor must be at least 1, got %v", r.Factor)
	case r.Jitter < 0 || r.Jitter > 1:
		return fmt.Errorf("retry.jitter must be within [0,1], got %v", r.Jitter)
	}
	switch c.Store.Driver {
	case DriverMemory, DriverRedis, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// Logger 按日志级别创建 logger。
func (c *Config) Logger() *slog.Logger {
	return logging.New(logging.ParseLevel(c.Log.Level))
}

// Caller 返回与重试配置对应的 caller 选项，extra 追加在后面。
func (c *Config) Caller(extra ...caller.Option) []caller.Option {
	r := c.Retry
	opts := []caller.Option{
		caller.WithMaxRetries(r.MaxRetries),
		caller.WithInitialDelay(r.InitialDelay),
		caller.WithMaxDelay(r.MaxDelay),
		caller.WithFactor(r.Factor),
		caller.WithJitter(r.Jitter),
		caller.WithMaxConcurrency(r.MaxConcurrency),
	}
	return append(opts, extra...)
}

// OpenStore 按存储配置创建 Store。
func (c *Config) OpenStore() (store.Store, error) {
	s := c.Store
	switch s.Driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverRedis:
		return redis.New(s.Redis.Addr, s.Redis.Password, s.Redis.DB,
			redis.WithPrefix(s.Redis.Prefix), redis.WithTTL(s.Redis.TTL)), nil
	case DriverSQLite:
		return sqlite.Open(s.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", s.Driver)
	}
}

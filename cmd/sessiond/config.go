package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend types accepted in backend.type.
const (
	backendSQLite    = "sqlite"
	backendPostgres  = "postgres"
	backendRedis     = "redis"
	backendMemcached = "memcached"
)

// Config is the sessiond configuration file.
type Config struct {
	Listen  string        `yaml:"listen"`
	Log     LogConfig     `yaml:"log"`
	Backend BackendConfig `yaml:"backend"`
	Session SessionConfig `yaml:"session"`
	Reaper  ReaperConfig  `yaml:"reaper"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type BackendConfig struct {
	Type string `yaml:"type"`
	// DSN is the database path or URL for sqlite and postgres.
	DSN             string          `yaml:"dsn"`
	MigrationsTable string          `yaml:"migrations_table"`
	Redis           RedisConfig     `yaml:"redis"`
	Memcached       MemcachedConfig `yaml:"memcached"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type MemcachedConfig struct {
	Servers []string      `yaml:"servers"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	CookieName string        `yaml:"cookie_name"`
	Secure     *bool         `yaml:"secure"`
	MaxBytes   int           `yaml:"max_bytes"`
	Codec      string        `yaml:"codec"`
}

type ReaperConfig struct {
	Interval time.Duration `yaml:"interval"`
}

func defaultConfig() Config {
	return Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info", Format: "json"},
		Backend: BackendConfig{
			Type: backendSQLite,
			DSN:  "sessions.db",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			Memcached: MemcachedConfig{
				Servers: []string{"localhost:11211"},
				Timeout: time.Second,
			},
		},
		Session: SessionConfig{
			TTL:        24 * time.Hour,
			CookieName: "session_id",
			Codec:      "json",
		},
		Reaper: ReaperConfig{
			Interval: 100 * time.Second,
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults, then
// applies SESSIOND_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("SESSIOND_LISTEN", &cfg.Listen)
	str("SESSIOND_LOG_LEVEL", &cfg.Log.Level)
	str("SESSIOND_LOG_FORMAT", &cfg.Log.Format)
	str("SESSIOND_BACKEND", &cfg.Backend.Type)
	str("SESSIOND_DSN", &cfg.Backend.DSN)
	str("SESSIOND_REDIS_ADDR", &cfg.Backend.Redis.Addr)
	str("SESSIOND_REDIS_PASSWORD", &cfg.Backend.Redis.Password)
	str("SESSIOND_REDIS_PREFIX", &cfg.Backend.Redis.Prefix)
	str("SESSIOND_COOKIE_NAME", &cfg.Session.CookieName)

	if v, ok := lookup("SESSIOND_REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SESSIOND_REDIS_DB: %w", err)
		}
		cfg.Backend.Redis.DB = db
	}
	if v, ok := lookup("SESSIOND_MEMCACHED_SERVERS"); ok {
		cfg.Backend.Memcached.Servers = strings.Split(v, ",")
	}
	if v, ok := lookup("SESSIOND_COOKIE_SECURE"); ok {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SESSIOND_COOKIE_SECURE: %w", err)
		}
		cfg.Session.Secure = &secure
	}

	return errors.Join(
		dur("SESSIOND_SESSION_TTL", &cfg.Session.TTL),
		dur("SESSIOND_REAP_INTERVAL", &cfg.Reaper.Interval),
	)
}

// Validate reports configuration errors that would only surface at runtime.
func (c Config) Validate() error {
	var errs []error

	switch c.Backend.Type {
	case backendSQLite, backendPostgres:
		if c.Backend.DSN == "" {
			errs = append(errs, fmt.Errorf("backend.dsn is required for %s", c.Backend.Type))
		}
	case backendRedis:
		if c.Backend.Redis.Addr == "" {
			errs = append(errs, errors.New("backend.redis.addr is required"))
		}
	case backendMemcached:
		if len(c.Backend.Memcached.Servers) == 0 {
			errs = append(errs, errors.New("backend.memcached.servers is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend type %q", c.Backend.Type))
	}

	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Reaper.Interval <= 0 {
		errs = append(errs, errors.New("reaper.interval must be positive"))
	}
	switch c.Session.Codec {
	case "json", "gob":
	default:
		errs = append(errs, fmt.Errorf("unknown session codec %q", c.Session.Codec))
	}

	return errors.Join(errs...)
}

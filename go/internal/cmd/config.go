package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/wordtwist/go/internal/notice"
)

type Config struct {
	ServerURL      string        `yaml:"server_url"`
	Username       string        `yaml:"username"`
	SessionCookie  string        `yaml:"session_cookie"`
	PrefsPath      string        `yaml:"prefs_path"`
	NoticeDelay    time.Duration `yaml:"notice_delay"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	NATSURL        string        `yaml:"nats_url"`
	LogLevel       string        `yaml:"log_level"`
	DefaultSize    int           `yaml:"default_size"`
	DefaultTime    int           `yaml:"default_time"`
}

func defaultConfig() Config {
	return Config{
		ServerURL:      "http://127.0.0.1:8080",
		PrefsPath:      "wordtwist.db",
		NoticeDelay:    notice.DefaultDelay,
		RequestTimeout: 10 * time.Second,
		LogLevel:       "info",
		DefaultSize:    5,
		DefaultTime:    120,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-integer environment value")
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring invalid duration environment value")
	}
	return defaultValue
}

// loadConfig reads the optional config file at path and applies environment
// overrides on top of it.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("server_url is required")
	}
	if config.DefaultSize < 1 {
		return nil, fmt.Errorf("default_size must be positive, got %d", config.DefaultSize)
	}
	if config.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be positive, got %s", config.RequestTimeout)
	}
	if config.DefaultTime < 0 {
		return nil, fmt.Errorf("default_time must not be negative, got %d", config.DefaultTime)
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	c.ServerURL = getEnv("WORDTWIST_SERVER_URL", c.ServerURL)
	c.Username = getEnv("WORDTWIST_USERNAME", c.Username)
	c.SessionCookie = getEnv("WORDTWIST_SESSION_COOKIE", c.SessionCookie)
	c.PrefsPath = getEnv("WORDTWIST_PREFS_PATH", c.PrefsPath)
	c.NoticeDelay = getEnvAsDuration("WORDTWIST_NOTICE_DELAY", c.NoticeDelay)
	c.GracePeriod = getEnvAsDuration("WORDTWIST_GRACE_PERIOD", c.GracePeriod)
	c.RequestTimeout = getEnvAsDuration("WORDTWIST_REQUEST_TIMEOUT", c.RequestTimeout)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DefaultSize = getEnvAsInt("WORDTWIST_DEFAULT_SIZE", c.DefaultSize)
	c.DefaultTime = getEnvAsInt("WORDTWIST_DEFAULT_TIME", c.DefaultTime)
}

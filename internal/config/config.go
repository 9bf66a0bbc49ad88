// Package config loads the engine configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Effects     EffectsConfig     `yaml:"effects"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string `yaml:"host" env:"GM_SERVER_HOST"`
	Port            int    `yaml:"port" env:"GM_SERVER_PORT"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec" env:"GM_SERVER_READ_TIMEOUT_SEC"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec" env:"GM_SERVER_WRITE_TIMEOUT_SEC"`
}

// RedisConfig configures the shared store. An empty Addr selects the
// in-memory store (local development only).
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"GM_REDIS_ADDR"`
	Password string `yaml:"password" env:"GM_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"GM_REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"GM_REDIS_PREFIX"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"GM_LOG_LEVEL"`
	Format     string `yaml:"format" env:"GM_LOG_FORMAT"`
	Output     string `yaml:"output" env:"GM_LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"GM_LOG_FILE_PREFIX"`
}

// LeaderboardConfig configures ranking reads.
type LeaderboardConfig struct {
	TopN int `yaml:"top_n" env:"GM_LEADERBOARD_TOP_N"`
}

// EffectsConfig configures the side-effect worker.
type EffectsConfig struct {
	QueueSize int `yaml:"queue_size" env:"GM_EFFECTS_QUEUE_SIZE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Leaderboard: LeaderboardConfig{TopN: 50},
		Effects:     EffectsConfig{QueueSize: 256},
	}
}

// Load reads the YAML file at path (skipped when empty) and then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode env overrides: %w", err)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	return cfg, nil
}

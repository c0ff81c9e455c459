// Package config loads daemon configuration from an optional YAML file
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Gateway GatewayConfig `yaml:"gateway"`
	Game    GameConfig    `yaml:"game"`
	// LogLevel is a zerolog level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// NATSConfig points the store at a NATS deployment.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// GatewayConfig controls the local UI bridge.
type GatewayConfig struct {
	Addr string `yaml:"addr"`
}

// GameConfig tunes the round timers.
type GameConfig struct {
	ClockSeconds     int `yaml:"clock_seconds"`
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

// Default returns the configuration used when no file or env overrides
// exist.
func Default() Config {
	return Config{
		NATS:     NATSConfig{URL: "nats://localhost:4222"},
		Gateway:  GatewayConfig{Addr: "127.0.0.1:8324"},
		Game:     GameConfig{ClockSeconds: 10, HeartbeatSeconds: 5},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path (skipped when empty or missing) and
// applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.NATS.URL = getEnv("MAKE24_NATS_URL", cfg.NATS.URL)
	cfg.Gateway.Addr = getEnv("MAKE24_GATEWAY_ADDR", cfg.Gateway.Addr)
	cfg.Game.ClockSeconds = getEnvAsInt("MAKE24_CLOCK_SECONDS", cfg.Game.ClockSeconds)
	cfg.Game.HeartbeatSeconds = getEnvAsInt("MAKE24_HEARTBEAT_SECONDS", cfg.Game.HeartbeatSeconds)
	cfg.LogLevel = getEnv("MAKE24_LOG_LEVEL", cfg.LogLevel)
	return cfg, nil
}

// ClockDuration returns the clocked-round countdown.
func (c Config) ClockDuration() time.Duration {
	return time.Duration(c.Game.ClockSeconds) * time.Second
}

// HeartbeatInterval returns the presence refresh period.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Game.HeartbeatSeconds) * time.Second
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
	}
	return defaultValue
}

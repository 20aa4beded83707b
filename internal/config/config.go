// Package config loads runtime settings with precedence file > environment
// > defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings.
type Config struct {
	Redis        *RedisConfig       `yaml:"redis"`
	HTTP         *HTTPConfig        `yaml:"http"`
	WebSocket    *WebSocketConfig   `yaml:"websocket"`
	Leaderboard  *LeaderboardConfig `yaml:"leaderboard"`
	Achievements *AchievementConfig `yaml:"achievements"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type HTTPConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	SendBuffer   int           `yaml:"send_buffer"`
	RateLimit    int           `yaml:"rate_limit"`
}

type LeaderboardConfig struct {
	SnapshotSize     int64 `yaml:"snapshot_size"`
	NeighborWindow   int64 `yaml:"neighbor_window"`
	PublishQueueSize int   `yaml:"publish_queue_size"`
}

// AchievementConfig points at an optional YAML definition file. When Path
// is empty the built-in definitions are used.
type AchievementConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns settings suitable for local development: Redis on
// localhost, HTTP on 8080, a 20-entry snapshot with a 2-rank neighbor
// window.
func DefaultConfig() *Config {
	return &Config{
		Redis: &RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			DialTimeout: 5 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			SendBuffer:   100,
			RateLimit:    120,
		},
		Leaderboard: &LeaderboardConfig{
			SnapshotSize:     20,
			NeighborWindow:   2,
			PublishQueueSize: 256,
		},
		Achievements: &AchievementConfig{},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis addr cannot be empty")
	}
	if c.Redis.DialTimeout <= 0 {
		return fmt.Errorf("redis dial timeout must be positive")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("WebSocket send buffer must be positive")
	}
	if c.WebSocket.RateLimit <= 0 {
		return fmt.Errorf("WebSocket rate limit must be positive")
	}
	if c.Leaderboard == nil {
		return fmt.Errorf("leaderboard configuration is required")
	}
	if c.Leaderboard.SnapshotSize <= 0 {
		return fmt.Errorf("leaderboard snapshot size must be positive")
	}
	if c.Leaderboard.NeighborWindow < 0 {
		return fmt.Errorf("leaderboard neighbor window cannot be negative")
	}
	if c.Leaderboard.PublishQueueSize <= 0 {
		return fmt.Errorf("leaderboard publish queue size must be positive")
	}
	return nil
}

// LoadFromEnv overlays LEADERBOARD_* environment variables onto the
// defaults. Malformed values fall back silently so a bad variable never
// prevents startup.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if addr := os.Getenv("LEADERBOARD_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if password := os.Getenv("LEADERBOARD_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if db := os.Getenv("LEADERBOARD_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			config.Redis.DB = n
		}
	}
	if host := os.Getenv("LEADERBOARD_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("LEADERBOARD_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if timeout := os.Getenv("LEADERBOARD_HTTP_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if timeout := os.Getenv("LEADERBOARD_HTTP_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}
	if interval := os.Getenv("LEADERBOARD_WS_PING_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.WebSocket.PingInterval = d
		}
	}
	if timeout := os.Getenv("LEADERBOARD_WS_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}
	if size := os.Getenv("LEADERBOARD_WS_SEND_BUFFER"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			config.WebSocket.SendBuffer = n
		}
	}
	if limit := os.Getenv("LEADERBOARD_WS_RATE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.WebSocket.RateLimit = n
		}
	}
	if size := os.Getenv("LEADERBOARD_SNAPSHOT_SIZE"); size != "" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil {
			config.Leaderboard.SnapshotSize = n
		}
	}
	if window := os.Getenv("LEADERBOARD_NEIGHBOR_WINDOW"); window != "" {
		if n, err := strconv.ParseInt(window, 10, 64); err == nil {
			config.Leaderboard.NeighborWindow = n
		}
	}
	if size := os.Getenv("LEADERBOARD_PUBLISH_QUEUE_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			config.Leaderboard.PublishQueueSize = n
		}
	}
	if path := os.Getenv("LEADERBOARD_ACHIEVEMENTS_PATH"); path != "" {
		config.Achievements.Path = path
	}

	return config
}

// configFile mirrors Config with string durations for YAML parsing.
type configFile struct {
	Redis        *redisConfigFile       `yaml:"redis"`
	HTTP         *httpConfigFile        `yaml:"http"`
	WebSocket    *webSocketConfigFile   `yaml:"websocket"`
	Leaderboard  *leaderboardConfigFile `yaml:"leaderboard"`
	Achievements *AchievementConfig     `yaml:"achievements"`
}

type redisConfigFile struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	DialTimeout string `yaml:"dial_timeout"`
}

type httpConfigFile struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

type webSocketConfigFile struct {
	PingInterval string `yaml:"ping_interval"`
	ReadTimeout  string `yaml:"read_timeout"`
	SendBuffer   int    `yaml:"send_buffer"`
	RateLimit    int    `yaml:"rate_limit"`
}

type leaderboardConfigFile struct {
	SnapshotSize     int64 `yaml:"snapshot_size"`
	NeighborWindow   int64 `yaml:"neighbor_window"`
	PublishQueueSize int   `yaml:"publish_queue_size"`
}

// LoadFromFile parses a YAML configuration file on top of the defaults and
// validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := DefaultConfig()

	if file.Redis != nil {
		if file.Redis.Addr != "" {
			config.Redis.Addr = file.Redis.Addr
		}
		if file.Redis.Password != "" {
			config.Redis.Password = file.Redis.Password
		}
		if file.Redis.DB != 0 {
			config.Redis.DB = file.Redis.DB
		}
		if file.Redis.DialTimeout != "" {
			if d, err := time.ParseDuration(file.Redis.DialTimeout); err == nil {
				config.Redis.DialTimeout = d
			}
		}
	}
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.ReadTimeout != "" {
			if d, err := time.ParseDuration(file.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = d
			}
		}
		if file.HTTP.WriteTimeout != "" {
			if d, err := time.ParseDuration(file.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = d
			}
		}
	}
	if file.WebSocket != nil {
		if file.WebSocket.PingInterval != "" {
			if d, err := time.ParseDuration(file.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = d
			}
		}
		if file.WebSocket.ReadTimeout != "" {
			if d, err := time.ParseDuration(file.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = d
			}
		}
		if file.WebSocket.SendBuffer > 0 {
			config.WebSocket.SendBuffer = file.WebSocket.SendBuffer
		}
		if file.WebSocket.RateLimit > 0 {
			config.WebSocket.RateLimit = file.WebSocket.RateLimit
		}
	}
	if file.Leaderboard != nil {
		if file.Leaderboard.SnapshotSize > 0 {
			config.Leaderboard.SnapshotSize = file.Leaderboard.SnapshotSize
		}
		if file.Leaderboard.NeighborWindow > 0 {
			config.Leaderboard.NeighborWindow = file.Leaderboard.NeighborWindow
		}
		if file.Leaderboard.PublishQueueSize > 0 {
			config.Leaderboard.PublishQueueSize = file.Leaderboard.PublishQueueSize
		}
	}
	if file.Achievements != nil {
		config.Achievements = file.Achievements
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return config, nil
}

// LoadWithPrecedence resolves configuration as file > environment >
// defaults. A missing or unreadable file is not fatal; the environment
// overlay still applies.
func LoadWithPrecedence(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
	}

	return config
}

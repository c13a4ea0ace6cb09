package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime settings for the chat core.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Redis     *RedisConfig     `json:"redis"`
	Chat      *ChatConfig      `json:"chat"`
}

// DatabaseConfig configures the SQLite message store.
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig configures the listening server.
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig configures per-connection transport behavior.
// InactivityThreshold is the documented default of twice the heartbeat
// interval; both are knobs, not contracts.
type WebSocketConfig struct {
	HeartbeatInterval   time.Duration `json:"heartbeat_interval"`
	InactivityThreshold time.Duration `json:"inactivity_threshold"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	BufferSize          int           `json:"buffer_size"`
}

// RedisConfig configures the optional distribution backend. When Enabled is
// false the core runs in single-instance local-broadcast mode.
type RedisConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr"`
	ChannelPrefix string `json:"channel_prefix"`
}

// ChatConfig configures dispatch-level behavior.
type ChatConfig struct {
	RateLimitPerMinute int      `json:"rate_limit_per_minute"`
	HistoryReplayLimit int      `json:"history_replay_limit"`
	AIRooms            []string `json:"ai_rooms"`
}

// DefaultConfig returns production-ready defaults: 30s heartbeat with a 60s
// inactivity threshold, local SQLite store, distribution disabled.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./chatcore.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			HeartbeatInterval:   30 * time.Second,
			InactivityThreshold: 60 * time.Second,
			WriteTimeout:        5 * time.Second,
			BufferSize:          100,
		},
		Redis: &RedisConfig{
			Enabled:       false,
			Addr:          "localhost:6379",
			ChannelPrefix: "chatcore",
		},
		Chat: &ChatConfig{
			RateLimitPerMinute: 100,
			HistoryReplayLimit: 50,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.HeartbeatInterval <= 0 {
		return fmt.Errorf("WebSocket heartbeat interval must be positive")
	}
	if c.WebSocket.InactivityThreshold < c.WebSocket.HeartbeatInterval {
		return fmt.Errorf("WebSocket inactivity threshold must be at least the heartbeat interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty when distribution is enabled")
	}
	if c.Redis.ChannelPrefix == "" {
		return fmt.Errorf("redis channel prefix cannot be empty")
	}
	if c.Chat == nil {
		return fmt.Errorf("chat configuration is required")
	}
	if c.Chat.RateLimitPerMinute <= 0 {
		return fmt.Errorf("chat rate limit must be positive")
	}
	if c.Chat.HistoryReplayLimit < 0 {
		return fmt.Errorf("chat history replay limit cannot be negative")
	}
	return nil
}

// LoadFromEnv builds a configuration from defaults overridden by CHATCORE_*
// environment variables.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("CHATCORE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("CHATCORE_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("CHATCORE_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("CHATCORE_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}
	if interval := os.Getenv("CHATCORE_WEBSOCKET_HEARTBEAT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.WebSocket.HeartbeatInterval = d
			config.WebSocket.InactivityThreshold = 2 * d
		}
	}
	if threshold := os.Getenv("CHATCORE_WEBSOCKET_INACTIVITY_THRESHOLD"); threshold != "" {
		if d, err := time.ParseDuration(threshold); err == nil {
			config.WebSocket.InactivityThreshold = d
		}
	}
	if writeTimeout := os.Getenv("CHATCORE_WEBSOCKET_WRITE_TIMEOUT"); writeTimeout != "" {
		if d, err := time.ParseDuration(writeTimeout); err == nil {
			config.WebSocket.WriteTimeout = d
		}
	}
	if bufferSize := os.Getenv("CHATCORE_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}
	if enabled := os.Getenv("CHATCORE_REDIS_ENABLED"); enabled != "" {
		config.Redis.Enabled = enabled == "true" || enabled == "1"
	}
	if addr := os.Getenv("CHATCORE_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if prefix := os.Getenv("CHATCORE_REDIS_CHANNEL_PREFIX"); prefix != "" {
		config.Redis.ChannelPrefix = prefix
	}
	if limit := os.Getenv("CHATCORE_CHAT_RATE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.Chat.RateLimitPerMinute = n
		}
	}
	if limit := os.Getenv("CHATCORE_CHAT_HISTORY_REPLAY_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.Chat.HistoryReplayLimit = n
		}
	}
	if rooms := os.Getenv("CHATCORE_CHAT_AI_ROOMS"); rooms != "" {
		config.Chat.AIRooms = strings.Split(rooms, ",")
	}

	return config
}

// configFile mirrors Config with duration fields as strings for JSON parsing.
type configFile struct {
	Database  *databaseConfigFile  `json:"database"`
	HTTP      *httpConfigFile      `json:"http"`
	WebSocket *webSocketConfigFile `json:"websocket"`
	Redis     *RedisConfig         `json:"redis"`
	Chat      *ChatConfig          `json:"chat"`
}

type databaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type httpConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type webSocketConfigFile struct {
	HeartbeatInterval   string `json:"heartbeat_interval"`
	InactivityThreshold string `json:"inactivity_threshold"`
	WriteTimeout        string `json:"write_timeout"`
	BufferSize          int    `json:"buffer_size"`
}

// LoadFromFile reads a JSON configuration file, applying values over the
// defaults and validating the result.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		if file.Database.Timeout != "" {
			if timeout, err := time.ParseDuration(file.Database.Timeout); err == nil {
				config.Database.Timeout = timeout
			}
		}
	}
	if file.HTTP != nil {
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(file.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if file.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(file.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}
	if file.WebSocket != nil {
		if file.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
		if file.WebSocket.HeartbeatInterval != "" {
			if d, err := time.ParseDuration(file.WebSocket.HeartbeatInterval); err == nil {
				config.WebSocket.HeartbeatInterval = d
				config.WebSocket.InactivityThreshold = 2 * d
			}
		}
		if file.WebSocket.InactivityThreshold != "" {
			if d, err := time.ParseDuration(file.WebSocket.InactivityThreshold); err == nil {
				config.WebSocket.InactivityThreshold = d
			}
		}
		if file.WebSocket.WriteTimeout != "" {
			if d, err := time.ParseDuration(file.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = d
			}
		}
	}
	if file.Redis != nil {
		config.Redis = file.Redis
		if config.Redis.ChannelPrefix == "" {
			config.Redis.ChannelPrefix = "chatcore"
		}
	}
	if file.Chat != nil {
		if file.Chat.RateLimitPerMinute > 0 {
			config.Chat.RateLimitPerMinute = file.Chat.RateLimitPerMinute
		}
		if file.Chat.HistoryReplayLimit > 0 {
			config.Chat.HistoryReplayLimit = file.Chat.HistoryReplayLimit
		}
		if len(file.Chat.AIRooms) > 0 {
			config.Chat.AIRooms = file.Chat.AIRooms
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. File errors are ignored so environment and defaults still apply.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}

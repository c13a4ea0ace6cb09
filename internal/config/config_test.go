package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Defaults must validate: %v", err)
	}
	if config.WebSocket.HeartbeatInterval != 30*time.Second {
		t.Errorf("Expected 30s heartbeat, got %s", config.WebSocket.HeartbeatInterval)
	}
	if config.WebSocket.InactivityThreshold != 60*time.Second {
		t.Errorf("Expected 60s threshold, got %s", config.WebSocket.InactivityThreshold)
	}
	if config.Redis.Enabled {
		t.Error("Distribution should be disabled by default")
	}
	if config.Chat.RateLimitPerMinute != 100 {
		t.Errorf("Expected 100/min rate limit, got %d", config.Chat.RateLimitPerMinute)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"zero database timeout", func(c *Config) { c.Database.Timeout = 0 }, true},
		{"port too low", func(c *Config) { c.HTTP.Port = 0 }, true},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }, true},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }, true},
		{"zero heartbeat", func(c *Config) { c.WebSocket.HeartbeatInterval = 0 }, true},
		{"threshold below interval", func(c *Config) {
			c.WebSocket.HeartbeatInterval = 30 * time.Second
			c.WebSocket.InactivityThreshold = 10 * time.Second
		}, true},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }, true},
		{"redis enabled without addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, true},
		{"empty channel prefix", func(c *Config) { c.Redis.ChannelPrefix = "" }, true},
		{"zero rate limit", func(c *Config) { c.Chat.RateLimitPerMinute = 0 }, true},
		{"negative history limit", func(c *Config) { c.Chat.HistoryReplayLimit = -1 }, true},
		{"zero history limit disables replay", func(c *Config) { c.Chat.HistoryReplayLimit = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHATCORE_HTTP_PORT", "9090")
	t.Setenv("CHATCORE_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("CHATCORE_WEBSOCKET_HEARTBEAT_INTERVAL", "10s")
	t.Setenv("CHATCORE_REDIS_ENABLED", "true")
	t.Setenv("CHATCORE_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("CHATCORE_CHAT_AI_ROOMS", "support,help")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("Port override not applied: %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/test.db" {
		t.Errorf("Database path override not applied: %s", config.Database.Path)
	}
	if config.WebSocket.HeartbeatInterval != 10*time.Second {
		t.Errorf("Heartbeat override not applied: %s", config.WebSocket.HeartbeatInterval)
	}
	// Setting only the interval derives the threshold as twice the interval.
	if config.WebSocket.InactivityThreshold != 20*time.Second {
		t.Errorf("Threshold not derived from interval: %s", config.WebSocket.InactivityThreshold)
	}
	if !config.Redis.Enabled || config.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Redis overrides not applied: %+v", config.Redis)
	}
	if len(config.Chat.AIRooms) != 2 || config.Chat.AIRooms[0] != "support" {
		t.Errorf("AI rooms override not applied: %v", config.Chat.AIRooms)
	}
}

func TestLoadFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("CHATCORE_HTTP_PORT", "not-a-number")
	t.Setenv("CHATCORE_WEBSOCKET_HEARTBEAT_INTERVAL", "soon")

	config := LoadFromEnv()

	if config.HTTP.Port != 8080 {
		t.Errorf("Invalid port should fall back to default, got %d", config.HTTP.Port)
	}
	if config.WebSocket.HeartbeatInterval != 30*time.Second {
		t.Errorf("Invalid duration should fall back to default, got %s", config.WebSocket.HeartbeatInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"http": {"port": 9191, "host": "127.0.0.1"},
		"websocket": {"heartbeat_interval": "15s"},
		"redis": {"enabled": true, "addr": "localhost:6380", "channel_prefix": "test"},
		"chat": {"rate_limit_per_minute": 10, "ai_rooms": ["support"]}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.HTTP.Port != 9191 || config.HTTP.Host != "127.0.0.1" {
		t.Errorf("HTTP settings not applied: %+v", config.HTTP)
	}
	if config.WebSocket.HeartbeatInterval != 15*time.Second {
		t.Errorf("Heartbeat not applied: %s", config.WebSocket.HeartbeatInterval)
	}
	if config.WebSocket.InactivityThreshold != 30*time.Second {
		t.Errorf("Threshold not derived: %s", config.WebSocket.InactivityThreshold)
	}
	if !config.Redis.Enabled || config.Redis.ChannelPrefix != "test" {
		t.Errorf("Redis settings not applied: %+v", config.Redis)
	}
	if config.Chat.RateLimitPerMinute != 10 {
		t.Errorf("Rate limit not applied: %d", config.Chat.RateLimitPerMinute)
	}
	// Unset fields keep their defaults.
	if config.Database.Path != "./chatcore.db" {
		t.Errorf("Unset database path should keep default: %s", config.Database.Path)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/does/not/exist.json"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed file")
	}
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("CHATCORE_HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 9191}}`), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	// File wins over environment.
	config := LoadConfigWithPrecedence(path)
	if config.HTTP.Port != 9191 {
		t.Errorf("File should take precedence, got port %d", config.HTTP.Port)
	}

	// Without a file the environment applies.
	config = LoadConfigWithPrecedence("")
	if config.HTTP.Port != 9090 {
		t.Errorf("Environment should apply without a file, got port %d", config.HTTP.Port)
	}

	// An unreadable file falls back to the environment.
	config = LoadConfigWithPrecedence("/does/not/exist.json")
	if config.HTTP.Port != 9090 {
		t.Errorf("Missing file should fall back to environment, got port %d", config.HTTP.Port)
	}
}

// Package config loads server configuration from an optional YAML file and
// the environment.
package config

import (
	"fmt"
	"time"
)

// Config is the root server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	Journal   JournalConfig   `yaml:"journal"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	FrontendURL     string        `yaml:"frontend_url"` // base of generated join URLs
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	TrustedProxies  []string      `yaml:"trusted_proxies"` // addresses or CIDRs allowed to set X-Forwarded-For
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RoomsConfig holds room state limits and eviction settings.
type RoomsConfig struct {
	ChatHistoryLimit int           `yaml:"chat_history_limit"`
	MaxChatLength    int           `yaml:"max_chat_length"`
	EvictionInterval time.Duration `yaml:"eviction_interval"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// WebSocketConfig holds per-connection transport limits.
type WebSocketConfig struct {
	SendBuffer        int     `yaml:"send_buffer"`
	MaxMessageSize    int64   `yaml:"max_message_size"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	MessageBurst      int     `yaml:"message_burst"`
	MaxRateViolations int     `yaml:"max_rate_violations"`
}

// DatabaseConfig locates the activity journal database.
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// JournalConfig holds activity journal batch writer settings.
type JournalConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// RateLimitConfig throttles room creation per client IP.
type RateLimitConfig struct {
	CreateRoomPerMinute float64 `yaml:"create_room_per_minute"`
	CreateRoomBurst     int     `yaml:"create_room_burst"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	u, err := url.Parse(c.Server.FrontendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.frontend_url must be an absolute URL, got %q", c.Server.FrontendURL)
	}

	if c.Rooms.ChatHistoryLimit < 1 {
		return errors.New("rooms.chat_history_limit must be >= 1")
	}
	if c.Rooms.MaxChatLength < 1 {
		return errors.New("rooms.max_chat_length must be >= 1")
	}
	if c.Rooms.EvictionInterval <= 0 {
		return errors.New("rooms.eviction_interval must be positive")
	}
	if c.Rooms.MaxAge <= 0 {
		return errors.New("rooms.max_age must be positive")
	}

	if c.WebSocket.SendBuffer < 1 {
		return errors.New("websocket.send_buffer must be >= 1")
	}
	if c.WebSocket.MessagesPerSecond <= 0 {
		return errors.New("websocket.messages_per_second must be positive")
	}
	if c.WebSocket.MessageBurst < 1 {
		return errors.New("websocket.message_burst must be >= 1")
	}

	if c.Journal.BatchSize < 1 {
		return errors.New("journal.batch_size must be >= 1")
	}
	if c.Journal.BufferSize < 1 {
		return errors.New("journal.buffer_size must be >= 1")
	}

	if c.RateLimit.CreateRoomPerMinute <= 0 {
		return errors.New("rate_limit.create_room_per_minute must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort                = 3001
	DefaultFrontendURL         = "http://localhost:5173"
	DefaultShutdownTimeout     = 10 * time.Second
	DefaultChatHistoryLimit    = 100
	DefaultMaxChatLength       = 500
	DefaultEvictionInterval    = time.Hour
	DefaultMaxAge              = 24 * time.Hour
	DefaultSendBuffer          = 256
	DefaultMaxMessageSize      = 1024 * 1024
	DefaultMessagesPerSecond   = 100
	DefaultMessageBurst        = 200
	DefaultMaxRateViolations   = 1000
	DefaultDatabasePath        = "./data/editor.db"
	DefaultJournalBatchSize    = 64
	DefaultJournalFlush        = time.Second
	DefaultJournalBufferSize   = 1024
	DefaultCreateRoomPerMinute = 10
	DefaultCreateRoomBurst     = 5
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = DefaultFrontendURL
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{c.Server.FrontendURL}
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Rooms defaults
	if c.Rooms.ChatHistoryLimit == 0 {
		c.Rooms.ChatHistoryLimit = DefaultChatHistoryLimit
	}
	if c.Rooms.MaxChatLength == 0 {
		c.Rooms.MaxChatLength = DefaultMaxChatLength
	}
	if c.Rooms.EvictionInterval == 0 {
		c.Rooms.EvictionInterval = DefaultEvictionInterval
	}
	if c.Rooms.MaxAge == 0 {
		c.Rooms.MaxAge = DefaultMaxAge
	}

	// WebSocket defaults
	if c.WebSocket.SendBuffer == 0 {
		c.WebSocket.SendBuffer = DefaultSendBuffer
	}
	if c.WebSocket.MaxMessageSize == 0 {
		c.WebSocket.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.WebSocket.MessagesPerSecond == 0 {
		c.WebSocket.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if c.WebSocket.MessageBurst == 0 {
		c.WebSocket.MessageBurst = DefaultMessageBurst
	}
	if c.WebSocket.MaxRateViolations == 0 {
		c.WebSocket.MaxRateViolations = DefaultMaxRateViolations
	}

	// Database and journal defaults
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlush
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBufferSize
	}

	// Rate limit defaults
	if c.RateLimit.CreateRoomPerMinute == 0 {
		c.RateLimit.CreateRoomPerMinute = DefaultCreateRoomPerMinute
	}
	if c.RateLimit.CreateRoomBurst == 0 {
		c.RateLimit.CreateRoomBurst = DefaultCreateRoomBurst
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

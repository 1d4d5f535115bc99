package coordinator

import "time"

// Config holds coordinator engine configuration.
type Config struct {
	// DefaultChannels are created at start and never evicted, in display order.
	DefaultChannels []string

	SweepInterval    time.Duration
	ChannelIdleTTL   time.Duration
	MessageRetention time.Duration
	NegotiationTTL   time.Duration

	MaxConversationMessages int
	MaxConversations        int
	DefaultHistoryLimit     int

	// CommandQueueSize bounds the number of pending commands for the engine loop.
	CommandQueueSize int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		DefaultChannels:         []string{"general", "emergency", "recon", "logistics"},
		SweepInterval:           10 * time.Minute,
		ChannelIdleTTL:          time.Hour,
		MessageRetention:        24 * time.Hour,
		NegotiationTTL:          60 * time.Second,
		MaxConversationMessages: 100,
		MaxConversations:        10000,
		DefaultHistoryLimit:     50,
		CommandQueueSize:        1024,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultChannels == nil {
		c.DefaultChannels = def.DefaultChannels
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.ChannelIdleTTL <= 0 {
		c.ChannelIdleTTL = def.ChannelIdleTTL
	}
	if c.MessageRetention <= 0 {
		c.MessageRetention = def.MessageRetention
	}
	if c.NegotiationTTL <= 0 {
		c.NegotiationTTL = def.NegotiationTTL
	}
	if c.MaxConversationMessages <= 0 {
		c.MaxConversationMessages = def.MaxConversationMessages
	}
	if c.MaxConversations <= 0 {
		c.MaxConversations = def.MaxConversations
	}
	if c.DefaultHistoryLimit <= 0 {
		c.DefaultHistoryLimit = def.DefaultHistoryLimit
	}
	if c.CommandQueueSize <= 0 {
		c.CommandQueueSize = def.CommandQueueSize
	}
	return c
}

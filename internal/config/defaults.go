package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultReconnectBaseDelay = 3 * time.Second
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultMaxAttempts        = 5
	DefaultPingTimeout        = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultSubscribeTimeout   = 10 * time.Second
	DefaultBufferSize         = 1000
	DefaultMaxOpenWindows     = 3
)

func (c *Config) applyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	if c.Channel.ReconnectBaseDelay == 0 {
		c.Channel.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Channel.ReconnectMaxDelay == 0 {
		c.Channel.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Channel.MaxAttempts == 0 {
		c.Channel.MaxAttempts = DefaultMaxAttempts
	}
	if c.Channel.PingTimeout == 0 {
		c.Channel.PingTimeout = DefaultPingTimeout
	}
	if c.Channel.WriteTimeout == 0 {
		c.Channel.WriteTimeout = DefaultWriteTimeout
	}
	if c.Channel.SubscribeTimeout == 0 {
		c.Channel.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Channel.BufferSize == 0 {
		c.Channel.BufferSize = DefaultBufferSize
	}

	if c.Chat.MaxOpenWindows == 0 {
		c.Chat.MaxOpenWindows = DefaultMaxOpenWindows
	}
}

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.Channel.URL == "" {
		return errors.New("channel.url is required")
	}
	if !strings.HasPrefix(c.Channel.URL, "ws://") && !strings.HasPrefix(c.Channel.URL, "wss://") {
		return fmt.Errorf("channel.url must be a ws:// or wss:// URL, got %q", c.Channel.URL)
	}
	if c.Channel.MaxAttempts < 1 {
		return errors.New("channel.max_attempts must be >= 1")
	}
	if c.Channel.ReconnectBaseDelay <= 0 {
		return errors.New("channel.reconnect_base_delay must be positive")
	}
	if c.Channel.ReconnectMaxDelay < c.Channel.ReconnectBaseDelay {
		return errors.New("channel.reconnect_max_delay must be >= channel.reconnect_base_delay")
	}
	if c.Channel.BufferSize < 1 {
		return errors.New("channel.buffer_size must be >= 1")
	}

	if c.Chat.MaxOpenWindows < 1 {
		return errors.New("chat.max_open_windows must be >= 1")
	}

	return nil
}

// Package config loads and validates the engine's YAML configuration.
package config

import "time"

// Config is the root configuration for a feedsync engine instance.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Channel ChannelConfig `yaml:"channel"`
	Chat    ChatConfig    `yaml:"chat"`
}

// APIConfig holds REST backend settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ChannelConfig holds realtime channel settings.
type ChannelConfig struct {
	URL                string        `yaml:"url"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	MaxAttempts        int           `yaml:"max_attempts"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	SubscribeTimeout   time.Duration `yaml:"subscribe_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// ChatConfig holds chat aggregator settings.
type ChatConfig struct {
	MaxOpenWindows int `yaml:"max_open_windows"`
}

// InvestLink Relay - Real-time notifications and call signaling
// Copyright 2026 InvestLink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/investlink/relay

// Package config loads and validates relay configuration with Koanf v2.
//
// Configuration is layered, highest priority last:
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (SERVER_PORT, SECURITY_JWT_SECRET, ...)
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the relay server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Relay    RelayConfig    `koanf:"relay"`
	Client   ClientConfig   `koanf:"client"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds authentication settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies session tokens. Minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret"`

	// TokenTTL bounds token validity when the relay mints tokens itself
	// (tooling and tests; the auth collaborator issues production tokens).
	TokenTTL time.Duration `koanf:"token_ttl"`

	// ServiceToken guards the internal emit endpoint used by out-of-process
	// REST collaborators. Empty disables the endpoint.
	ServiceToken string `koanf:"service_token"`

	// AllowedOrigins restricts WebSocket upgrades and CORS. "*" allows all.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// EmitRateLimit is the per-IP request budget for the emit endpoint.
	EmitRateLimit  int           `koanf:"emit_rate_limit"`
	EmitRateWindow time.Duration `koanf:"emit_rate_window"`
}

// RelayConfig holds per-connection transport settings.
type RelayConfig struct {
	// SendBuffer is the per-connection outbound channel capacity. A full
	// buffer counts as a failed delivery and evicts the connection.
	SendBuffer int `koanf:"send_buffer"`

	WriteTimeout   time.Duration `koanf:"write_timeout"`
	PongTimeout    time.Duration `koanf:"pong_timeout"`
	MaxMessageSize int64         `koanf:"max_message_size"`

	// HandshakeTimeout bounds how long an unauthenticated connection may
	// hold a socket before sending its auth frame.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
}

// ClientConfig holds defaults for the client-side controller and supervisor.
type ClientConfig struct {
	// ReconnectDelay is the fixed delay before a reconnect attempt after an
	// unclean close. The upstream behavior is a flat 5s with no backoff or
	// retry cap; kept as-is and configurable.
	ReconnectDelay time.Duration `koanf:"reconnect_delay"`

	// BufferCapacity bounds the recent-notifications list.
	BufferCapacity int `koanf:"buffer_capacity"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:      "",
			TokenTTL:       24 * time.Hour,
			ServiceToken:   "",
			AllowedOrigins: []string{"*"},
			EmitRateLimit:  100,
			EmitRateWindow: time.Minute,
		},
		Relay: RelayConfig{
			SendBuffer:       64,
			WriteTimeout:     10 * time.Second,
			PongTimeout:      60 * time.Second,
			MaxMessageSize:   32 * 1024,
			HandshakeTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			ReconnectDelay: 5 * time.Second,
			BufferCapacity: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters, got %d", len(c.Security.JWTSecret))
	}
	if c.Relay.SendBuffer < 1 {
		return fmt.Errorf("relay.send_buffer must be positive, got %d", c.Relay.SendBuffer)
	}
	if c.Relay.MaxMessageSize < 512 {
		return fmt.Errorf("relay.max_message_size must be at least 512 bytes, got %d", c.Relay.MaxMessageSize)
	}
	if c.Relay.PongTimeout <= 0 || c.Relay.WriteTimeout <= 0 || c.Relay.HandshakeTimeout <= 0 {
		return fmt.Errorf("relay timeouts must be positive")
	}
	if c.Client.ReconnectDelay <= 0 {
		return fmt.Errorf("client.reconnect_delay must be positive, got %v", c.Client.ReconnectDelay)
	}
	if c.Client.BufferCapacity < 1 {
		return fmt.Errorf("client.buffer_capacity must be positive, got %d", c.Client.BufferCapacity)
	}
	return nil
}

package server

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// SessionConfig holds configuration for individual connections.
type SessionConfig struct {
	// ReadTimeout is the maximum time to wait for a record from the
	// client. Zero means no deadline: a viewer may sit idle and only
	// watch broadcasts, so the protocol has no keepalive and a dead
	// peer surfaces as a write error instead. Default: 0.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a record.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// SendQueueSize is the size of the outbound record buffer. When the
	// buffer is full the session is closed rather than blocking the
	// broadcaster. Default: 64.
	SendQueueSize int

	// MaxRecordSize is the maximum size of one inbound record.
	// Default: 64KB.
	MaxRecordSize int

	// RateLimit is the sustained inbound record rate per connection.
	// Default: 20 records/second.
	RateLimit rate.Limit

	// RateBurst is the inbound burst allowance per connection.
	// Default: 40.
	RateBurst int
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		WriteTimeout:  10 * time.Second,
		SendQueueSize: 64,
		MaxRecordSize: 64 * 1024,
		RateLimit:     rate.Limit(20),
		RateBurst:     40,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ServerConfig holds configuration for the session server.
type ServerConfig struct {
	// TCPAddress is the raw TCP listen address.
	// Default: ":7878".
	TCPAddress string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the WebSocket request origin.
	// Default: allows all origins; the session protocol carries no
	// credentials and the browser extension connects cross-origin.
	CheckOrigin func(r *http.Request) bool

	// SessionConfig is the configuration for individual connections.
	// Default: DefaultSessionConfig().
	SessionConfig *SessionConfig

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		TCPAddress:      ":7878",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
		SessionConfig:   DefaultSessionConfig(),
		ShutdownTimeout: 10 * time.Second,
	}
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.SessionConfig != nil {
		clone.SessionConfig = c.SessionConfig.Clone()
	}
	return &clone
}

// WithTCPAddress sets the TCP listen address and returns the config for chaining.
func (c *ServerConfig) WithTCPAddress(addr string) *ServerConfig {
	c.TCPAddress = addr
	return c
}

// WithSessionConfig sets the connection configuration and returns the config for chaining.
func (c *ServerConfig) WithSessionConfig(sc *SessionConfig) *ServerConfig {
	c.SessionConfig = sc
	return c
}

// WithSendQueueSize sets the outbound queue size and returns the config for chaining.
func (c *ServerConfig) WithSendQueueSize(n int) *ServerConfig {
	if c.SessionConfig == nil {
		c.SessionConfig = DefaultSessionConfig()
	}
	c.SessionConfig.SendQueueSize = n
	return c
}

package server

import (
	"strings"
	"time"

	"github.com/danmuck/eppkit/internal/protocol/frame"
	"github.com/danmuck/eppkit/internal/protocol/transport"
)

// Config holds listener and per-connection settings for a Service.
type Config struct {
	ServerID     string
	Transport    transport.Config
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Limits       frame.Limits
	ROIDSuffix   string
	// MaxLoginFailures closes a connection after this many failed logins.
	MaxLoginFailures int
}

func DefaultConfig() Config {
	tc := transport.DefaultConfig()
	tc.Address = ":7000"
	return Config{
		ServerID:         "eppkit",
		Transport:        tc,
		ReadTimeout:      10 * time.Minute,
		WriteTimeout:     15 * time.Second,
		Limits:           frame.DefaultLimits(),
		ROIDSuffix:       "EPPKIT",
		MaxLoginFailures: DefaultMaxLoginFailures,
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Transport.Address) == "" {
		c.Transport.Address = def.Transport.Address
	}
	c.Transport = c.Transport.WithDefaults()
	if strings.TrimSpace(c.ServerID) == "" {
		c.ServerID = def.ServerID
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits = def.Limits
	}
	if c.ROIDSuffix == "" {
		c.ROIDSuffix = def.ROIDSuffix
	}
	if c.MaxLoginFailures == 0 {
		c.MaxLoginFailures = def.MaxLoginFailures
	}
	return c
}

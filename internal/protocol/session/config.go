package session

import (
	"strings"
	"time"

	"github.com/danmuck/eppkit/internal/protocol/frame"
	"github.com/danmuck/eppkit/internal/protocol/transport"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport and exchange limits for one session.
type Config struct {
	Transport    transport.Config
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Limits       frame.Limits
	TRIDPrefix   string
	Version      string
	Lang         string

	// MaxConnectAttempts and Backoff drive caller-level reconnect loops;
	// Session itself never retries.
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Transport:          transport.DefaultConfig(),
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       15 * time.Second,
		Limits:             frame.DefaultLimits(),
		TRIDPrefix:         "EPPKIT",
		Version:            "1.0",
		Lang:               "en",
		MaxConnectAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Transport = c.Transport.WithDefaults()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits = def.Limits
	}
	if strings.TrimSpace(c.TRIDPrefix) == "" {
		c.TRIDPrefix = def.TRIDPrefix
	}
	if c.Version == "" {
		c.Version = def.Version
	}
	if c.Lang == "" {
		c.Lang = def.Lang
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = def.MaxConnectAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

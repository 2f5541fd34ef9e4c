package transport

import (
	"strings"
	"time"
)

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig is the file-based TLS material for one endpoint.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	InsecureSkipVerify bool
	ServerName         string
	CAFile             string
	CertFile           string
	KeyFile            string
}

// Config describes how to reach, or listen for, an EPP peer.
type Config struct {
	Address          string
	LocalAddr        string
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	SecurityMode     SecurityMode
	TLS              TLSConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		SecurityMode:     SecurityModeDevelopment,
	}
}

// WithDefaults fills zero-valued timeouts and mode from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	c.Address = strings.TrimSpace(c.Address)
	c.LocalAddr = strings.TrimSpace(c.LocalAddr)
	return c
}

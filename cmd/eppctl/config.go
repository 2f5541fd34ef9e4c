package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/eppkit/internal/protocol/session"
	"github.com/danmuck/eppkit/internal/protocol/transport"
)

type fileConfig struct {
	Addr            string `toml:"addr"`
	ClientID        string `toml:"client_id"`
	Password        string `toml:"password"`
	TRIDPrefix      string `toml:"trid_prefix"`
	ReadTimeout     string `toml:"read_timeout"`
	ConnectAttempts int    `toml:"connect_attempts"`
	SecurityMode    string `toml:"security_mode"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	TLSMutual       bool   `toml:"tls_mutual"`
	TLSServerName   string `toml:"tls_server_name"`
	TLSCertFile     string `toml:"tls_cert_file"`
	TLSKeyFile      string `toml:"tls_key_file"`
	TLSCAFile       string `toml:"tls_ca_file"`
}

type clientConfig struct {
	Session session.Config
	Creds   session.Credentials
}

func defaultClientConfig() clientConfig {
	cfg := clientConfig{Session: session.DefaultConfig()}
	cfg.Session.Transport.Address = "localhost:700"
	cfg.Session.TRIDPrefix = "EPPCTL"
	return cfg
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load eppctl config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Session.Transport.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("client_id") {
		cfg.Creds.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if meta.IsDefined("password") {
		cfg.Creds.Password = raw.Password
	}
	if meta.IsDefined("trid_prefix") {
		cfg.Session.TRIDPrefix = strings.TrimSpace(raw.TRIDPrefix)
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.ConnectAttempts
	}
	if meta.IsDefined("security_mode") {
		cfg.Session.Transport.SecurityMode = transport.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("tls_enabled") {
		cfg.Session.Transport.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_mutual") {
		cfg.Session.Transport.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_server_name") {
		cfg.Session.Transport.TLS.ServerName = strings.TrimSpace(raw.TLSServerName)
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Session.Transport.TLS.CertFile = resolveRelative(path, strings.TrimSpace(raw.TLSCertFile))
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Session.Transport.TLS.KeyFile = resolveRelative(path, strings.TrimSpace(raw.TLSKeyFile))
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Session.Transport.TLS.CAFile = resolveRelative(path, strings.TrimSpace(raw.TLSCAFile))
	}

	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}

func resolveRelative(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/eppkit/internal/pollq"
	"github.com/danmuck/eppkit/internal/protocol/transport"
	"github.com/danmuck/eppkit/internal/server"
)

type fileConfig struct {
	Addr             string   `toml:"addr"`
	ServerID         string   `toml:"server_id"`
	ROIDSuffix       string   `toml:"roid_suffix"`
	AccountsFile     string   `toml:"accounts_file"`
	AdminAddr        string   `toml:"admin_addr"`
	AdminToken       string   `toml:"admin_token"`
	CORSOrigins      []string `toml:"cors_origins"`
	ReadTimeout      string   `toml:"read_timeout"`
	WriteTimeout     string   `toml:"write_timeout"`
	MaxFrameBytes    int64    `toml:"max_frame_bytes"`
	MaxLoginFailures int      `toml:"max_login_failures"`
	PollAckPolicy    string   `toml:"poll_ack_policy"`
	PollStore        string   `toml:"poll_store"`
	RedisAddr        string   `toml:"redis_addr"`
	RedisPrefix      string   `toml:"redis_prefix"`
	SecurityMode     string   `toml:"security_mode"`
	TLSEnabled       bool     `toml:"tls_enabled"`
	TLSMutual        bool     `toml:"tls_mutual"`
	TLSCertFile      string   `toml:"tls_cert_file"`
	TLSKeyFile       string   `toml:"tls_key_file"`
	TLSCAFile        string   `toml:"tls_ca_file"`
}

const (
	pollStoreMemory = "memory"
	pollStoreRedis  = "redis"
)

// daemonConfig is everything eppd needs beyond the EPP listener itself.
type daemonConfig struct {
	Server       server.Config
	AccountsFile string
	AdminAddr    string
	AdminToken   string
	CORSOrigins  []string
	PollPolicy   pollq.AckPolicy
	PollStore    string
	RedisAddr    string
	RedisPrefix  string
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Server:       server.DefaultConfig(),
		AccountsFile: "accounts.toml",
		AdminAddr:    "127.0.0.1:7080",
		PollPolicy:   pollq.AckMatchHead,
		PollStore:    pollStoreMemory,
		RedisAddr:    "127.0.0.1:6379",
	}
}

func loadDaemonConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("load eppd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return daemonConfig{}, fmt.Errorf("load eppd config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Server.Transport.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("server_id") {
		if id := strings.TrimSpace(raw.ServerID); id != "" {
			cfg.Server.ServerID = id
		}
	}
	if meta.IsDefined("roid_suffix") {
		cfg.Server.ROIDSuffix = strings.TrimSpace(raw.ROIDSuffix)
	}
	if meta.IsDefined("accounts_file") {
		cfg.AccountsFile = resolveRelative(path, strings.TrimSpace(raw.AccountsFile))
	} else {
		cfg.AccountsFile = resolveRelative(path, cfg.AccountsFile)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}

	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}
	if meta.IsDefined("max_frame_bytes") {
		if raw.MaxFrameBytes <= 0 || raw.MaxFrameBytes > 1<<31 {
			return daemonConfig{}, fmt.Errorf("max_frame_bytes out of range: %d", raw.MaxFrameBytes)
		}
		cfg.Server.Limits.MaxFrameBytes = uint32(raw.MaxFrameBytes)
	}
	if meta.IsDefined("max_login_failures") {
		cfg.Server.MaxLoginFailures = raw.MaxLoginFailures
	}

	if meta.IsDefined("poll_ack_policy") {
		p, err := pollq.ParseAckPolicy(raw.PollAckPolicy)
		if err != nil {
			return daemonConfig{}, err
		}
		cfg.PollPolicy = p
	}
	if meta.IsDefined("poll_store") {
		store := strings.ToLower(strings.TrimSpace(raw.PollStore))
		switch store {
		case pollStoreMemory, pollStoreRedis:
			cfg.PollStore = store
		default:
			return daemonConfig{}, fmt.Errorf("unknown poll_store %q", raw.PollStore)
		}
	}
	if meta.IsDefined("redis_addr") {
		cfg.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	}
	if meta.IsDefined("redis_prefix") {
		cfg.RedisPrefix = strings.TrimSpace(raw.RedisPrefix)
	}

	if meta.IsDefined("security_mode") {
		cfg.Server.Transport.SecurityMode = transport.SecurityMode(strings.TrimSpace(raw.SecurityMode))
	}
	if meta.IsDefined("tls_enabled") {
		cfg.Server.Transport.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_mutual") {
		cfg.Server.Transport.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Server.Transport.TLS.CertFile = resolveRelative(path, strings.TrimSpace(raw.TLSCertFile))
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Server.Transport.TLS.KeyFile = resolveRelative(path, strings.TrimSpace(raw.TLSKeyFile))
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Server.Transport.TLS.CAFile = resolveRelative(path, strings.TrimSpace(raw.TLSCAFile))
	}

	cfg.Server = cfg.Server.WithDefaults()
	if cfg.Server.Transport.SecurityMode == transport.SecurityModeProduction && !cfg.Server.Transport.TLS.Enabled {
		return daemonConfig{}, fmt.Errorf("security_mode=production requires tls_enabled")
	}
	return cfg, nil
}

// resolveRelative anchors p at the directory holding the config file.
func resolveRelative(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

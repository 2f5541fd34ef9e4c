package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// AccountsFile is the registrar accounts file read by eppd.
type AccountsFile struct {
	Accounts []AccountEntry `toml:"accounts"`
}

type AccountEntry struct {
	ClientID string `toml:"client_id"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	Disabled bool   `toml:"disabled"`
}

func LoadAccounts(path string) (AccountsFile, error) {
	var cfg AccountsFile
	if err := loadToml(path, &cfg); err != nil {
		return AccountsFile{}, err
	}
	for i := range cfg.Accounts {
		cfg.Accounts[i].ClientID = strings.TrimSpace(cfg.Accounts[i].ClientID)
		if cfg.Accounts[i].Name == "" {
			cfg.Accounts[i].Name = cfg.Accounts[i].ClientID
		}
	}
	if err := ValidateAccounts(cfg); err != nil {
		return AccountsFile{}, err
	}
	return cfg, nil
}

// ParseAccounts decodes an accounts document already in memory.
func ParseAccounts(data []byte) (AccountsFile, error) {
	var cfg AccountsFile
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return AccountsFile{}, fmt.Errorf("accounts parse failed: %w", err)
	}
	return cfg, ValidateAccounts(cfg)
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateAccounts(cfg AccountsFile) error {
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("accounts config has no [[accounts]] entries")
	}
	seen := make(map[string]struct{}, len(cfg.Accounts))
	for i, acct := range cfg.Accounts {
		if err := ValidateAccountEntry(acct); err != nil {
			return fmt.Errorf("accounts[%d] invalid: %w", i, err)
		}
		if _, dup := seen[acct.ClientID]; dup {
			return fmt.Errorf("accounts[%d] invalid: duplicate client_id %q", i, acct.ClientID)
		}
		seen[acct.ClientID] = struct{}{}
	}
	return nil
}

// ValidateAccountEntry applies the RFC 5730 clIDType (3-16 chars) and
// pwType (6-16 chars) lengths.
func ValidateAccountEntry(acct AccountEntry) error {
	id := strings.TrimSpace(acct.ClientID)
	if id == "" {
		return fmt.Errorf("client_id is required")
	}
	if n := len(id); n < 3 || n > 16 {
		return fmt.Errorf("client_id %q must be 3-16 characters", id)
	}
	if n := len(acct.Password); n < 6 || n > 16 {
		return fmt.Errorf("password for %q must be 6-16 characters", id)
	}
	return nil
}

package config

import (
	"github.com/danmuck/eppkit/internal/auth"
)

// Accounts builds the login authenticator from file entries.
func Accounts(cfg AccountsFile) *auth.Accounts {
	accts := make([]auth.Account, 0, len(cfg.Accounts))
	for _, entry := range cfg.Accounts {
		accts = append(accts, auth.Account{
			ClientID: entry.ClientID,
			Password: entry.Password,
			Name:     entry.Name,
			Disabled: entry.Disabled,
		})
	}
	return auth.NewAccounts(accts...)
}

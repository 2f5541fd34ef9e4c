// Package auth holds registrar credentials for EPP login and the bearer
// token check used by the admin surface.
package auth

import (
	"crypto/subtle"
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnauthorized    = errors.New("auth: unauthorized")
	ErrUnknownAccount  = errors.New("auth: unknown account")
	ErrAccountDisabled = errors.New("auth: account disabled")
	ErrWeakPassword    = errors.New("auth: password must be 6-16 characters")
)

// Validator validates an authentication token.
type Validator interface {
	Validate(token string) error
}

// StaticToken is a validator for a single shared token.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// Account is one registrar allowed to log in.
type Account struct {
	ClientID string
	Password string
	Name     string
	Disabled bool
}

// Authenticator checks EPP login credentials.
type Authenticator interface {
	Authenticate(clientID, password string) (Account, error)
	ChangePassword(clientID, password string) error
}

// Accounts is an in-memory Authenticator.
type Accounts struct {
	mu   sync.RWMutex
	byID map[string]Account
}

func NewAccounts(accounts ...Account) *Accounts {
	a := &Accounts{byID: make(map[string]Account, len(accounts))}
	for _, acct := range accounts {
		a.byID[acct.ClientID] = acct
	}
	return a
}

func (a *Accounts) Put(acct Account) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byID[acct.ClientID] = acct
}

func (a *Accounts) Lookup(clientID string) (Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok := a.byID[clientID]
	return acct, ok
}

// IDs returns the configured client ids, sorted.
func (a *Accounts) IDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.byID))
	for id := range a.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Authenticate returns ErrUnauthorized for both unknown ids and wrong
// passwords so callers cannot discover which ids are valid.
func (a *Accounts) Authenticate(clientID, password string) (Account, error) {
	acct, ok := a.Lookup(strings.TrimSpace(clientID))
	if !ok {
		return Account{}, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(acct.Password), []byte(password)) != 1 {
		return Account{}, ErrUnauthorized
	}
	if acct.Disabled {
		return Account{}, ErrAccountDisabled
	}
	return acct, nil
}

// ChangePassword applies an EPP <newPW>. Length follows the pwType facet
// of RFC 5730 (6 to 16 characters).
func (a *Accounts) ChangePassword(clientID, password string) error {
	if n := len(password); n < 6 || n > 16 {
		return ErrWeakPassword
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.byID[clientID]
	if !ok {
		return ErrUnknownAccount
	}
	acct.Password = password
	a.byID[clientID] = acct
	return nil
}

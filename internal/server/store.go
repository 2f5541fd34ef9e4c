package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/eppkit/internal/extension/secdns"
	"github.com/danmuck/eppkit/internal/mapping/contact"
	"github.com/danmuck/eppkit/internal/mapping/domain"
	"github.com/danmuck/eppkit/internal/mapping/host"
)

type transferState struct {
	Status      string
	RequestedBy string
	Requested   time.Time
	ActionBy    string
	ActionDate  time.Time
	Period      *domain.Period
}

type domainObject struct {
	Name       string
	ROID       string
	Statuses   []domain.Status
	Registrant string
	Contacts   []domain.Contact
	NS         []string
	ClientID   string
	CreatorID  string
	Created    time.Time
	UpdaterID  string
	Updated    *time.Time
	Expires    time.Time
	AuthInfo   string
	Transfer   *transferState
	DS         []secdns.DSData
	Keys       []secdns.KeyData
	MaxSigLife int
}

func (d *domainObject) hasStatus(s string) bool {
	for _, st := range d.Statuses {
		if st.S == s {
			return true
		}
	}
	return false
}

type contactObject struct {
	ID         string
	ROID       string
	Statuses   []contact.Status
	PostalInfo []contact.PostalInfo
	Voice      *contact.Phone
	Fax        *contact.Phone
	Email      string
	ClientID   string
	CreatorID  string
	Created    time.Time
	UpdaterID  string
	Updated    *time.Time
	AuthInfo   string
}

type hostObject struct {
	Name      string
	ROID      string
	Statuses  []host.Status
	Addresses []host.Address
	ClientID  string
	CreatorID string
	Created   time.Time
	UpdaterID string
	Updated   *time.Time
}

// Store is the reference server's in-memory object repository. Object
// names are case-insensitive.
type Store struct {
	mu       sync.Mutex
	seq      uint64
	suffix   string
	domains  map[string]*domainObject
	contacts map[string]*contactObject
	hosts    map[string]*hostObject
}

func NewStore(roidSuffix string) *Store {
	if roidSuffix == "" {
		roidSuffix = "EPPKIT"
	}
	return &Store{
		suffix:   roidSuffix,
		domains:  make(map[string]*domainObject),
		contacts: make(map[string]*contactObject),
		hosts:    make(map[string]*hostObject),
	}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// nextROID must be called with mu held.
func (s *Store) nextROID(kind string) string {
	s.seq++
	return fmt.Sprintf("%s%d-%s", kind, s.seq, s.suffix)
}

// Counts reports how many objects of each kind exist.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"domains":  len(s.domains),
		"contacts": len(s.contacts),
		"hosts":    len(s.hosts),
	}
}

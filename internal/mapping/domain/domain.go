// Package domain is the EPP domain name mapping (RFC 5731).
package domain

import (
	"encoding/xml"
	"time"

	"github.com/danmuck/eppkit/internal/protocol/codec"
)

const Namespace = "urn:ietf:params:xml:ns:domain-1.0"

// Factory decodes every domain element the codec may see.
var Factory = &codec.ElementMapping{
	Commands: map[codec.Verb]codec.Elements{
		codec.VerbCheck:    {"check": func() codec.Component { return &Check{} }},
		codec.VerbInfo:     {"info": func() codec.Component { return &Info{} }},
		codec.VerbCreate:   {"create": func() codec.Component { return &Create{} }},
		codec.VerbUpdate:   {"update": func() codec.Component { return &Update{} }},
		codec.VerbDelete:   {"delete": func() codec.Component { return &Delete{} }},
		codec.VerbTransfer: {"transfer": func() codec.Component { return &Transfer{} }},
		codec.VerbRenew:    {"renew": func() codec.Component { return &Renew{} }},
	},
	Responses: codec.Elements{
		"chkData": func() codec.Component { return &CheckData{} },
		"infData": func() codec.Component { return &InfoData{} },
		"creData": func() codec.Component { return &CreateData{} },
		"renData": func() codec.Component { return &RenewData{} },
		"trnData": func() codec.Component { return &TransferData{} },
	},
}

func Register(reg *codec.Registry) error {
	return reg.RegisterMapping(Namespace, Factory)
}

// Period units.
const (
	UnitYear  = "y"
	UnitMonth = "m"
)

// Contact roles.
const (
	ContactAdmin   = "admin"
	ContactBilling = "billing"
	ContactTech    = "tech"
)

// Object statuses (RFC 5731 §2.3).
const (
	StatusOK                       = "ok"
	StatusInactive                 = "inactive"
	StatusClientHold               = "clientHold"
	StatusClientDeleteProhibited   = "clientDeleteProhibited"
	StatusClientTransferProhibited = "clientTransferProhibited"
	StatusServerHold               = "serverHold"
	StatusPendingTransfer          = "pendingTransfer"
)

// Transfer states reported in trnData.
const (
	TransferPending         = "pending"
	TransferClientApproved  = "clientApproved"
	TransferClientRejected  = "clientRejected"
	TransferClientCancelled = "clientCancelled"
	TransferServerApproved  = "serverApproved"
)

type Period struct {
	Unit  string `xml:"unit,attr"`
	Value int    `xml:",chardata"`
}

// Years is shorthand for a yearly period.
func Years(n int) *Period {
	return &Period{Unit: UnitYear, Value: n}
}

// AddTo extends t by the period; a missing period counts as one year.
func (p *Period) AddTo(t time.Time) time.Time {
	if p == nil || p.Value <= 0 {
		return t.AddDate(1, 0, 0)
	}
	if p.Unit == UnitMonth {
		return t.AddDate(0, p.Value, 0)
	}
	return t.AddDate(p.Value, 0, 0)
}

type AuthInfo struct {
	Password string `xml:"pw"`
}

type Contact struct {
	Type string `xml:"type,attr"`
	ID   string `xml:",chardata"`
}

type NameServers struct {
	HostObjs []string `xml:"hostObj"`
}

type Status struct {
	S    string `xml:"s,attr"`
	Lang string `xml:"lang,attr,omitempty"`
	Text string `xml:",chardata"`
}

type Check struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:domain-1.0 check"`
	Names   []string `xml:"name"`
}

func (*Check) Namespace() string { return Namespace }

type Info struct {
	XMLName  xml.Name  `xml:"urn:ietf:params:xml:ns:domain-1.0 info"`
	Name     InfoName  `xml:"name"`
	AuthInfo *AuthInfo `xml:"authInfo,omitempty"`
}

func (*Info) Namespace() string { return Namespace }

// InfoName carries the hosts filter: all, del, sub or none.
type InfoName struct {
	Hosts string `xml:"hosts,attr,omitempty"`
	Name  string `xml:",chardata"`
}

type Create struct {
	XMLName    xml.Name     `xml:"urn:ietf:params:xml:ns:domain-1.0 create"`
	Name       string       `xml:"name"`
	Period     *Period      `xml:"period,omitempty"`
	NS         *NameServers `xml:"ns,omitempty"`
	Registrant string       `xml:"registrant,omitempty"`
	Contacts   []Contact    `xml:"contact"`
	AuthInfo   AuthInfo     `xml:"authInfo"`
}

func (*Create) Namespace() string { return Namespace }

type Update struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:domain-1.0 update"`
	Name    string        `xml:"name"`
	Add     *UpdateSet    `xml:"add,omitempty"`
	Rem     *UpdateSet    `xml:"rem,omitempty"`
	Chg     *UpdateChange `xml:"chg,omitempty"`
}

func (*Update) Namespace() string { return Namespace }

type UpdateSet struct {
	NS       *NameServers `xml:"ns,omitempty"`
	Contacts []Contact    `xml:"contact"`
	Statuses []Status     `xml:"status"`
}

type UpdateChange struct {
	Registrant string    `xml:"registrant,omitempty"`
	AuthInfo   *AuthInfo `xml:"authInfo,omitempty"`
}

type Delete struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:domain-1.0 delete"`
	Name    string   `xml:"name"`
}

func (*Delete) Namespace() string { return Namespace }

type Transfer struct {
	XMLName  xml.Name  `xml:"urn:ietf:params:xml:ns:domain-1.0 transfer"`
	Name     string    `xml:"name"`
	Period   *Period   `xml:"period,omitempty"`
	AuthInfo *AuthInfo `xml:"authInfo,omitempty"`
}

func (*Transfer) Namespace() string { return Namespace }

type Renew struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:domain-1.0 renew"`
	Name    string   `xml:"name"`
	// CurExpDate is an xs:date, e.g. 2027-04-03.
	CurExpDate string  `xml:"curExpDate"`
	Period     *Period `xml:"period,omitempty"`
}

func (*Renew) Namespace() string { return Namespace }

type CheckData struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:domain-1.0 chkData"`
	Results []CheckResult `xml:"cd"`
}

func (*CheckData) Namespace() string { return Namespace }

// Available reports the availability of name and whether it was checked.
func (c *CheckData) Available(name string) (avail bool, found bool) {
	for _, r := range c.Results {
		if r.Name.Name == name {
			return r.Name.Avail, true
		}
	}
	return false, false
}

type CheckResult struct {
	Name   CheckName `xml:"name"`
	Reason string    `xml:"reason,omitempty"`
}

type CheckName struct {
	Avail bool   `xml:"avail,attr"`
	Name  string `xml:",chardata"`
}

type InfoData struct {
	XMLName     xml.Name     `xml:"urn:ietf:params:xml:ns:domain-1.0 infData"`
	Name        string       `xml:"name"`
	ROID        string       `xml:"roid"`
	Statuses    []Status     `xml:"status"`
	Registrant  string       `xml:"registrant,omitempty"`
	Contacts    []Contact    `xml:"contact"`
	NS          *NameServers `xml:"ns,omitempty"`
	Hosts       []string     `xml:"host"`
	ClientID    string       `xml:"clID"`
	CreatorID   string       `xml:"crID,omitempty"`
	Created     *time.Time   `xml:"crDate,omitempty"`
	UpdaterID   string       `xml:"upID,omitempty"`
	Updated     *time.Time   `xml:"upDate,omitempty"`
	Expires     *time.Time   `xml:"exDate,omitempty"`
	Transferred *time.Time   `xml:"trDate,omitempty"`
	AuthInfo    *AuthInfo    `xml:"authInfo,omitempty"`
}

func (*InfoData) Namespace() string { return Namespace }

type CreateData struct {
	XMLName xml.Name   `xml:"urn:ietf:params:xml:ns:domain-1.0 creData"`
	Name    string     `xml:"name"`
	Created time.Time  `xml:"crDate"`
	Expires *time.Time `xml:"exDate,omitempty"`
}

func (*CreateData) Namespace() string { return Namespace }

type RenewData struct {
	XMLName xml.Name   `xml:"urn:ietf:params:xml:ns:domain-1.0 renData"`
	Name    string     `xml:"name"`
	Expires *time.Time `xml:"exDate,omitempty"`
}

func (*RenewData) Namespace() string { return Namespace }

type TransferData struct {
	XMLName     xml.Name   `xml:"urn:ietf:params:xml:ns:domain-1.0 trnData"`
	Name        string     `xml:"name"`
	Status      string     `xml:"trStatus"`
	RequestedBy string     `xml:"reID"`
	Requested   time.Time  `xml:"reDate"`
	ActionBy    string     `xml:"acID"`
	ActionDate  time.Time  `xml:"acDate"`
	Expires     *time.Time `xml:"exDate,omitempty"`
}

func (*TransferData) Namespace() string { return Namespace }

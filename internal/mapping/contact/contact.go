// Package contact is the EPP contact mapping (RFC 5733).
package contact

import (
	"encoding/xml"
	"time"

	"github.com/danmuck/eppkit/internal/protocol/codec"
)

const Namespace = "urn:ietf:params:xml:ns:contact-1.0"

var Factory = &codec.ElementMapping{
	Commands: map[codec.Verb]codec.Elements{
		codec.VerbCheck:    {"check": func() codec.Component { return &Check{} }},
		codec.VerbInfo:     {"info": func() codec.Component { return &Info{} }},
		codec.VerbCreate:   {"create": func() codec.Component { return &Create{} }},
		codec.VerbUpdate:   {"update": func() codec.Component { return &Update{} }},
		codec.VerbDelete:   {"delete": func() codec.Component { return &Delete{} }},
		codec.VerbTransfer: {"transfer": func() codec.Component { return &Transfer{} }},
	},
	Responses: codec.Elements{
		"chkData": func() codec.Component { return &CheckData{} },
		"infData": func() codec.Component { return &InfoData{} },
		"creData": func() codec.Component { return &CreateData{} },
		"trnData": func() codec.Component { return &TransferData{} },
	},
}

func Register(reg *codec.Registry) error {
	return reg.RegisterMapping(Namespace, Factory)
}

// Postal info types.
const (
	PostalLocal         = "loc"
	PostalInternational = "int"
)

type AuthInfo struct {
	Password string `xml:"pw"`
}

type Address struct {
	Street      []string `xml:"street"`
	City        string   `xml:"city"`
	Province    string   `xml:"sp,omitempty"`
	PostalCode  string   `xml:"pc,omitempty"`
	CountryCode string   `xml:"cc"`
}

type PostalInfo struct {
	Type    string  `xml:"type,attr"`
	Name    string  `xml:"name"`
	Org     string  `xml:"org,omitempty"`
	Address Address `xml:"addr"`
}

type Phone struct {
	Ext    string `xml:"x,attr,omitempty"`
	Number string `xml:",chardata"`
}

type Status struct {
	S    string `xml:"s,attr"`
	Text string `xml:",chardata"`
}

type Check struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:contact-1.0 check"`
	IDs     []string `xml:"id"`
}

func (*Check) Namespace() string { return Namespace }

type Info struct {
	XMLName  xml.Name  `xml:"urn:ietf:params:xml:ns:contact-1.0 info"`
	ID       string    `xml:"id"`
	AuthInfo *AuthInfo `xml:"authInfo,omitempty"`
}

func (*Info) Namespace() string { return Namespace }

type Create struct {
	XMLName    xml.Name     `xml:"urn:ietf:params:xml:ns:contact-1.0 create"`
	ID         string       `xml:"id"`
	PostalInfo []PostalInfo `xml:"postalInfo"`
	Voice      *Phone       `xml:"voice,omitempty"`
	Fax        *Phone       `xml:"fax,omitempty"`
	Email      string       `xml:"email"`
	AuthInfo   AuthInfo     `xml:"authInfo"`
}

func (*Create) Namespace() string { return Namespace }

type Update struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:contact-1.0 update"`
	ID      string        `xml:"id"`
	Add     *StatusSet    `xml:"add,omitempty"`
	Rem     *StatusSet    `xml:"rem,omitempty"`
	Chg     *UpdateChange `xml:"chg,omitempty"`
}

func (*Update) Namespace() string { return Namespace }

type StatusSet struct {
	Statuses []Status `xml:"status"`
}

type UpdateChange struct {
	PostalInfo []PostalInfo `xml:"postalInfo"`
	Voice      *Phone       `xml:"voice,omitempty"`
	Fax        *Phone       `xml:"fax,omitempty"`
	Email      string       `xml:"email,omitempty"`
	AuthInfo   *AuthInfo    `xml:"authInfo,omitempty"`
}

type Delete struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:contact-1.0 delete"`
	ID      string   `xml:"id"`
}

func (*Delete) Namespace() string { return Namespace }

type Transfer struct {
	XMLName  xml.Name  `xml:"urn:ietf:params:xml:ns:contact-1.0 transfer"`
	ID       string    `xml:"id"`
	AuthInfo *AuthInfo `xml:"authInfo,omitempty"`
}

func (*Transfer) Namespace() string { return Namespace }

type CheckData struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:contact-1.0 chkData"`
	Results []CheckResult `xml:"cd"`
}

func (*CheckData) Namespace() string { return Namespace }

func (c *CheckData) Available(id string) (avail bool, found bool) {
	for _, r := range c.Results {
		if r.ID.ID == id {
			return r.ID.Avail, true
		}
	}
	return false, false
}

type CheckResult struct {
	ID     CheckID `xml:"id"`
	Reason string  `xml:"reason,omitempty"`
}

type CheckID struct {
	Avail bool   `xml:"avail,attr"`
	ID    string `xml:",chardata"`
}

type InfoData struct {
	XMLName    xml.Name     `xml:"urn:ietf:params:xml:ns:contact-1.0 infData"`
	ID         string       `xml:"id"`
	ROID       string       `xml:"roid"`
	Statuses   []Status     `xml:"status"`
	PostalInfo []PostalInfo `xml:"postalInfo"`
	Voice      *Phone       `xml:"voice,omitempty"`
	Fax        *Phone       `xml:"fax,omitempty"`
	Email      string       `xml:"email"`
	ClientID   string       `xml:"clID"`
	CreatorID  string       `xml:"crID"`
	Created    time.Time    `xml:"crDate"`
	UpdaterID  string       `xml:"upID,omitempty"`
	Updated    *time.Time   `xml:"upDate,omitempty"`
	AuthInfo   *AuthInfo    `xml:"authInfo,omitempty"`
}

func (*InfoData) Namespace() string { return Namespace }

type CreateData struct {
	XMLName xml.Name  `xml:"urn:ietf:params:xml:ns:contact-1.0 creData"`
	ID      string    `xml:"id"`
	Created time.Time `xml:"crDate"`
}

func (*CreateData) Namespace() string { return Namespace }

type TransferData struct {
	XMLName     xml.Name  `xml:"urn:ietf:params:xml:ns:contact-1.0 trnData"`
	ID          string    `xml:"id"`
	Status      string    `xml:"trStatus"`
	RequestedBy string    `xml:"reID"`
	Requested   time.Time `xml:"reDate"`
	ActionBy    string    `xml:"acID"`
	ActionDate  time.Time `xml:"acDate"`
}

func (*TransferData) Namespace() string { return Namespace }

// Package host is the EPP host mapping (RFC 5732).
package host

import (
	"encoding/xml"
	"net/netip"
	"time"

	"github.com/danmuck/eppkit/internal/protocol/codec"
)

const Namespace = "urn:ietf:params:xml:ns:host-1.0"

var Factory = &codec.ElementMapping{
	Commands: map[codec.Verb]codec.Elements{
		codec.VerbCheck:  {"check": func() codec.Component { return &Check{} }},
		codec.VerbInfo:   {"info": func() codec.Component { return &Info{} }},
		codec.VerbCreate: {"create": func() codec.Component { return &Create{} }},
		codec.VerbUpdate: {"update": func() codec.Component { return &Update{} }},
		codec.VerbDelete: {"delete": func() codec.Component { return &Delete{} }},
	},
	Responses: codec.Elements{
		"chkData": func() codec.Component { return &CheckData{} },
		"infData": func() codec.Component { return &InfoData{} },
		"creData": func() codec.Component { return &CreateData{} },
	},
}

func Register(reg *codec.Registry) error {
	return reg.RegisterMapping(Namespace, Factory)
}

const (
	IPv4 = "v4"
	IPv6 = "v6"
)

type Address struct {
	IP      string `xml:"ip,attr,omitempty"`
	Address string `xml:",chardata"`
}

// ParseAddress builds an Address with the ip attribute set from the literal.
func ParseAddress(s string) (Address, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Address{}, err
	}
	addr = addr.Unmap()
	version := IPv4
	if addr.Is6() {
		version = IPv6
	}
	return Address{IP: version, Address: addr.String()}, nil
}

type Status struct {
	S    string `xml:"s,attr"`
	Text string `xml:",chardata"`
}

type Check struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:host-1.0 check"`
	Names   []string `xml:"name"`
}

func (*Check) Namespace() string { return Namespace }

type Info struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:host-1.0 info"`
	Name    string   `xml:"name"`
}

func (*Info) Namespace() string { return Namespace }

type Create struct {
	XMLName   xml.Name  `xml:"urn:ietf:params:xml:ns:host-1.0 create"`
	Name      string    `xml:"name"`
	Addresses []Address `xml:"addr"`
}

func (*Create) Namespace() string { return Namespace }

type Update struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:host-1.0 update"`
	Name    string        `xml:"name"`
	Add     *UpdateSet    `xml:"add,omitempty"`
	Rem     *UpdateSet    `xml:"rem,omitempty"`
	Chg     *UpdateChange `xml:"chg,omitempty"`
}

func (*Update) Namespace() string { return Namespace }

type UpdateSet struct {
	Addresses []Address `xml:"addr"`
	Statuses  []Status  `xml:"status"`
}

type UpdateChange struct {
	Name string `xml:"name"`
}

type Delete struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:host-1.0 delete"`
	Name    string   `xml:"name"`
}

func (*Delete) Namespace() string { return Namespace }

type CheckData struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:host-1.0 chkData"`
	Results []CheckResult `xml:"cd"`
}

func (*CheckData) Namespace() string { return Namespace }

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
	XMLName   xml.Name   `xml:"urn:ietf:params:xml:ns:host-1.0 infData"`
	Name      string     `xml:"name"`
	ROID      string     `xml:"roid"`
	Statuses  []Status   `xml:"status"`
	Addresses []Address  `xml:"addr"`
	ClientID  string     `xml:"clID"`
	CreatorID string     `xml:"crID"`
	Created   time.Time  `xml:"crDate"`
	UpdaterID string     `xml:"upID,omitempty"`
	Updated   *time.Time `xml:"upDate,omitempty"`
}

func (*InfoData) Namespace() string { return Namespace }

type CreateData struct {
	XMLName xml.Name  `xml:"urn:ietf:params:xml:ns:host-1.0 creData"`
	Name    string    `xml:"name"`
	Created time.Time `xml:"crDate"`
}

func (*CreateData) Namespace() string { return Namespace }

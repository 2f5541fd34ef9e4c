// Package secdns is the DNSSEC extension to the domain mapping in both of its
// incompatible versions: 1.0 (RFC 4310) and 1.1 (RFC 5910).
package secdns

import (
	"encoding/xml"
	"fmt"

	"github.com/danmuck/eppkit/internal/protocol/codec"
)

const (
	NamespaceV10 = "urn:ietf:params:xml:ns:secDNS-1.0"
	NamespaceV11 = "urn:ietf:params:xml:ns:secDNS-1.1"
)

var (
	FactoryV10 = &codec.ElementExtension{Elements: codec.Elements{
		"create":  func() codec.Component { return &CreateV10{} },
		"update":  func() codec.Component { return &UpdateV10{} },
		"infData": func() codec.Component { return &InfoDataV10{} },
	}}
	FactoryV11 = &codec.ElementExtension{Elements: codec.Elements{
		"create":  func() codec.Component { return &CreateV11{} },
		"update":  func() codec.Component { return &UpdateV11{} },
		"infData": func() codec.Component { return &InfoDataV11{} },
	}}
)

// Register binds both versions.
func Register(reg *codec.Registry) error {
	if err := reg.RegisterExtension(NamespaceV10, FactoryV10); err != nil {
		return err
	}
	return reg.RegisterExtension(NamespaceV11, FactoryV11)
}

// DSData is a delegation signer record. Element names are shared by both
// versions; the namespace comes from the enclosing element.
type DSData struct {
	KeyTag     uint16   `xml:"keyTag"`
	Alg        uint8    `xml:"alg"`
	DigestType uint8    `xml:"digestType"`
	Digest     string   `xml:"digest"`
	MaxSigLife int      `xml:"maxSigLife,omitempty"`
	KeyData    *KeyData `xml:"keyData,omitempty"`
}

type KeyData struct {
	Flags    uint16 `xml:"flags"`
	Protocol uint8  `xml:"protocol"`
	Alg      uint8  `xml:"alg"`
	PubKey   string `xml:"pubKey"`
}

func (d DSData) String() string {
	return fmt.Sprintf("%d %d %d %s", d.KeyTag, d.Alg, d.DigestType, d.Digest)
}

type CreateV10 struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:secDNS-1.0 create"`
	DSData  []DSData `xml:"dsData"`
}

func (*CreateV10) Namespace() string { return NamespaceV10 }

type UpdateV10 struct {
	XMLName xml.Name   `xml:"urn:ietf:params:xml:ns:secDNS-1.0 update"`
	Urgent  bool       `xml:"urgent,attr,omitempty"`
	Add     *DSSetV10  `xml:"add,omitempty"`
	Chg     *DSSetV10  `xml:"chg,omitempty"`
	Rem     *KeyTagSet `xml:"rem,omitempty"`
}

func (*UpdateV10) Namespace() string { return NamespaceV10 }

type DSSetV10 struct {
	DSData []DSData `xml:"dsData"`
}

// KeyTagSet removes records by key tag; version 1.0 has no other selector.
type KeyTagSet struct {
	KeyTags []uint16 `xml:"keyTag"`
}

type InfoDataV10 struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:secDNS-1.0 infData"`
	DSData  []DSData `xml:"dsData"`
}

func (*InfoDataV10) Namespace() string { return NamespaceV10 }

type CreateV11 struct {
	XMLName    xml.Name  `xml:"urn:ietf:params:xml:ns:secDNS-1.1 create"`
	MaxSigLife int       `xml:"maxSigLife,omitempty"`
	DSData     []DSData  `xml:"dsData"`
	KeyData    []KeyData `xml:"keyData"`
}

func (*CreateV11) Namespace() string { return NamespaceV11 }

type UpdateV11 struct {
	XMLName xml.Name   `xml:"urn:ietf:params:xml:ns:secDNS-1.1 update"`
	Urgent  bool       `xml:"urgent,attr,omitempty"`
	Rem     *RemSetV11 `xml:"rem,omitempty"`
	Add     *DSSetV11  `xml:"add,omitempty"`
	Chg     *ChgV11    `xml:"chg,omitempty"`
}

func (*UpdateV11) Namespace() string { return NamespaceV11 }

type DSSetV11 struct {
	DSData  []DSData  `xml:"dsData"`
	KeyData []KeyData `xml:"keyData"`
}

// RemSetV11 removes everything when All is set, otherwise the listed records.
type RemSetV11 struct {
	All     bool      `xml:"all,omitempty"`
	DSData  []DSData  `xml:"dsData"`
	KeyData []KeyData `xml:"keyData"`
}

type ChgV11 struct {
	MaxSigLife int `xml:"maxSigLife,omitempty"`
}

type InfoDataV11 struct {
	XMLName    xml.Name  `xml:"urn:ietf:params:xml:ns:secDNS-1.1 infData"`
	MaxSigLife int       `xml:"maxSigLife,omitempty"`
	DSData     []DSData  `xml:"dsData"`
	KeyData    []KeyData `xml:"keyData"`
}

func (*InfoDataV11) Namespace() string { return NamespaceV11 }

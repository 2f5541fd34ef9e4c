package client

import (
	"context"

	"github.com/danmuck/eppkit/internal/mapping/contact"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// Contact is a reusable handle for contact commands.
type Contact struct {
	common

	ids        []string
	postal     []contact.PostalInfo
	voice      string
	fax        string
	email      string
	authInfo   string
	transferOp string

	addStatus, remStatus []contact.Status
	chgPostal            []contact.PostalInfo
	chgEmail             string
	chgAuthInfo          string
}

func NewContact(s Sender) *Contact {
	return &Contact{common: common{sender: s}}
}

func (c *Contact) AddID(ids ...string) *Contact {
	c.ids = append(c.ids, ids...)
	return c
}

// AddPostalInfo appends a postal block; typ is contact.PostalLocal or
// contact.PostalInternational.
func (c *Contact) AddPostalInfo(typ, name, org string, addr contact.Address) *Contact {
	c.postal = append(c.postal, contact.PostalInfo{Type: typ, Name: name, Org: org, Address: addr})
	return c
}

func (c *Contact) SetVoice(number string) *Contact {
	c.voice = number
	return c
}

func (c *Contact) SetFax(number string) *Contact {
	c.fax = number
	return c
}

func (c *Contact) SetEmail(email string) *Contact {
	c.email = email
	return c
}

func (c *Contact) SetAuthInfo(pw string) *Contact {
	c.authInfo = pw
	return c
}

func (c *Contact) SetTransferOp(op string) *Contact {
	c.transferOp = op
	return c
}

func (c *Contact) AddExtension(ext codec.Component) *Contact {
	c.extensions = append(c.extensions, ext)
	return c
}

func (c *Contact) SetClientTRID(id string) *Contact {
	c.clTRID = id
	return c
}

func (c *Contact) AddStatus(s, text string) *Contact {
	c.addStatus = append(c.addStatus, contact.Status{S: s, Text: text})
	return c
}

func (c *Contact) RemoveStatus(s string) *Contact {
	c.remStatus = append(c.remStatus, contact.Status{S: s})
	return c
}

func (c *Contact) ChangePostalInfo(typ, name, org string, addr contact.Address) *Contact {
	c.chgPostal = append(c.chgPostal, contact.PostalInfo{Type: typ, Name: name, Org: org, Address: addr})
	return c
}

func (c *Contact) ChangeEmail(email string) *Contact {
	c.chgEmail = email
	return c
}

func (c *Contact) ChangeAuthInfo(pw string) *Contact {
	c.chgAuthInfo = pw
	return c
}

// Reset clears every accumulated field. Send methods call it on return.
func (c *Contact) Reset() {
	*c = Contact{common: common{sender: c.sender}}
}

func (c *Contact) first() (string, error) {
	if len(c.ids) == 0 {
		return "", missing("contact id")
	}
	return c.ids[0], nil
}

func phone(n string) *contact.Phone {
	if n == "" {
		return nil
	}
	return &contact.Phone{Number: n}
}

func contactAuth(pw string) *contact.AuthInfo {
	if pw == "" {
		return nil
	}
	return &contact.AuthInfo{Password: pw}
}

func (c *Contact) SendCheck(ctx context.Context) (*codec.Response, *contact.CheckData, error) {
	defer c.Reset()
	if len(c.ids) == 0 {
		return nil, nil, missing("contact id")
	}
	return exchange[*contact.CheckData](ctx, c.sender, c.command(codec.VerbCheck, &contact.Check{IDs: c.ids}))
}

func (c *Contact) SendInfo(ctx context.Context) (*codec.Response, *contact.InfoData, error) {
	defer c.Reset()
	id, err := c.first()
	if err != nil {
		return nil, nil, err
	}
	cmd := c.command(codec.VerbInfo, &contact.Info{ID: id, AuthInfo: contactAuth(c.authInfo)})
	return exchange[*contact.InfoData](ctx, c.sender, cmd)
}

func (c *Contact) SendCreate(ctx context.Context) (*codec.Response, *contact.CreateData, error) {
	defer c.Reset()
	id, err := c.first()
	if err != nil {
		return nil, nil, err
	}
	switch {
	case len(c.postal) == 0:
		return nil, nil, missing("postalInfo")
	case c.email == "":
		return nil, nil, missing("email")
	case c.authInfo == "":
		return nil, nil, missing("authInfo")
	}
	cmd := c.command(codec.VerbCreate, &contact.Create{
		ID:         id,
		PostalInfo: c.postal,
		Voice:      phone(c.voice),
		Fax:        phone(c.fax),
		Email:      c.email,
		AuthInfo:   contact.AuthInfo{Password: c.authInfo},
	})
	return exchange[*contact.CreateData](ctx, c.sender, cmd)
}

func (c *Contact) SendUpdate(ctx context.Context) (*codec.Response, error) {
	defer c.Reset()
	id, err := c.first()
	if err != nil {
		return nil, err
	}
	update := &contact.Update{ID: id}
	if len(c.addStatus) > 0 {
		update.Add = &contact.StatusSet{Statuses: c.addStatus}
	}
	if len(c.remStatus) > 0 {
		update.Rem = &contact.StatusSet{Statuses: c.remStatus}
	}
	if len(c.chgPostal) > 0 || c.chgEmail != "" || c.chgAuthInfo != "" || c.voice != "" || c.fax != "" {
		update.Chg = &contact.UpdateChange{
			PostalInfo: c.chgPostal,
			Voice:      phone(c.voice),
			Fax:        phone(c.fax),
			Email:      c.chgEmail,
			AuthInfo:   contactAuth(c.chgAuthInfo),
		}
	}
	return c.sender.Send(ctx, c.command(codec.VerbUpdate, update))
}

func (c *Contact) SendDelete(ctx context.Context) (*codec.Response, error) {
	defer c.Reset()
	id, err := c.first()
	if err != nil {
		return nil, err
	}
	return c.sender.Send(ctx, c.command(codec.VerbDelete, &contact.Delete{ID: id}))
}

func (c *Contact) SendTransfer(ctx context.Context) (*codec.Response, *contact.TransferData, error) {
	defer c.Reset()
	id, err := c.first()
	if err != nil {
		return nil, nil, err
	}
	op := c.transferOp
	if op == "" {
		op = codec.TransferQuery
	}
	cmd := c.command(codec.VerbTransfer, &contact.Transfer{ID: id, AuthInfo: contactAuth(c.authInfo)})
	cmd.Op = op
	return exchange[*contact.TransferData](ctx, c.sender, cmd)
}

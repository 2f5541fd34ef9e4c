package client

import (
	"context"

	"github.com/danmuck/eppkit/internal/mapping/domain"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// Domain is a reusable handle for domain commands.
type Domain struct {
	common

	names      []string
	hosts      string
	period     *domain.Period
	ns         []string
	registrant string
	contacts   []domain.Contact
	authInfo   string
	curExpDate string
	transferOp string

	addNS, remNS             []string
	addContacts, remContacts []domain.Contact
	addStatus, remStatus     []domain.Status
	newRegistrant            string
	newAuthInfo              string
}

func NewDomain(s Sender) *Domain {
	return &Domain{common: common{sender: s}}
}

func (d *Domain) AddName(names ...string) *Domain {
	d.names = append(d.names, names...)
	return d
}

// SetHosts sets the info hosts filter: all, del, sub or none.
func (d *Domain) SetHosts(filter string) *Domain {
	d.hosts = filter
	return d
}

func (d *Domain) SetPeriod(p *domain.Period) *Domain {
	d.period = p
	return d
}

func (d *Domain) AddNameServer(hosts ...string) *Domain {
	d.ns = append(d.ns, hosts...)
	return d
}

func (d *Domain) SetRegistrant(id string) *Domain {
	d.registrant = id
	return d
}

func (d *Domain) AddContact(role, id string) *Domain {
	d.contacts = append(d.contacts, domain.Contact{Type: role, ID: id})
	return d
}

func (d *Domain) SetAuthInfo(pw string) *Domain {
	d.authInfo = pw
	return d
}

func (d *Domain) SetCurExpDate(date string) *Domain {
	d.curExpDate = date
	return d
}

func (d *Domain) SetTransferOp(op string) *Domain {
	d.transferOp = op
	return d
}

func (d *Domain) AddExtension(ext codec.Component) *Domain {
	d.extensions = append(d.extensions, ext)
	return d
}

func (d *Domain) SetClientTRID(id string) *Domain {
	d.clTRID = id
	return d
}

// Update-only setters.

func (d *Domain) AddNS(hosts ...string) *Domain {
	d.addNS = append(d.addNS, hosts...)
	return d
}

func (d *Domain) RemoveNS(hosts ...string) *Domain {
	d.remNS = append(d.remNS, hosts...)
	return d
}

func (d *Domain) AddUpdateContact(role, id string) *Domain {
	d.addContacts = append(d.addContacts, domain.Contact{Type: role, ID: id})
	return d
}

func (d *Domain) RemoveContact(role, id string) *Domain {
	d.remContacts = append(d.remContacts, domain.Contact{Type: role, ID: id})
	return d
}

func (d *Domain) AddStatus(s, text string) *Domain {
	d.addStatus = append(d.addStatus, domain.Status{S: s, Text: text})
	return d
}

func (d *Domain) RemoveStatus(s string) *Domain {
	d.remStatus = append(d.remStatus, domain.Status{S: s})
	return d
}

func (d *Domain) ChangeRegistrant(id string) *Domain {
	d.newRegistrant = id
	return d
}

func (d *Domain) ChangeAuthInfo(pw string) *Domain {
	d.newAuthInfo = pw
	return d
}

// Reset clears every accumulated field. Send methods call it on return.
func (d *Domain) Reset() {
	*d = Domain{common: common{sender: d.sender}}
}

func (d *Domain) first() (string, error) {
	if len(d.names) == 0 {
		return "", missing("domain name")
	}
	return d.names[0], nil
}

func (d *Domain) auth(pw string) *domain.AuthInfo {
	if pw == "" {
		return nil
	}
	return &domain.AuthInfo{Password: pw}
}

func (d *Domain) SendCheck(ctx context.Context) (*codec.Response, *domain.CheckData, error) {
	defer d.Reset()
	if len(d.names) == 0 {
		return nil, nil, missing("domain name")
	}
	cmd := d.command(codec.VerbCheck, &domain.Check{Names: d.names})
	return exchange[*domain.CheckData](ctx, d.sender, cmd)
}

func (d *Domain) SendInfo(ctx context.Context) (*codec.Response, *domain.InfoData, error) {
	defer d.Reset()
	name, err := d.first()
	if err != nil {
		return nil, nil, err
	}
	cmd := d.command(codec.VerbInfo, &domain.Info{
		Name:     domain.InfoName{Hosts: d.hosts, Name: name},
		AuthInfo: d.auth(d.authInfo),
	})
	return exchange[*domain.InfoData](ctx, d.sender, cmd)
}

func (d *Domain) SendCreate(ctx context.Context) (*codec.Response, *domain.CreateData, error) {
	defer d.Reset()
	name, err := d.first()
	if err != nil {
		return nil, nil, err
	}
	if d.authInfo == "" {
		return nil, nil, missing("authInfo")
	}
	create := &domain.Create{
		Name:       name,
		Period:     d.period,
		Registrant: d.registrant,
		Contacts:   d.contacts,
		AuthInfo:   domain.AuthInfo{Password: d.authInfo},
	}
	if len(d.ns) > 0 {
		create.NS = &domain.NameServers{HostObjs: d.ns}
	}
	return exchange[*domain.CreateData](ctx, d.sender, d.command(codec.VerbCreate, create))
}

func (d *Domain) SendUpdate(ctx context.Context) (*codec.Response, error) {
	defer d.Reset()
	name, err := d.first()
	if err != nil {
		return nil, err
	}
	update := &domain.Update{
		Name: name,
		Add:  updateSet(d.addNS, d.addContacts, d.addStatus),
		Rem:  updateSet(d.remNS, d.remContacts, d.remStatus),
	}
	if d.newRegistrant != "" || d.newAuthInfo != "" {
		update.Chg = &domain.UpdateChange{Registrant: d.newRegistrant, AuthInfo: d.auth(d.newAuthInfo)}
	}
	return d.sender.Send(ctx, d.command(codec.VerbUpdate, update))
}

func updateSet(ns []string, contacts []domain.Contact, statuses []domain.Status) *domain.UpdateSet {
	if len(ns) == 0 && len(contacts) == 0 && len(statuses) == 0 {
		return nil
	}
	set := &domain.UpdateSet{Contacts: contacts, Statuses: statuses}
	if len(ns) > 0 {
		set.NS = &domain.NameServers{HostObjs: ns}
	}
	return set
}

func (d *Domain) SendDelete(ctx context.Context) (*codec.Response, error) {
	defer d.Reset()
	name, err := d.first()
	if err != nil {
		return nil, err
	}
	return d.sender.Send(ctx, d.command(codec.VerbDelete, &domain.Delete{Name: name}))
}

// SendTransfer issues the transfer op set with SetTransferOp (default query).
func (d *Domain) SendTransfer(ctx context.Context) (*codec.Response, *domain.TransferData, error) {
	defer d.Reset()
	name, err := d.first()
	if err != nil {
		return nil, nil, err
	}
	op := d.transferOp
	if op == "" {
		op = codec.TransferQuery
	}
	cmd := d.command(codec.VerbTransfer, &domain.Transfer{
		Name:     name,
		Period:   d.period,
		AuthInfo: d.auth(d.authInfo),
	})
	cmd.Op = op
	return exchange[*domain.TransferData](ctx, d.sender, cmd)
}

func (d *Domain) SendRenew(ctx context.Context) (*codec.Response, *domain.RenewData, error) {
	defer d.Reset()
	name, err := d.first()
	if err != nil {
		return nil, nil, err
	}
	if d.curExpDate == "" {
		return nil, nil, missing("curExpDate")
	}
	cmd := d.command(codec.VerbRenew, &domain.Renew{Name: name, CurExpDate: d.curExpDate, Period: d.period})
	return exchange[*domain.RenewData](ctx, d.sender, cmd)
}

package server

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/eppkit/internal/auth"
	"github.com/danmuck/eppkit/internal/extension/secdns"
	"github.com/danmuck/eppkit/internal/mapping/contact"
	"github.com/danmuck/eppkit/internal/mapping/domain"
	"github.com/danmuck/eppkit/internal/mapping/host"
	"github.com/danmuck/eppkit/internal/pollq"
	"github.com/danmuck/eppkit/internal/protocol/codec"
	"github.com/danmuck/eppkit/internal/testutil/testlog"
)

var fixedNow = time.Date(2026, 4, 3, 22, 0, 0, 0, time.UTC)

type fixture struct {
	reg     *codec.Registry
	store   *Store
	queue   *pollq.Queue
	core    *CoreHandler
	domains *DomainHandler
	hosts   *HostHandler
	contact *ContactHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := codec.NewRegistry()
	if err := RegisterStandard(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	store := NewStore("TEST")
	queue := pollq.New(pollq.NewMemoryStore())
	accounts := auth.NewAccounts(
		auth.Account{ClientID: "ClientX", Password: "foo-BAR2"},
		auth.Account{ClientID: "ClientY", Password: "bar-FOO2"},
	)
	f := &fixture{
		reg:     reg,
		store:   store,
		queue:   queue,
		core:    NewCoreHandler(accounts, queue, Menu(reg)),
		domains: NewDomainHandler(store, NewNotifier(queue, reg)),
		hosts:   NewHostHandler(store),
		contact: NewContactHandler(store),
	}
	f.domains.now = func() time.Time { return fixedNow }
	f.hosts.now = f.domains.now
	f.contact.now = f.domains.now
	return f
}

func loggedIn(clientID string, extURIs ...string) *SessionData {
	return &SessionData{
		LoggedIn: true,
		ClientID: clientID,
		ObjURIs:  []string{domain.Namespace, contact.Namespace, host.Namespace},
		ExtURIs:  extURIs,
	}
}

func newEvent(verb codec.Verb, payload codec.Component, exts ...codec.Component) *Event {
	return &Event{
		Command:  &codec.Command{Verb: verb, Payload: payload, Extensions: exts, ClientTRID: "T-1"},
		SvTRID:   "SV-1",
		Received: fixedNow,
	}
}

func transferEvent(op string, payload *domain.Transfer) *Event {
	ev := newEvent(codec.VerbTransfer, payload)
	ev.Command.Op = op
	return ev
}

func expectCode(t *testing.T, resp *codec.Response, want codec.ResultCode) {
	t.Helper()
	if resp == nil {
		t.Fatalf("nil response, want %d", want)
	}
	if resp.Code() != want {
		t.Fatalf("code=%d want %d results=%+v", resp.Code(), want, resp.Results)
	}
}

func (f *fixture) createDomain(t *testing.T, sd *SessionData, name string, exts ...codec.Component) {
	t.Helper()
	ctx := context.Background()
	resp := f.domains.DoCreate(ctx, newEvent(codec.VerbCreate, &domain.Create{
		Name:     name,
		AuthInfo: domain.AuthInfo{Password: "2fooBAR"},
	}, exts...), sd)
	expectCode(t, resp, codec.CodeOK)
}

func TestDomainCheckAndInfo(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	x := loggedIn("ClientX")
	f.createDomain(t, x, "Example.COM")

	resp := f.domains.DoCheck(ctx, newEvent(codec.VerbCheck, &domain.Check{Names: []string{"example.com", "example.net"}}), x)
	expectCode(t, resp, codec.CodeOK)
	chk := resp.Data.(*domain.CheckData)
	if avail, found := chk.Available("example.com"); !found || avail {
		t.Fatalf("example.com avail=%t found=%t", avail, found)
	}
	if chk.Results[0].Reason != "In use" {
		t.Fatalf("reason=%q", chk.Results[0].Reason)
	}
	if avail, _ := chk.Available("example.net"); !avail {
		t.Fatalf("example.net should be available")
	}

	resp = f.domains.DoInfo(ctx, newEvent(codec.VerbInfo, &domain.Info{Name: domain.InfoName{Name: "example.com"}}), x)
	expectCode(t, resp, codec.CodeOK)
	info := resp.Data.(*domain.InfoData)
	if info.ROID == "" || info.ClientID != "ClientX" || info.AuthInfo == nil || info.AuthInfo.Password != "2fooBAR" {
		t.Fatalf("sponsor info=%+v", info)
	}
	if want := fixedNow.AddDate(1, 0, 0); info.Expires == nil || !info.Expires.Equal(want) {
		t.Fatalf("expires=%v want %v", info.Expires, want)
	}

	resp = f.domains.DoInfo(ctx, newEvent(codec.VerbInfo, &domain.Info{Name: domain.InfoName{Name: "example.com"}}), loggedIn("ClientY"))
	expectCode(t, resp, codec.CodeOK)
	if info := resp.Data.(*domain.InfoData); info.AuthInfo != nil || info.Created != nil {
		t.Fatalf("non-sponsor saw full info: %+v", info)
	}

	resp = f.domains.DoInfo(ctx, newEvent(codec.VerbInfo, &domain.Info{Name: domain.InfoName{Name: "missing.com"}}), x)
	expectCode(t, resp, codec.CodeObjectDoesNotExist)
}

func TestDomainCreateRejections(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	x := loggedIn("ClientX")
	f.createDomain(t, x, "example.com")

	cases := []struct {
		name string
		c    *domain.Create
		want codec.ResultCode
	}{
		{"exists", &domain.Create{Name: "EXAMPLE.com", AuthInfo: domain.AuthInfo{Password: "x"}}, codec.CodeObjectExists},
		{"no name", &domain.Create{AuthInfo: domain.AuthInfo{Password: "x"}}, codec.CodeMissingParameter},
		{"no authinfo", &domain.Create{Name: "a.com"}, codec.CodeMissingParameter},
		{"period", &domain.Create{Name: "a.com", Period: domain.Years(100), AuthInfo: domain.AuthInfo{Password: "x"}}, codec.CodeParameterRange},
		{"registrant", &domain.Create{Name: "a.com", Registrant: "nobody", AuthInfo: domain.AuthInfo{Password: "x"}}, codec.CodeObjectDoesNotExist},
		{"ns", &domain.Create{Name: "a.com", NS: &domain.NameServers{HostObjs: []string{"ns1.nowhere.net"}}, AuthInfo: domain.AuthInfo{Password: "x"}}, codec.CodeObjectDoesNotExist},
	}
	for _, tc := range cases {
		resp := f.domains.DoCreate(ctx, newEvent(codec.VerbCreate, tc.c), x)
		if resp.Code() != tc.want {
			t.Fatalf("%s: code=%d want %d", tc.name, resp.Code(), tc.want)
		}
	}
	if got := f.store.Counts()["domains"]; got != 1 {
		t.Fatalf("domains=%d want 1", got)
	}
}

func TestDomainUpdateAndDelete(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	x := loggedIn("ClientX")
	f.createDomain(t, x, "example.com")

	resp := f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{
		Name: "example.com",
		Add:  &domain.UpdateSet{Statuses: []domain.Status{{S: domain.StatusClientDeleteProhibited}}},
	}), loggedIn("ClientY"))
	expectCode(t, resp, codec.CodeAuthorizationError)

	resp = f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{
		Name: "example.com",
		Add:  &domain.UpdateSet{Statuses: []domain.Status{{S: domain.StatusServerHold}}},
	}), x)
	expectCode(t, resp, codec.CodeParameterPolicy)

	resp = f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{Name: "example.com"}), x)
	expectCode(t, resp, codec.CodeMissingParameter)

	resp = f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{
		Name: "example.com",
		Add:  &domain.UpdateSet{Statuses: []domain.Status{{S: domain.StatusClientDeleteProhibited}}},
		Chg:  &domain.UpdateChange{AuthInfo: &domain.AuthInfo{Password: "new-pw"}},
	}), x)
	expectCode(t, resp, codec.CodeOK)

	del := newEvent(codec.VerbDelete, &domain.Delete{Name: "example.com"})
	expectCode(t, f.domains.DoDelete(ctx, del, x), codec.CodeStatusProhibits)

	resp = f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{
		Name: "example.com",
		Rem:  &domain.UpdateSet{Statuses: []domain.Status{{S: domain.StatusClientDeleteProhibited}}},
	}), x)
	expectCode(t, resp, codec.CodeOK)
	expectCode(t, f.domains.DoDelete(ctx, del, x), codec.CodeOK)
	expectCode(t, f.domains.DoDelete(ctx, del, x), codec.CodeObjectDoesNotExist)
}

func TestDomainRenew(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	x := loggedIn("ClientX")
	f.createDomain(t, x, "example.com")
	cur := fixedNow.AddDate(1, 0, 0)

	resp := f.domains.DoRenew(ctx, newEvent(codec.VerbRenew, &domain.Renew{Name: "example.com", CurExpDate: "2030-01-01"}), x)
	expectCode(t, resp, codec.CodeParameterPolicy)

	resp = f.domains.DoRenew(ctx, newEvent(codec.VerbRenew, &domain.Renew{Name: "example.com", CurExpDate: "04/03/2027"}), x)
	expectCode(t, resp, codec.CodeParameterSyntax)

	resp = f.domains.DoRenew(ctx, newEvent(codec.VerbRenew, &domain.Renew{
		Name:       "example.com",
		CurExpDate: cur.Format("2006-01-02"),
		Period:     domain.Years(2),
	}), x)
	expectCode(t, resp, codec.CodeOK)
	ren := resp.Data.(*domain.RenewData)
	if want := cur.AddDate(2, 0, 0); ren.Expires == nil || !ren.Expires.Equal(want) {
		t.Fatalf("expires=%v want %v", ren.Expires, want)
	}
}

func TestDomainTransferLifecycle(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	x, y := loggedIn("ClientX"), loggedIn("ClientY")
	f.createDomain(t, x, "example.com")

	bad := &domain.Transfer{Name: "example.com", AuthInfo: &domain.AuthInfo{Password: "wrong"}}
	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferRequest, bad), y), codec.CodeInvalidAuthInfo)

	good := &domain.Transfer{Name: "example.com", AuthInfo: &domain.AuthInfo{Password: "2fooBAR"}}
	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferRequest, good), x), codec.CodeNotEligibleTransfer)

	resp := f.domains.DoTransfer(ctx, transferEvent(codec.TransferRequest, good), y)
	expectCode(t, resp, codec.CodeOKPending)
	trn := resp.Data.(*domain.TransferData)
	if trn.Status != domain.TransferPending || trn.RequestedBy != "ClientY" || trn.ActionBy != "ClientX" {
		t.Fatalf("trnData=%+v", trn)
	}
	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferRequest, good), y), codec.CodePendingTransfer)
	expectCode(t, f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{
		Name: "example.com",
		Chg:  &domain.UpdateChange{AuthInfo: &domain.AuthInfo{Password: "x"}},
	}), x), codec.CodeStatusProhibits)

	query := &domain.Transfer{Name: "example.com"}
	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferQuery, query), loggedIn("ClientZ")), codec.CodeAuthorizationError)
	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferQuery, query), x), codec.CodeOK)

	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferCancel, query), x), codec.CodeAuthorizationError)
	resp = f.domains.DoTransfer(ctx, transferEvent(codec.TransferCancel, query), y)
	expectCode(t, resp, codec.CodeOK)
	if got := resp.Data.(*domain.TransferData).Status; got != domain.TransferClientCancelled {
		t.Fatalf("status=%q", got)
	}
	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferApprove, query), x), codec.CodeNotPendingTransfer)

	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferRequest, good), y), codec.CodeOKPending)
	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferApprove, query), y), codec.CodeAuthorizationError)
	expectCode(t, f.domains.DoTransfer(ctx, transferEvent(codec.TransferApprove, query), x), codec.CodeOK)

	resp = f.domains.DoInfo(ctx, newEvent(codec.VerbInfo, &domain.Info{Name: domain.InfoName{Name: "example.com"}}), y)
	info := resp.Data.(*domain.InfoData)
	if info.ClientID != "ClientY" {
		t.Fatalf("sponsor=%q after approve", info.ClientID)
	}
	for _, st := range info.Statuses {
		if st.S == domain.StatusPendingTransfer {
			t.Fatalf("pendingTransfer status survived approve")
		}
	}

	// request and cancel notified the sponsor, the second request too
	if n, err := f.queue.Size(ctx, "ClientX"); err != nil || n != 3 {
		t.Fatalf("ClientX queue=%d err=%v", n, err)
	}
	if n, err := f.queue.Size(ctx, "ClientY"); err != nil || n != 1 {
		t.Fatalf("ClientY queue=%d err=%v", n, err)
	}
}

func dsRecord(tag uint16, life int) secdns.DSData {
	return secdns.DSData{KeyTag: tag, Alg: 8, DigestType: 2, Digest: "49FD46E6C4B45C55D4AC49FD46E6C4B45C55D4AC49FD46E6C4B45C55D4AC", MaxSigLife: life}
}

func TestDomainSecDNSVariants(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	v10 := loggedIn("ClientX", secdns.NamespaceV10)
	f.createDomain(t, v10, "example.com", &secdns.CreateV10{DSData: []secdns.DSData{dsRecord(12345, 604800)}})

	resp := f.domains.DoCreate(ctx, newEvent(codec.VerbCreate,
		&domain.Create{Name: "example.net", AuthInfo: domain.AuthInfo{Password: "x"}},
		&secdns.CreateV11{DSData: []secdns.DSData{dsRecord(1, 0)}}), v10)
	expectCode(t, resp, codec.CodeUnimplementedExtension)

	both := loggedIn("ClientX", secdns.NamespaceV10, secdns.NamespaceV11)
	resp = f.domains.DoCreate(ctx, newEvent(codec.VerbCreate,
		&domain.Create{Name: "example.net", AuthInfo: domain.AuthInfo{Password: "x"}},
		&secdns.CreateV10{DSData: []secdns.DSData{dsRecord(1, 0)}},
		&secdns.CreateV11{DSData: []secdns.DSData{dsRecord(1, 0)}}), both)
	expectCode(t, resp, codec.CodeParameterPolicy)
	if ext := resp.Results[0].ExtValues; len(ext) != 1 || ext[0].Reason != secdns.ConflictReason {
		t.Fatalf("extValues=%+v", ext)
	}

	resp = f.domains.DoCreate(ctx, newEvent(codec.VerbCreate,
		&domain.Create{Name: "example.org", AuthInfo: domain.AuthInfo{Password: "x"}},
		&secdns.CreateV11{
			DSData:  []secdns.DSData{dsRecord(1, 0)},
			KeyData: []secdns.KeyData{{Flags: 257, Protocol: 3, Alg: 8, PubKey: "AQPJ"}},
		}), both)
	expectCode(t, resp, codec.CodeParameterPolicy)

	// A 1.1 session sees the 1.0-created records in 1.1 shape.
	info := newEvent(codec.VerbInfo, &domain.Info{Name: domain.InfoName{Name: "example.com"}})
	resp = f.domains.DoInfo(ctx, info, both)
	ext, ok := codec.ExtensionOf[*secdns.InfoDataV11](resp.Extensions)
	if !ok || ext.MaxSigLife != 604800 || len(ext.DSData) != 1 || ext.DSData[0].MaxSigLife != 0 {
		t.Fatalf("infData v1.1=%+v ok=%t", ext, ok)
	}
	resp = f.domains.DoInfo(ctx, info, v10)
	old, ok := codec.ExtensionOf[*secdns.InfoDataV10](resp.Extensions)
	if !ok || len(old.DSData) != 1 || old.DSData[0].MaxSigLife != 604800 {
		t.Fatalf("infData v1.0=%+v ok=%t", old, ok)
	}

	resp = f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{Name: "example.com"},
		&secdns.UpdateV11{Rem: &secdns.RemSetV11{All: true}}), both)
	expectCode(t, resp, codec.CodeOK)
	resp = f.domains.DoInfo(ctx, info, both)
	if len(resp.Extensions) != 0 {
		t.Fatalf("secDNS data survived rem all: %+v", resp.Extensions)
	}

	resp = f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{Name: "example.com"},
		&secdns.UpdateV10{Urgent: true, Add: &secdns.DSSetV10{DSData: []secdns.DSData{dsRecord(2, 0)}}}), v10)
	expectCode(t, resp, codec.CodeUnimplementedOption)
}

func TestHostRules(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	x := loggedIn("ClientX")
	f.createDomain(t, x, "example.com")

	create := func(sd *SessionData, name string, addrs ...string) *codec.Response {
		c := &host.Create{Name: name}
		for _, a := range addrs {
			c.Addresses = append(c.Addresses, host.Address{Address: a})
		}
		return f.hosts.DoCreate(ctx, newEvent(codec.VerbCreate, c), sd)
	}
	expectCode(t, create(x, "ns1.example.com"), codec.CodeMissingParameter)
	expectCode(t, create(loggedIn("ClientY"), "ns1.example.com", "192.0.2.1"), codec.CodeAuthorizationError)
	expectCode(t, create(x, "ns1.example.com", "127.0.0.1"), codec.CodeParameterPolicy)
	expectCode(t, create(x, "ns1.example.com", "not-an-ip"), codec.CodeParameterSyntax)
	expectCode(t, create(x, "ns1.example.com", "192.0.2.1", "2001:db8::1"), codec.CodeOK)
	expectCode(t, create(x, "ns1.example.com", "192.0.2.2"), codec.CodeObjectExists)
	expectCode(t, create(x, "ns.other.net", "192.0.2.3"), codec.CodeParameterPolicy)
	expectCode(t, create(x, "ns.other.net"), codec.CodeOK)

	resp := f.hosts.DoInfo(ctx, newEvent(codec.VerbInfo, &host.Info{Name: "NS1.example.com"}), x)
	expectCode(t, resp, codec.CodeOK)
	if info := resp.Data.(*host.InfoData); len(info.Addresses) != 2 || info.Addresses[1].IP != host.IPv6 {
		t.Fatalf("addresses=%+v", info.Addresses)
	}

	update := func(sd *SessionData, u *host.Update) *codec.Response {
		return f.hosts.DoUpdate(ctx, newEvent(codec.VerbUpdate, u), sd)
	}
	glue := func(addrs ...string) *host.UpdateSet {
		set := &host.UpdateSet{}
		for _, a := range addrs {
			set.Addresses = append(set.Addresses, host.Address{Address: a})
		}
		return set
	}
	expectCode(t, update(x, &host.Update{Name: "ns.other.net", Add: glue("192.0.2.9")}), codec.CodeParameterPolicy)
	expectCode(t, update(x, &host.Update{Name: "ns1.example.com", Rem: glue("192.0.2.1", "2001:db8::1")}), codec.CodeMissingParameter)
	expectCode(t, update(x, &host.Update{Name: "ns1.example.com", Rem: glue("2001:db8::1")}), codec.CodeOK)
	expectCode(t, update(x, &host.Update{Name: "ns.other.net", Chg: &host.UpdateChange{Name: "ns3.example.com"}}), codec.CodeMissingParameter)
	f.createDomain(t, loggedIn("ClientY"), "example.org")
	expectCode(t, update(x, &host.Update{
		Name: "ns.other.net",
		Add:  glue("192.0.2.9"),
		Chg:  &host.UpdateChange{Name: "ns.example.org"},
	}), codec.CodeAuthorizationError)
	expectCode(t, f.hosts.DoInfo(ctx, newEvent(codec.VerbInfo, &host.Info{Name: "ns.other.net"}), x), codec.CodeOK)

	expectCode(t, update(x, &host.Update{
		Name: "ns.other.net",
		Add:  glue("192.0.2.9"),
		Chg:  &host.UpdateChange{Name: "ns3.example.com"},
	}), codec.CodeOK)
	expectCode(t, update(x, &host.Update{Name: "ns3.example.com", Chg: &host.UpdateChange{Name: "ns.other.net"}}), codec.CodeParameterPolicy)
	expectCode(t, update(x, &host.Update{
		Name: "ns3.example.com",
		Rem:  glue("192.0.2.9"),
		Chg:  &host.UpdateChange{Name: "ns.other.net"},
	}), codec.CodeOK)
	expectCode(t, f.hosts.DoInfo(ctx, newEvent(codec.VerbInfo, &host.Info{Name: "ns3.example.com"}), x), codec.CodeObjectDoesNotExist)

	resp = f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{
		Name: "example.com",
		Add:  &domain.UpdateSet{NS: &domain.NameServers{HostObjs: []string{"ns1.example.com", "ns.other.net"}}},
	}), x)
	expectCode(t, resp, codec.CodeOK)

	expectCode(t, f.hosts.DoDelete(ctx, newEvent(codec.VerbDelete, &host.Delete{Name: "ns.other.net"}), x), codec.CodeAssociationProhibits)
	expectCode(t, f.hosts.DoUpdate(ctx, newEvent(codec.VerbUpdate, &host.Update{
		Name: "ns1.example.com",
		Chg:  &host.UpdateChange{Name: "ns2.example.com"},
	}), x), codec.CodeAssociationProhibits)

	resp = f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{
		Name: "example.com",
		Rem:  &domain.UpdateSet{NS: &domain.NameServers{HostObjs: []string{"NS.OTHER.NET"}}},
	}), x)
	expectCode(t, resp, codec.CodeOK)
	expectCode(t, f.hosts.DoDelete(ctx, newEvent(codec.VerbDelete, &host.Delete{Name: "ns.other.net"}), x), codec.CodeOK)
	if got := f.store.Counts()["hosts"]; got != 1 {
		t.Fatalf("hosts=%d want 1", got)
	}

	delDomain := newEvent(codec.VerbDelete, &domain.Delete{Name: "Example.COM"})
	expectCode(t, f.domains.DoDelete(ctx, delDomain, x), codec.CodeAssociationProhibits)
	resp = f.domains.DoUpdate(ctx, newEvent(codec.VerbUpdate, &domain.Update{
		Name: "example.com",
		Rem:  &domain.UpdateSet{NS: &domain.NameServers{HostObjs: []string{"ns1.example.com"}}},
	}), x)
	expectCode(t, resp, codec.CodeOK)
	expectCode(t, f.hosts.DoDelete(ctx, newEvent(codec.VerbDelete, &host.Delete{Name: "ns1.example.com"}), x), codec.CodeOK)
	expectCode(t, f.domains.DoDelete(ctx, delDomain, x), codec.CodeOK)
	if got := f.store.Counts()["domains"]; got != 1 {
		t.Fatalf("domains=%d want 1", got)
	}
}

func TestContactLifecycle(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	x := loggedIn("ClientX")
	postal := contact.PostalInfo{
		Type:    contact.PostalInternational,
		Name:    "John Doe",
		Address: contact.Address{City: "Dulles", CountryCode: "US"},
	}

	resp := f.contact.DoCreate(ctx, newEvent(codec.VerbCreate, &contact.Create{ID: "sh8013", Email: "jdoe@example.com"}), x)
	expectCode(t, resp, codec.CodeMissingParameter)
	resp = f.contact.DoCreate(ctx, newEvent(codec.VerbCreate, &contact.Create{
		ID:         "sh8013",
		PostalInfo: []contact.PostalInfo{postal},
		Email:      "jdoe@example.com",
		AuthInfo:   contact.AuthInfo{Password: "2fooBAR"},
	}), x)
	expectCode(t, resp, codec.CodeOK)

	resp = f.domains.DoCreate(ctx, newEvent(codec.VerbCreate, &domain.Create{
		Name:       "example.com",
		Registrant: "sh8013",
		Contacts:   []domain.Contact{{Type: domain.ContactAdmin, ID: "sh8013"}},
		AuthInfo:   domain.AuthInfo{Password: "x"},
	}), x)
	expectCode(t, resp, codec.CodeOK)

	expectCode(t, f.contact.DoInfo(ctx, newEvent(codec.VerbInfo, &contact.Info{ID: "sh8013"}), loggedIn("ClientY")), codec.CodeAuthorizationError)
	resp = f.contact.DoInfo(ctx, newEvent(codec.VerbInfo, &contact.Info{ID: "sh8013", AuthInfo: &contact.AuthInfo{Password: "2fooBAR"}}), loggedIn("ClientY"))
	expectCode(t, resp, codec.CodeOK)

	resp = f.contact.DoUpdate(ctx, newEvent(codec.VerbUpdate, &contact.Update{
		ID:  "sh8013",
		Chg: &contact.UpdateChange{Email: "new@example.com"},
	}), x)
	expectCode(t, resp, codec.CodeOK)
	resp = f.contact.DoInfo(ctx, newEvent(codec.VerbInfo, &contact.Info{ID: "SH8013"}), x)
	if info := resp.Data.(*contact.InfoData); info.Email != "new@example.com" || info.UpdaterID != "ClientX" {
		t.Fatalf("info=%+v", info)
	}

	del := newEvent(codec.VerbDelete, &contact.Delete{ID: "sh8013"})
	expectCode(t, f.contact.DoDelete(ctx, del, x), codec.CodeAssociationProhibits)
	expectCode(t, f.domains.DoDelete(ctx, newEvent(codec.VerbDelete, &domain.Delete{Name: "example.com"}), x), codec.CodeOK)
	expectCode(t, f.contact.DoDelete(ctx, del, x), codec.CodeOK)
}

func TestCoreLogin(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	login := func(mut func(*codec.Login)) *codec.Login {
		l := &codec.Login{
			ClientID: "ClientX",
			Password: "foo-BAR2",
			Options:  codec.LoginOptions{Version: "1.0", Lang: "en"},
			Services: codec.Services{ObjURIs: []string{domain.Namespace}},
		}
		if mut != nil {
			mut(l)
		}
		return l
	}
	cases := []struct {
		name string
		mut  func(*codec.Login)
		want codec.ResultCode
	}{
		{"version", func(l *codec.Login) { l.Options.Version = "2.0" }, codec.CodeUnimplementedVersion},
		{"lang", func(l *codec.Login) { l.Options.Lang = "fr" }, codec.CodeUnimplementedOption},
		{"no objects", func(l *codec.Login) { l.Services.ObjURIs = nil }, codec.CodeMissingParameter},
		{"object", func(l *codec.Login) { l.Services.ObjURIs = []string{"urn:example:widget-1.0"} }, codec.CodeUnimplementedService},
		{"extension", func(l *codec.Login) {
			l.Services.Extension = codec.NewServiceExtension([]string{"urn:example:ext-1.0"})
		}, codec.CodeUnimplementedExtension},
	}
	for _, tc := range cases {
		sd := &SessionData{}
		resp := f.core.DoLogin(ctx, newEvent(codec.VerbLogin, login(tc.mut)), sd)
		if resp.Code() != tc.want || sd.LoggedIn {
			t.Fatalf("%s: code=%d want %d logged_in=%t", tc.name, resp.Code(), tc.want, sd.LoggedIn)
		}
	}

	sd := &SessionData{}
	wrong := login(func(l *codec.Login) { l.Password = "nope" })
	expectCode(t, f.core.DoLogin(ctx, newEvent(codec.VerbLogin, wrong), sd), codec.CodeAuthenticationError)
	expectCode(t, f.core.DoLogin(ctx, newEvent(codec.VerbLogin, wrong), sd), codec.CodeAuthenticationError)
	resp := f.core.DoLogin(ctx, newEvent(codec.VerbLogin, wrong), sd)
	expectCode(t, resp, codec.CodeAuthErrorClosing)
	f.core.PostHandle(ctx, nil, sd, resp)
	if !sd.closing {
		t.Fatalf("session not marked closing after %d failures", DefaultMaxLoginFailures)
	}

	sd = &SessionData{}
	expectCode(t, f.core.DoLogin(ctx, newEvent(codec.VerbLogin, login(nil)), sd), codec.CodeOK)
	if !sd.LoggedIn || sd.ClientID != "ClientX" || len(sd.ObjURIs) != 1 {
		t.Fatalf("session=%+v", sd)
	}
	expectCode(t, f.core.DoLogin(ctx, newEvent(codec.VerbLogin, login(nil)), sd), codec.CodeUseError)

	expectCode(t, f.core.DoLogout(ctx, newEvent(codec.VerbLogout, &codec.Logout{}), sd), codec.CodeOKEndingSession)
	if sd.LoggedIn || !sd.closing {
		t.Fatalf("logout left session=%+v", sd)
	}
}

func TestCorePoll(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	ctx := context.Background()
	x := loggedIn("ClientX")
	poll := func(op codec.PollOp, id string) *codec.Response {
		return f.core.DoPoll(ctx, newEvent(codec.VerbPoll, &codec.Poll{Op: op, MessageID: id}), x)
	}

	expectCode(t, poll(codec.PollRequest, ""), codec.CodeOKNoMessages)

	n := NewNotifier(f.queue, f.reg)
	data := &domain.TransferData{Name: "example.com", Status: domain.TransferPending, RequestedBy: "ClientY", ActionBy: "ClientX"}
	rec, err := n.Notify(ctx, "ClientX", "transfer", "Transfer requested.", data)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if _, err := n.Notify(ctx, "ClientX", "notice", "Maintenance window.", nil); err != nil {
		t.Fatalf("notify: %v", err)
	}

	resp := poll(codec.PollRequest, "")
	expectCode(t, resp, codec.CodeOKAckToDequeue)
	if resp.MsgQ == nil || resp.MsgQ.ID != rec.ID || resp.MsgQ.Count != 2 || resp.MsgQ.Msg != "Transfer requested." {
		t.Fatalf("msgQ=%+v", resp.MsgQ)
	}
	raw, ok := resp.Data.(codec.Raw)
	if !ok || raw.NS != domain.Namespace || len(raw.Data) == 0 {
		t.Fatalf("resData=%#v", resp.Data)
	}

	// Sessions that did not log in with the object service get no resData.
	hostOnly := &SessionData{LoggedIn: true, ClientID: "ClientX", ObjURIs: []string{host.Namespace}}
	resp = f.core.DoPoll(ctx, newEvent(codec.VerbPoll, &codec.Poll{Op: codec.PollRequest}), hostOnly)
	if resp.Data != nil {
		t.Fatalf("resData leaked to session without %s", domain.Namespace)
	}

	expectCode(t, poll(codec.PollAck, ""), codec.CodeMissingParameter)
	expectCode(t, poll(codec.PollAck, "999999"), codec.CodeObjectDoesNotExist)
	expectCode(t, poll("peek", ""), codec.CodeParameterRange)

	resp = poll(codec.PollAck, rec.ID)
	expectCode(t, resp, codec.CodeOK)
	if resp.MsgQ == nil || resp.MsgQ.Count != 1 || resp.MsgQ.ID != rec.ID {
		t.Fatalf("ack msgQ=%+v", resp.MsgQ)
	}
}

func TestCorePollAckHeadEchoesRemovedID(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	queue := pollq.New(pollq.NewMemoryStore(), pollq.WithAckPolicy(pollq.AckHead))
	core := NewCoreHandler(auth.NewAccounts(), queue, codec.ServiceMenu{})
	head, err := queue.Put(ctx, "ClientX", "notice", pollq.Payload{Message: "one"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := queue.Put(ctx, "ClientX", "notice", pollq.Payload{Message: "two"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	resp := core.DoPoll(ctx, newEvent(codec.VerbPoll, &codec.Poll{Op: codec.PollAck, MessageID: "999999"}), loggedIn("ClientX"))
	expectCode(t, resp, codec.CodeOK)
	if resp.MsgQ == nil || resp.MsgQ.ID != head.ID || resp.MsgQ.Count != 1 {
		t.Fatalf("ack msgQ=%+v want id %s", resp.MsgQ, head.ID)
	}
}

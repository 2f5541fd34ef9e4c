package domain

import (
	"bytes"
	"testing"
	"time"

	"github.com/danmuck/eppkit/internal/protocol/codec"
	"github.com/danmuck/eppkit/internal/testutil/testlog"
)

func newRegistry(t *testing.T) *codec.Registry {
	t.Helper()
	reg := codec.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

// roundTripCommand checks decode(encode(x)) re-encodes to identical bytes.
func roundTripCommand(t *testing.T, reg *codec.Registry, cmd *codec.Command) *codec.Command {
	t.Helper()
	first, err := reg.EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("encode %s: %v", cmd.Verb, err)
	}
	got, err := reg.DecodeCommand(first)
	if err != nil {
		t.Fatalf("decode %s: %v\n%s", cmd.Verb, err, first)
	}
	second, err := reg.EncodeCommand(got)
	if err != nil {
		t.Fatalf("re-encode %s: %v", cmd.Verb, err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("%s round trip mismatch\nfirst:  %s\nsecond: %s", cmd.Verb, first, second)
	}
	return got
}

func roundTripResponse(t *testing.T, reg *codec.Registry, data codec.Component) codec.Component {
	t.Helper()
	resp := codec.NewResponse(codec.CodeOK, "ABC-1", "SRV-1")
	resp.Data = data
	first, err := reg.EncodeResponse(resp)
	if err != nil {
		t.Fatalf("encode %T: %v", data, err)
	}
	got, err := reg.DecodeResponse(first)
	if err != nil {
		t.Fatalf("decode %T: %v\n%s", data, err, first)
	}
	second, err := reg.EncodeResponse(got)
	if err != nil {
		t.Fatalf("re-encode %T: %v", data, err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("%T round trip mismatch\nfirst:  %s\nsecond: %s", data, first, second)
	}
	return got.Data
}

func TestCommandsRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := newRegistry(t)
	cmds := []*codec.Command{
		{Verb: codec.VerbCheck, Payload: &Check{Names: []string{"example.com", "example.net"}}},
		{Verb: codec.VerbCheck, Payload: &Check{Names: []string{"example.com"}}},
		{Verb: codec.VerbInfo, Payload: &Info{Name: InfoName{Hosts: "all", Name: "example.com"}, AuthInfo: &AuthInfo{Password: "2fooBAR"}}},
		{Verb: codec.VerbInfo, Payload: &Info{Name: InfoName{Name: "example.com"}}},
		{Verb: codec.VerbCreate, Payload: &Create{
			Name:       "example.com",
			Period:     Years(2),
			NS:         &NameServers{HostObjs: []string{"ns1.example.net", "ns2.example.net"}},
			Registrant: "jd1234",
			Contacts:   []Contact{{Type: ContactAdmin, ID: "sh8013"}, {Type: ContactTech, ID: "sh8013"}},
			AuthInfo:   AuthInfo{Password: "2fooBAR"},
		}},
		{Verb: codec.VerbCreate, Payload: &Create{Name: "example.com", AuthInfo: AuthInfo{Password: "x"}}},
		{Verb: codec.VerbUpdate, Payload: &Update{
			Name: "example.com",
			Add: &UpdateSet{
				NS:       &NameServers{HostObjs: []string{"ns2.example.com"}},
				Contacts: []Contact{{Type: ContactTech, ID: "mak21"}},
				Statuses: []Status{{S: "clientHold", Lang: "en", Text: "Payment overdue."}},
			},
			Rem: &UpdateSet{Statuses: []Status{{S: "clientUpdateProhibited"}}},
			Chg: &UpdateChange{Registrant: "sh8013", AuthInfo: &AuthInfo{Password: "2BARfoo"}},
		}},
		{Verb: codec.VerbUpdate, Payload: &Update{Name: "example.com"}},
		{Verb: codec.VerbDelete, Payload: &Delete{Name: "example.com"}},
		{Verb: codec.VerbTransfer, Op: codec.TransferRequest, Payload: &Transfer{Name: "example.com", Period: Years(1), AuthInfo: &AuthInfo{Password: "2fooBAR"}}},
		{Verb: codec.VerbTransfer, Op: codec.TransferQuery, Payload: &Transfer{Name: "example.com"}},
		{Verb: codec.VerbRenew, Payload: &Renew{Name: "example.com", CurExpDate: "2027-04-03", Period: Years(5)}},
		{Verb: codec.VerbRenew, Payload: &Renew{Name: "example.com", CurExpDate: "2027-04-03"}},
	}
	for _, cmd := range cmds {
		cmd.ClientTRID = "ABC-12345"
		roundTripCommand(t, reg, cmd)
	}
}

func TestResponsesRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := newRegistry(t)
	cr := time.Date(2025, 4, 3, 22, 0, 0, 0, time.UTC)
	ex := cr.AddDate(2, 0, 0)

	chk := roundTripResponse(t, reg, &CheckData{Results: []CheckResult{
		{Name: CheckName{Name: "example.com", Avail: true}},
		{Name: CheckName{Name: "example.net"}, Reason: "In use"},
	}})
	data := chk.(*CheckData)
	if avail, found := data.Available("example.com"); !found || !avail {
		t.Fatalf("example.com avail=%v found=%v", avail, found)
	}
	if avail, found := data.Available("example.net"); !found || avail {
		t.Fatalf("example.net avail=%v found=%v", avail, found)
	}
	if _, found := data.Available("example.org"); found {
		t.Fatalf("example.org must not be found")
	}

	roundTripResponse(t, reg, &InfoData{
		Name:       "example.com",
		ROID:       "EXAMPLE1-REP",
		Statuses:   []Status{{S: "ok"}},
		Registrant: "jd1234",
		Contacts:   []Contact{{Type: ContactAdmin, ID: "sh8013"}},
		NS:         &NameServers{HostObjs: []string{"ns1.example.com"}},
		Hosts:      []string{"ns1.example.com"},
		ClientID:   "ClientX",
		CreatorID:  "ClientY",
		Created:    &cr,
		Expires:    &ex,
		AuthInfo:   &AuthInfo{Password: "2fooBAR"},
	})
	roundTripResponse(t, reg, &InfoData{Name: "example.com", ROID: "EXAMPLE1-REP", ClientID: "ClientX"})
	roundTripResponse(t, reg, &CreateData{Name: "example.com", Created: cr, Expires: &ex})
	roundTripResponse(t, reg, &RenewData{Name: "example.com", Expires: &ex})
	roundTripResponse(t, reg, &TransferData{
		Name:        "example.com",
		Status:      TransferPending,
		RequestedBy: "ClientX",
		Requested:   cr,
		ActionBy:    "ClientY",
		ActionDate:  cr.AddDate(0, 0, 5),
		Expires:     &ex,
	})
}

func TestPeriodAddTo(t *testing.T) {
	base := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	if got := Years(2).AddTo(base); got.Year() != 2028 {
		t.Fatalf("years: %v", got)
	}
	if got := (&Period{Unit: UnitMonth, Value: 1}).AddTo(base); got.Month() != time.March {
		t.Fatalf("month overflow normalizes forward: %v", got)
	}
	var p *Period
	if got := p.AddTo(base); got.Year() != 2027 {
		t.Fatalf("nil period defaults to one year: %v", got)
	}
}

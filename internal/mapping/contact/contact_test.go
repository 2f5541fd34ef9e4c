package contact

import (
	"bytes"
	"testing"
	"time"

	"github.com/danmuck/eppkit/internal/protocol/codec"
	"github.com/danmuck/eppkit/internal/testutil/testlog"
)

func TestContactRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := codec.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	postal := PostalInfo{
		Type: PostalInternational,
		Name: "John Doe",
		Org:  "Example Inc.",
		Address: Address{
			Street:      []string{"123 Example Dr.", "Suite 100"},
			City:        "Dulles",
			Province:    "VA",
			PostalCode:  "20166-6503",
			CountryCode: "US",
		},
	}
	cmds := []*codec.Command{
		{Verb: codec.VerbCheck, Payload: &Check{IDs: []string{"sh8013", "sah8013"}}},
		{Verb: codec.VerbInfo, Payload: &Info{ID: "sh8013", AuthInfo: &AuthInfo{Password: "2fooBAR"}}},
		{Verb: codec.VerbCreate, Payload: &Create{
			ID:         "sh8013",
			PostalInfo: []PostalInfo{postal},
			Voice:      &Phone{Ext: "1234", Number: "+1.7035555555"},
			Email:      "jdoe@example.com",
			AuthInfo:   AuthInfo{Password: "2fooBAR"},
		}},
		{Verb: codec.VerbCreate, Payload: &Create{ID: "sh8013", Email: "jdoe@example.com"}},
		{Verb: codec.VerbUpdate, Payload: &Update{
			ID:  "sh8013",
			Add: &StatusSet{Statuses: []Status{{S: "clientDeleteProhibited"}}},
			Chg: &UpdateChange{Email: "new@example.com", Voice: &Phone{Number: "+1.7034444444"}},
		}},
		{Verb: codec.VerbDelete, Payload: &Delete{ID: "sh8013"}},
		{Verb: codec.VerbTransfer, Op: codec.TransferQuery, Payload: &Transfer{ID: "sh8013"}},
	}
	for _, cmd := range cmds {
		first, err := reg.EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("encode %s: %v", cmd.Verb, err)
		}
		got, err := reg.DecodeCommand(first)
		if err != nil {
			t.Fatalf("decode %s: %v\n%s", cmd.Verb, err, first)
		}
		second, err := reg.EncodeCommand(got)
		if err != nil || !bytes.Equal(first, second) {
			t.Fatalf("%s round trip mismatch err=%v\n%s\n%s", cmd.Verb, err, first, second)
		}
	}

	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	resp := codec.NewResponse(codec.CodeOK, "ABC-1", "SRV-1")
	resp.Data = &InfoData{
		ID:         "sh8013",
		ROID:       "SH8013-REP",
		Statuses:   []Status{{S: "linked"}},
		PostalInfo: []PostalInfo{postal},
		Email:      "jdoe@example.com",
		ClientID:   "ClientY",
		CreatorID:  "ClientX",
		Created:    created,
	}
	doc, err := reg.EncodeResponse(resp)
	if err != nil {
		t.Fatalf("encode response: %v", err)
	}
	_, info, err := codec.DecodeResponseAs[*InfoData](reg, doc)
	if err != nil {
		t.Fatalf("decode response: %v\n%s", err, doc)
	}
	if info.ID != "sh8013" || len(info.PostalInfo) != 1 || info.PostalInfo[0].Address.Street[1] != "Suite 100" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if !info.Created.Equal(created) {
		t.Fatalf("created=%v", info.Created)
	}

	chk := &CheckData{Results: []CheckResult{{ID: CheckID{ID: "sh8013", Avail: false}, Reason: "In use"}}}
	if avail, found := chk.Available("sh8013"); !found || avail {
		t.Fatalf("avail=%v found=%v", avail, found)
	}
}

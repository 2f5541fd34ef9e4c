package server

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/danmuck/eppkit/internal/mapping/host"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

type HostHandler struct {
	RequireService
	store *Store
	now   func() time.Time
}

func NewHostHandler(store *Store) *HostHandler {
	return &HostHandler{store: store, now: time.Now}
}

func (h *HostHandler) DoCheck(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	chk, ok := ev.Command.Payload.(*host.Check)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	if len(chk.Names) == 0 {
		return ev.Reject(codec.CodeMissingParameter, "name", "at least one name is required")
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	out := &host.CheckData{}
	for _, name := range chk.Names {
		res := host.CheckResult{Name: host.CheckName{Name: name, Avail: true}}
		if _, exists := h.store.hosts[key(name)]; exists {
			res.Name.Avail = false
			res.Reason = "In use"
		}
		out.Results = append(out.Results, res)
	}
	return ev.ReplyData(codec.CodeOK, out)
}

func (h *HostHandler) DoInfo(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	info, ok := ev.Command.Payload.(*host.Info)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, exists := h.store.hosts[key(info.Name)]
	if !exists {
		return ev.Reject(codec.CodeObjectDoesNotExist, info.Name, "host not found")
	}
	statuses := append([]host.Status(nil), obj.Statuses...)
	if h.linked(obj.Name) != "" {
		statuses = append(statuses, host.Status{S: "linked"})
	}
	if len(statuses) == 0 {
		statuses = []host.Status{{S: "ok"}}
	}
	return ev.ReplyData(codec.CodeOK, &host.InfoData{
		Name:      obj.Name,
		ROID:      obj.ROID,
		Statuses:  statuses,
		Addresses: append([]host.Address(nil), obj.Addresses...),
		ClientID:  obj.ClientID,
		CreatorID: obj.CreatorID,
		Created:   obj.Created,
		UpdaterID: obj.UpdaterID,
		Updated:   obj.Updated,
	})
}

func (h *HostHandler) DoCreate(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	c, ok := ev.Command.Payload.(*host.Create)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	if c.Name == "" {
		return ev.Reject(codec.CodeMissingParameter, "name", "host name is required")
	}
	addrs, rej := normalizeAddresses(ev, c.Addresses)
	if rej != nil {
		return rej
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	k := key(c.Name)
	if _, exists := h.store.hosts[k]; exists {
		return ev.Reject(codec.CodeObjectExists, c.Name, "host already exists")
	}
	if rej := h.checkBailiwick(ev, sd, k, addrs); rej != nil {
		return rej
	}
	now := h.now().UTC()
	h.store.hosts[k] = &hostObject{
		Name:      k,
		ROID:      h.store.nextROID("H"),
		Addresses: addrs,
		ClientID:  sd.ClientID,
		CreatorID: sd.ClientID,
		Created:   now,
	}
	return ev.ReplyData(codec.CodeOK, &host.CreateData{Name: k, Created: now})
}

func (h *HostHandler) DoUpdate(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	u, ok := ev.Command.Payload.(*host.Update)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	if u.Add == nil && u.Rem == nil && u.Chg == nil {
		return ev.Reject(codec.CodeMissingParameter, u.Name, "update requires add, rem or chg")
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, rej := h.sponsored(ev, sd, u.Name)
	if rej != nil {
		return rej
	}
	next := *obj
	if u.Add != nil {
		addrs, rej := normalizeAddresses(ev, u.Add.Addresses)
		if rej != nil {
			return rej
		}
		next.Addresses = append(append([]host.Address(nil), obj.Addresses...), addrs...)
		for _, st := range u.Add.Statuses {
			if !strings.HasPrefix(st.S, "client") {
				return ev.Reject(codec.CodeParameterPolicy, st.S, "only client statuses may be set by a client")
			}
		}
		next.Statuses = append(append([]host.Status(nil), obj.Statuses...), u.Add.Statuses...)
	}
	if u.Rem != nil {
		next.Addresses = removeAddresses(next.Addresses, u.Rem.Addresses)
		kept := make([]host.Status, 0, len(next.Statuses))
		for _, st := range next.Statuses {
			drop := false
			for _, r := range u.Rem.Statuses {
				if st.S == r.S {
					drop = true
				}
			}
			if !drop {
				kept = append(kept, st)
			}
		}
		next.Statuses = kept
	}
	renamed := false
	if u.Chg != nil && u.Chg.Name != "" && key(u.Chg.Name) != key(obj.Name) {
		newKey := key(u.Chg.Name)
		if _, exists := h.store.hosts[newKey]; exists {
			return ev.Reject(codec.CodeObjectExists, u.Chg.Name, "host already exists")
		}
		if d := h.linked(obj.Name); d != "" {
			return ev.Reject(codec.CodeAssociationProhibits, obj.Name, "host is delegated by "+d)
		}
		next.Name = newKey
		renamed = true
	}
	if rej := h.checkBailiwick(ev, sd, next.Name, next.Addresses); rej != nil {
		return rej
	}
	if renamed {
		delete(h.store.hosts, key(obj.Name))
	}
	now := h.now().UTC()
	next.UpdaterID = sd.ClientID
	next.Updated = &now
	*obj = next
	h.store.hosts[key(obj.Name)] = obj
	return ev.Reply(codec.CodeOK)
}

func (h *HostHandler) DoDelete(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	d, ok := ev.Command.Payload.(*host.Delete)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, rej := h.sponsored(ev, sd, d.Name)
	if rej != nil {
		return rej
	}
	if dom := h.linked(obj.Name); dom != "" {
		return ev.Reject(codec.CodeAssociationProhibits, obj.Name, "host is delegated by "+dom)
	}
	delete(h.store.hosts, key(d.Name))
	return ev.Reply(codec.CodeOK)
}

func (h *HostHandler) sponsored(ev *Event, sd *SessionData, name string) (*hostObject, *codec.Response) {
	obj, ok := h.store.hosts[key(name)]
	if !ok {
		return nil, ev.Reject(codec.CodeObjectDoesNotExist, name, "host not found")
	}
	if obj.ClientID != sd.ClientID {
		return nil, ev.Reject(codec.CodeAuthorizationError, name, "host is sponsored by another client")
	}
	return obj, nil
}

// checkBailiwick applies the glue rules for a host named name carrying
// addrs. Hosts under a domain this server holds are in-bailiwick: they
// need glue and the superordinate domain's sponsor. Other hosts carry none.
func (h *HostHandler) checkBailiwick(ev *Event, sd *SessionData, name string, addrs []host.Address) *codec.Response {
	if parent := h.parentDomain(name); parent != nil {
		if parent.ClientID != sd.ClientID {
			return ev.Reject(codec.CodeAuthorizationError, name, "superordinate domain is sponsored by another client")
		}
		if len(addrs) == 0 {
			return ev.Reject(codec.CodeMissingParameter, "addr", "in-bailiwick host requires an address")
		}
		return nil
	}
	if len(addrs) > 0 {
		return ev.Reject(codec.CodeParameterPolicy, name, "addresses are only allowed for in-bailiwick hosts")
	}
	return nil
}

// linked returns the first domain delegating to name, or "".
func (h *HostHandler) linked(name string) string {
	for _, d := range h.store.domains {
		if containsFold(d.NS, name) {
			return d.Name
		}
	}
	return ""
}

func (h *HostHandler) parentDomain(name string) *domainObject {
	for label := name; ; {
		i := strings.IndexByte(label, '.')
		if i < 0 {
			return nil
		}
		label = label[i+1:]
		if d, ok := h.store.domains[label]; ok {
			return d
		}
	}
}

func normalizeAddresses(ev *Event, in []host.Address) ([]host.Address, *codec.Response) {
	out := make([]host.Address, 0, len(in))
	for _, a := range in {
		parsed, err := host.ParseAddress(a.Address)
		if err != nil {
			return nil, ev.Reject(codec.CodeParameterSyntax, a.Address, "malformed IP address")
		}
		if a.IP != "" && a.IP != parsed.IP {
			return nil, ev.Reject(codec.CodeParameterPolicy, a.Address, "ip attribute does not match the address family")
		}
		ip := netip.MustParseAddr(parsed.Address)
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() {
			return nil, ev.Reject(codec.CodeParameterPolicy, a.Address, "address is not routable")
		}
		out = append(out, parsed)
	}
	return out, nil
}

func removeAddresses(list, rem []host.Address) []host.Address {
	out := make([]host.Address, 0, len(list))
	for _, a := range list {
		drop := false
		for _, r := range rem {
			if p, err := host.ParseAddress(r.Address); err == nil && p.Address == a.Address {
				drop = true
			}
		}
		if !drop {
			out = append(out, a)
		}
	}
	return out
}

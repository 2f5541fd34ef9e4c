package server

import (
	"context"
	"strings"
	"time"

	"github.com/danmuck/eppkit/internal/extension/secdns"
	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/mapping/domain"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// DomainHandler serves the domain mapping against a Store.
type DomainHandler struct {
	RequireService
	store    *Store
	notifier *Notifier
	now      func() time.Time
}

func NewDomainHandler(store *Store, notifier *Notifier) *DomainHandler {
	return &DomainHandler{store: store, notifier: notifier, now: time.Now}
}

func (h *DomainHandler) DoCheck(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	chk, ok := ev.Command.Payload.(*domain.Check)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	if len(chk.Names) == 0 {
		return ev.Reject(codec.CodeMissingParameter, "name", "at least one name is required")
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	out := &domain.CheckData{}
	for _, name := range chk.Names {
		res := domain.CheckResult{Name: domain.CheckName{Name: name, Avail: true}}
		if _, exists := h.store.domains[key(name)]; exists {
			res.Name.Avail = false
			res.Reason = "In use"
		}
		out.Results = append(out.Results, res)
	}
	return ev.ReplyData(codec.CodeOK, out)
}

func (h *DomainHandler) DoInfo(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	info, ok := ev.Command.Payload.(*domain.Info)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, exists := h.store.domains[key(info.Name.Name)]
	if !exists {
		return ev.Reject(codec.CodeObjectDoesNotExist, info.Name.Name, "domain not found")
	}
	// Sponsors and callers holding the authInfo see everything.
	full := obj.ClientID == sd.ClientID || (info.AuthInfo != nil && info.AuthInfo.Password == obj.AuthInfo)
	resp := ev.ReplyData(codec.CodeOK, domainInfoData(obj, info.Name.Hosts, full))
	if full {
		if sub, ok := dnssecHandlers[secdns.VariantFor(sd.ExtURIs)]; ok {
			if ext := sub.infoData(obj); ext != nil {
				resp.Extensions = append(resp.Extensions, ext)
			}
		}
	}
	return resp
}

func domainInfoData(obj *domainObject, hosts string, full bool) *domain.InfoData {
	created, expires := obj.Created, obj.Expires
	out := &domain.InfoData{
		Name:     obj.Name,
		ROID:     obj.ROID,
		Statuses: append([]domain.Status(nil), obj.Statuses...),
		ClientID: obj.ClientID,
	}
	if len(out.Statuses) == 0 {
		out.Statuses = []domain.Status{{S: domain.StatusOK}}
	}
	if !full {
		return out
	}
	out.Registrant = obj.Registrant
	out.Contacts = append([]domain.Contact(nil), obj.Contacts...)
	if len(obj.NS) > 0 && (hosts == "" || hosts == "all" || hosts == "del") {
		out.NS = &domain.NameServers{HostObjs: append([]string(nil), obj.NS...)}
	}
	out.CreatorID = obj.CreatorID
	out.Created = &created
	out.UpdaterID = obj.UpdaterID
	out.Updated = obj.Updated
	out.Expires = &expires
	out.AuthInfo = &domain.AuthInfo{Password: obj.AuthInfo}
	return out
}

func (h *DomainHandler) DoCreate(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	c, ok := ev.Command.Payload.(*domain.Create)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	if c.Name == "" {
		return ev.Reject(codec.CodeMissingParameter, "name", "domain name is required")
	}
	if c.AuthInfo.Password == "" {
		return ev.Reject(codec.CodeMissingParameter, "authInfo", "authInfo is required")
	}
	if c.Period != nil && (c.Period.Value < 1 || c.Period.Value > 99) {
		return ev.Reject(codec.CodeParameterRange, "period", "period must be between 1 and 99")
	}
	sub, rej := selectDNSSEC(ev, sd)
	if rej != nil {
		return rej
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	k := key(c.Name)
	if _, exists := h.store.domains[k]; exists {
		return ev.Reject(codec.CodeObjectExists, c.Name, "domain already exists")
	}
	var ns []string
	if c.NS != nil {
		ns = c.NS.HostObjs
	}
	if resp := h.checkReferences(ev, c.Registrant, c.Contacts, ns); resp != nil {
		return resp
	}

	now := h.now().UTC()
	obj := &domainObject{
		Name:       k,
		ROID:       h.store.nextROID("D"),
		Registrant: c.Registrant,
		Contacts:   append([]domain.Contact(nil), c.Contacts...),
		NS:         append([]string(nil), ns...),
		ClientID:   sd.ClientID,
		CreatorID:  sd.ClientID,
		Created:    now,
		Expires:    c.Period.AddTo(now),
		AuthInfo:   c.AuthInfo.Password,
	}
	if sub != nil {
		if r := sub.create(ev.Command.Extensions, obj); r != nil {
			return ev.Reject(r.code, r.value, r.reason)
		}
	}
	h.store.domains[k] = obj
	logs.Debugf("server.DomainHandler.DoCreate name=%q roid=%q client_id=%q ds=%d", obj.Name, obj.ROID, sd.ClientID, len(obj.DS))
	expires := obj.Expires
	return ev.ReplyData(codec.CodeOK, &domain.CreateData{Name: obj.Name, Created: now, Expires: &expires})
}

// checkReferences must be called with the store lock held.
func (h *DomainHandler) checkReferences(ev *Event, registrant string, contacts []domain.Contact, ns []string) *codec.Response {
	if registrant != "" {
		if _, ok := h.store.contacts[key(registrant)]; !ok {
			return ev.Reject(codec.CodeObjectDoesNotExist, registrant, "registrant contact not found")
		}
	}
	for _, c := range contacts {
		if _, ok := h.store.contacts[key(c.ID)]; !ok {
			return ev.Reject(codec.CodeObjectDoesNotExist, c.ID, "contact not found")
		}
	}
	for _, name := range ns {
		if _, ok := h.store.hosts[key(name)]; !ok {
			return ev.Reject(codec.CodeObjectDoesNotExist, name, "host not found")
		}
	}
	return nil
}

// sponsored looks up name and checks the session's client sponsors it.
// Must be called with the store lock held.
func (h *DomainHandler) sponsored(ev *Event, sd *SessionData, name string) (*domainObject, *codec.Response) {
	obj, ok := h.store.domains[key(name)]
	if !ok {
		return nil, ev.Reject(codec.CodeObjectDoesNotExist, name, "domain not found")
	}
	if obj.ClientID != sd.ClientID {
		return nil, ev.Reject(codec.CodeAuthorizationError, name, "domain is sponsored by another client")
	}
	return obj, nil
}

func (h *DomainHandler) DoUpdate(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	u, ok := ev.Command.Payload.(*domain.Update)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	if u.Add == nil && u.Rem == nil && u.Chg == nil && len(ev.Command.Extensions) == 0 {
		return ev.Reject(codec.CodeMissingParameter, u.Name, "update requires add, rem, chg or an extension")
	}
	sub, rej := selectDNSSEC(ev, sd)
	if rej != nil {
		return rej
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, rej := h.sponsored(ev, sd, u.Name)
	if rej != nil {
		return rej
	}
	if obj.hasStatus(domain.StatusPendingTransfer) {
		return ev.Reject(codec.CodeStatusProhibits, obj.Name, "transfer pending")
	}
	if obj.hasStatus("clientUpdateProhibited") && !removesStatus(u.Rem, "clientUpdateProhibited") {
		return ev.Reject(codec.CodeStatusProhibits, obj.Name, "clientUpdateProhibited")
	}
	for _, set := range []*domain.UpdateSet{u.Add, u.Rem} {
		if set == nil {
			continue
		}
		for _, st := range set.Statuses {
			if !strings.HasPrefix(st.S, "client") {
				return ev.Reject(codec.CodeParameterPolicy, st.S, "only client statuses may be set by a client")
			}
		}
	}

	// Work on a copy so a rejected extension leaves the object untouched.
	next := *obj
	if u.Add != nil {
		var ns []string
		if u.Add.NS != nil {
			ns = u.Add.NS.HostObjs
		}
		if resp := h.checkReferences(ev, "", u.Add.Contacts, ns); resp != nil {
			return resp
		}
		next.NS = appendUnique(next.NS, ns...)
		next.Contacts = append(append([]domain.Contact(nil), next.Contacts...), u.Add.Contacts...)
		next.Statuses = append(append([]domain.Status(nil), next.Statuses...), u.Add.Statuses...)
	}
	if u.Rem != nil {
		if u.Rem.NS != nil {
			next.NS = removeStrings(next.NS, u.Rem.NS.HostObjs)
		}
		next.Contacts = removeContacts(next.Contacts, u.Rem.Contacts)
		next.Statuses = removeStatuses(next.Statuses, u.Rem.Statuses)
	}
	if u.Chg != nil {
		if u.Chg.Registrant != "" {
			if resp := h.checkReferences(ev, u.Chg.Registrant, nil, nil); resp != nil {
				return resp
			}
			next.Registrant = u.Chg.Registrant
		}
		if u.Chg.AuthInfo != nil {
			next.AuthInfo = u.Chg.AuthInfo.Password
		}
	}
	if sub != nil {
		next.DS = append([]secdns.DSData(nil), obj.DS...)
		next.Keys = append([]secdns.KeyData(nil), obj.Keys...)
		if r := sub.update(ev.Command.Extensions, &next); r != nil {
			return ev.Reject(r.code, r.value, r.reason)
		}
	}
	now := h.now().UTC()
	next.UpdaterID = sd.ClientID
	next.Updated = &now
	*obj = next
	return ev.Reply(codec.CodeOK)
}

func (h *DomainHandler) DoDelete(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	d, ok := ev.Command.Payload.(*domain.Delete)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, rej := h.sponsored(ev, sd, d.Name)
	if rej != nil {
		return rej
	}
	for _, s := range []string{domain.StatusClientDeleteProhibited, "serverDeleteProhibited", domain.StatusPendingTransfer} {
		if obj.hasStatus(s) {
			return ev.Reject(codec.CodeStatusProhibits, obj.Name, s)
		}
	}
	suffix := "." + key(d.Name)
	for k := range h.store.hosts {
		if strings.HasSuffix(k, suffix) {
			return ev.Reject(codec.CodeAssociationProhibits, obj.Name, "domain has subordinate hosts")
		}
	}
	delete(h.store.domains, key(d.Name))
	logs.Debugf("server.DomainHandler.DoDelete name=%q client_id=%q", obj.Name, sd.ClientID)
	return ev.Reply(codec.CodeOK)
}

func (h *DomainHandler) DoRenew(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	r, ok := ev.Command.Payload.(*domain.Renew)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	cur, err := time.Parse("2006-01-02", r.CurExpDate)
	if err != nil {
		return ev.Reject(codec.CodeParameterSyntax, r.CurExpDate, "curExpDate must be YYYY-MM-DD")
	}
	if r.Period != nil && (r.Period.Value < 1 || r.Period.Value > 99) {
		return ev.Reject(codec.CodeParameterRange, "period", "period must be between 1 and 99")
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, rej := h.sponsored(ev, sd, r.Name)
	if rej != nil {
		return rej
	}
	if obj.Expires.Format("2006-01-02") != cur.Format("2006-01-02") {
		return ev.Reject(codec.CodeParameterPolicy, r.CurExpDate, "curExpDate does not match the current expiry")
	}
	if obj.hasStatus("clientRenewProhibited") || obj.hasStatus(domain.StatusPendingTransfer) {
		return ev.Reject(codec.CodeStatusProhibits, obj.Name, "renew prohibited by status")
	}
	obj.Expires = r.Period.AddTo(obj.Expires)
	expires := obj.Expires
	return ev.ReplyData(codec.CodeOK, &domain.RenewData{Name: obj.Name, Expires: &expires})
}

func (h *DomainHandler) DoTransfer(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	t, ok := ev.Command.Payload.(*domain.Transfer)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, exists := h.store.domains[key(t.Name)]
	if !exists {
		return ev.Reject(codec.CodeObjectDoesNotExist, t.Name, "domain not found")
	}

	switch ev.Command.Op {
	case codec.TransferRequest:
		return h.transferRequest(ctx, ev, sd, obj, t)
	case codec.TransferQuery:
		if obj.Transfer == nil {
			return ev.Reject(codec.CodeNotPendingTransfer, obj.Name, "no transfer on record")
		}
		if sd.ClientID != obj.ClientID && sd.ClientID != obj.Transfer.RequestedBy &&
			(t.AuthInfo == nil || t.AuthInfo.Password != obj.AuthInfo) {
			return ev.Reject(codec.CodeAuthorizationError, obj.Name, "not a party to the transfer")
		}
		return ev.ReplyData(codec.CodeOK, transferData(obj))
	case codec.TransferApprove, codec.TransferReject:
		if obj.ClientID != sd.ClientID {
			return ev.Reject(codec.CodeAuthorizationError, obj.Name, "only the sponsor may approve or reject")
		}
	case codec.TransferCancel:
		if obj.Transfer == nil || obj.Transfer.RequestedBy != sd.ClientID {
			return ev.Reject(codec.CodeAuthorizationError, obj.Name, "only the requesting client may cancel")
		}
	default:
		return ev.Reject(codec.CodeParameterRange, ev.Command.Op, "unknown transfer op")
	}
	return h.transferAction(ctx, ev, sd, obj)
}

func (h *DomainHandler) transferRequest(ctx context.Context, ev *Event, sd *SessionData, obj *domainObject, t *domain.Transfer) *codec.Response {
	if obj.ClientID == sd.ClientID {
		return ev.Reject(codec.CodeNotEligibleTransfer, obj.Name, "domain is already sponsored by the requesting client")
	}
	if t.AuthInfo == nil || t.AuthInfo.Password != obj.AuthInfo {
		return ev.Reject(codec.CodeInvalidAuthInfo, obj.Name, "authInfo does not match")
	}
	if obj.Transfer != nil && obj.Transfer.Status == domain.TransferPending {
		return ev.Reject(codec.CodePendingTransfer, obj.Name, "transfer already pending")
	}
	if obj.hasStatus(domain.StatusClientTransferProhibited) || obj.hasStatus("serverTransferProhibited") {
		return ev.Reject(codec.CodeStatusProhibits, obj.Name, "transfer prohibited by status")
	}
	now := h.now().UTC()
	obj.Transfer = &transferState{
		Status:      domain.TransferPending,
		RequestedBy: sd.ClientID,
		Requested:   now,
		ActionBy:    obj.ClientID,
		ActionDate:  now.Add(5 * 24 * time.Hour),
		Period:      t.Period,
	}
	obj.Statuses = append(obj.Statuses, domain.Status{S: domain.StatusPendingTransfer})
	data := transferData(obj)
	if _, err := h.notifier.Notify(ctx, obj.ClientID, "transfer", "Transfer requested.", data); err != nil {
		logs.Warnf("server.DomainHandler.transferRequest name=%q notify=%q err=%v", obj.Name, obj.ClientID, err)
	}
	logs.Infof("server.DomainHandler.transferRequest name=%q from=%q to=%q", obj.Name, obj.ClientID, sd.ClientID)
	return ev.ReplyData(codec.CodeOKPending, data)
}

func (h *DomainHandler) transferAction(ctx context.Context, ev *Event, sd *SessionData, obj *domainObject) *codec.Response {
	if obj.Transfer == nil || obj.Transfer.Status != domain.TransferPending {
		return ev.Reject(codec.CodeNotPendingTransfer, obj.Name, "no transfer pending")
	}
	now := h.now().UTC()
	tr := obj.Transfer
	tr.ActionBy = sd.ClientID
	tr.ActionDate = now
	obj.Statuses = removeStatuses(obj.Statuses, []domain.Status{{S: domain.StatusPendingTransfer}})

	notify := tr.RequestedBy
	switch ev.Command.Op {
	case codec.TransferApprove:
		tr.Status = domain.TransferClientApproved
		obj.ClientID = tr.RequestedBy
		obj.Expires = tr.Period.AddTo(obj.Expires)
		obj.AuthInfo = ""
		obj.UpdaterID = sd.ClientID
		obj.Updated = &now
	case codec.TransferReject:
		tr.Status = domain.TransferClientRejected
	case codec.TransferCancel:
		tr.Status = domain.TransferClientCancelled
		notify = obj.ClientID
	}
	data := transferData(obj)
	if _, err := h.notifier.Notify(ctx, notify, "transfer", "Transfer "+tr.Status+".", data); err != nil {
		logs.Warnf("server.DomainHandler.transferAction name=%q notify=%q err=%v", obj.Name, notify, err)
	}
	return ev.ReplyData(codec.CodeOK, data)
}

func transferData(obj *domainObject) *domain.TransferData {
	tr := obj.Transfer
	out := &domain.TransferData{
		Name:        obj.Name,
		Status:      tr.Status,
		RequestedBy: tr.RequestedBy,
		Requested:   tr.Requested,
		ActionBy:    tr.ActionBy,
		ActionDate:  tr.ActionDate,
	}
	expires := obj.Expires
	if tr.Status == domain.TransferPending {
		expires = tr.Period.AddTo(obj.Expires)
	}
	out.Expires = &expires
	return out
}

func removesStatus(set *domain.UpdateSet, s string) bool {
	if set == nil {
		return false
	}
	for _, st := range set.Statuses {
		if st.S == s {
			return true
		}
	}
	return false
}

func removeStatuses(list, rem []domain.Status) []domain.Status {
	out := make([]domain.Status, 0, len(list))
	for _, st := range list {
		drop := false
		for _, r := range rem {
			if st.S == r.S {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, st)
		}
	}
	return out
}

func removeContacts(list, rem []domain.Contact) []domain.Contact {
	out := make([]domain.Contact, 0, len(list))
	for _, c := range list {
		drop := false
		for _, r := range rem {
			if c.Type == r.Type && strings.EqualFold(c.ID, r.ID) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, c)
		}
	}
	return out
}

func appendUnique(list []string, add ...string) []string {
	out := append([]string(nil), list...)
	for _, a := range add {
		if !containsFold(out, a) {
			out = append(out, a)
		}
	}
	return out
}

func removeStrings(list, rem []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if !containsFold(rem, s) {
			out = append(out, s)
		}
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

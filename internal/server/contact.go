package server

import (
	"context"
	"strings"
	"time"

	"github.com/danmuck/eppkit/internal/mapping/contact"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

type ContactHandler struct {
	RequireService
	store *Store
	now   func() time.Time
}

func NewContactHandler(store *Store) *ContactHandler {
	return &ContactHandler{store: store, now: time.Now}
}

func (h *ContactHandler) DoCheck(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	chk, ok := ev.Command.Payload.(*contact.Check)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	if len(chk.IDs) == 0 {
		return ev.Reject(codec.CodeMissingParameter, "id", "at least one id is required")
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	out := &contact.CheckData{}
	for _, id := range chk.IDs {
		res := contact.CheckResult{ID: contact.CheckID{ID: id, Avail: true}}
		if _, exists := h.store.contacts[key(id)]; exists {
			res.ID.Avail = false
			res.Reason = "In use"
		}
		out.Results = append(out.Results, res)
	}
	return ev.ReplyData(codec.CodeOK, out)
}

func (h *ContactHandler) DoInfo(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	info, ok := ev.Command.Payload.(*contact.Info)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, exists := h.store.contacts[key(info.ID)]
	if !exists {
		return ev.Reject(codec.CodeObjectDoesNotExist, info.ID, "contact not found")
	}
	if obj.ClientID != sd.ClientID && (info.AuthInfo == nil || info.AuthInfo.Password != obj.AuthInfo) {
		return ev.Reject(codec.CodeAuthorizationError, info.ID, "contact is sponsored by another client")
	}
	out := &contact.InfoData{
		ID:         obj.ID,
		ROID:       obj.ROID,
		Statuses:   append([]contact.Status(nil), obj.Statuses...),
		PostalInfo: append([]contact.PostalInfo(nil), obj.PostalInfo...),
		Voice:      obj.Voice,
		Fax:        obj.Fax,
		Email:      obj.Email,
		ClientID:   obj.ClientID,
		CreatorID:  obj.CreatorID,
		Created:    obj.Created,
		UpdaterID:  obj.UpdaterID,
		Updated:    obj.Updated,
		AuthInfo:   &contact.AuthInfo{Password: obj.AuthInfo},
	}
	if len(out.Statuses) == 0 {
		out.Statuses = []contact.Status{{S: "ok"}}
	}
	return ev.ReplyData(codec.CodeOK, out)
}

func (h *ContactHandler) DoCreate(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	c, ok := ev.Command.Payload.(*contact.Create)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	switch {
	case c.ID == "":
		return ev.Reject(codec.CodeMissingParameter, "id", "contact id is required")
	case c.Email == "":
		return ev.Reject(codec.CodeMissingParameter, "email", "email is required")
	case len(c.PostalInfo) == 0:
		return ev.Reject(codec.CodeMissingParameter, "postalInfo", "at least one postalInfo is required")
	case len(c.PostalInfo) > 2:
		return ev.Reject(codec.CodeParameterRange, "postalInfo", "at most two postalInfo elements")
	}
	if !strings.Contains(c.Email, "@") {
		return ev.Reject(codec.CodeParameterSyntax, c.Email, "malformed email address")
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	k := key(c.ID)
	if _, exists := h.store.contacts[k]; exists {
		return ev.Reject(codec.CodeObjectExists, c.ID, "contact already exists")
	}
	now := h.now().UTC()
	h.store.contacts[k] = &contactObject{
		ID:         c.ID,
		ROID:       h.store.nextROID("C"),
		PostalInfo: append([]contact.PostalInfo(nil), c.PostalInfo...),
		Voice:      c.Voice,
		Fax:        c.Fax,
		Email:      c.Email,
		ClientID:   sd.ClientID,
		CreatorID:  sd.ClientID,
		Created:    now,
		AuthInfo:   c.AuthInfo.Password,
	}
	return ev.ReplyData(codec.CodeOK, &contact.CreateData{ID: c.ID, Created: now})
}

func (h *ContactHandler) DoUpdate(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	u, ok := ev.Command.Payload.(*contact.Update)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	if u.Add == nil && u.Rem == nil && u.Chg == nil {
		return ev.Reject(codec.CodeMissingParameter, u.ID, "update requires add, rem or chg")
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, rej := h.sponsored(ev, sd, u.ID)
	if rej != nil {
		return rej
	}
	if u.Add != nil {
		for _, st := range u.Add.Statuses {
			if !strings.HasPrefix(st.S, "client") {
				return ev.Reject(codec.CodeParameterPolicy, st.S, "only client statuses may be set by a client")
			}
		}
		obj.Statuses = append(obj.Statuses, u.Add.Statuses...)
	}
	if u.Rem != nil {
		kept := obj.Statuses[:0]
		for _, st := range obj.Statuses {
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
		obj.Statuses = kept
	}
	if c := u.Chg; c != nil {
		if len(c.PostalInfo) > 0 {
			obj.PostalInfo = append([]contact.PostalInfo(nil), c.PostalInfo...)
		}
		if c.Voice != nil {
			obj.Voice = c.Voice
		}
		if c.Fax != nil {
			obj.Fax = c.Fax
		}
		if c.Email != "" {
			obj.Email = c.Email
		}
		if c.AuthInfo != nil {
			obj.AuthInfo = c.AuthInfo.Password
		}
	}
	now := h.now().UTC()
	obj.UpdaterID = sd.ClientID
	obj.Updated = &now
	return ev.Reply(codec.CodeOK)
}

func (h *ContactHandler) DoDelete(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	d, ok := ev.Command.Payload.(*contact.Delete)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	obj, rej := h.sponsored(ev, sd, d.ID)
	if rej != nil {
		return rej
	}
	for _, st := range obj.Statuses {
		if st.S == "clientDeleteProhibited" {
			return ev.Reject(codec.CodeStatusProhibits, obj.ID, st.S)
		}
	}
	for _, dom := range h.store.domains {
		if strings.EqualFold(dom.Registrant, obj.ID) {
			return ev.Reject(codec.CodeAssociationProhibits, obj.ID, "contact is linked to "+dom.Name)
		}
		for _, c := range dom.Contacts {
			if strings.EqualFold(c.ID, obj.ID) {
				return ev.Reject(codec.CodeAssociationProhibits, obj.ID, "contact is linked to "+dom.Name)
			}
		}
	}
	delete(h.store.contacts, key(d.ID))
	return ev.Reply(codec.CodeOK)
}

func (h *ContactHandler) sponsored(ev *Event, sd *SessionData, id string) (*contactObject, *codec.Response) {
	obj, ok := h.store.contacts[key(id)]
	if !ok {
		return nil, ev.Reject(codec.CodeObjectDoesNotExist, id, "contact not found")
	}
	if obj.ClientID != sd.ClientID {
		return nil, ev.Reject(codec.CodeAuthorizationError, id, "contact is sponsored by another client")
	}
	return obj, nil
}

package server

import (
	"context"
	"encoding/xml"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// Event is one inbound command as seen by handlers.
type Event struct {
	Command  *codec.Command
	SvTRID   string
	Received time.Time
}

// Reply builds a single-result response echoing the command's clTRID.
func (e *Event) Reply(code codec.ResultCode) *codec.Response {
	return codec.NewResponse(code, e.Command.ClientTRID, e.SvTRID)
}

// ReplyData is Reply with resData attached.
func (e *Event) ReplyData(code codec.ResultCode, data codec.Component) *codec.Response {
	resp := e.Reply(code)
	resp.Data = data
	return resp
}

// Reject builds a failure carrying an extValue naming the offending value.
// value is plain text and is escaped before it lands in the raw XML slot.
func (e *Event) Reject(code codec.ResultCode, value, reason string) *codec.Response {
	resp := e.Reply(code)
	resp.Results[0].ExtValues = []codec.ExtValue{{Value: escapeText(value), Reason: reason}}
	return resp
}

func escapeText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// SessionData is the per-connection state handlers read and update. The
// connection loop holds mu while a command is dispatched.
type SessionData struct {
	mu sync.Mutex

	ID           string
	RemoteAddr   string
	PeerIdentity string
	ConnectedAt  time.Time
	LastCommand  time.Time

	LoggedIn bool
	ClientID string
	Version  string
	Lang     string
	ObjURIs  []string
	ExtURIs  []string
	Commands int

	closing       bool
	loginFailures int
}

// CloseAfterReply asks the connection loop to close once the current
// response is written.
func (sd *SessionData) CloseAfterReply() { sd.closing = true }

// HasExtension reports whether uri was negotiated at login.
func (sd *SessionData) HasExtension(uri string) bool {
	for _, u := range sd.ExtURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// SessionInfo is a point-in-time copy of SessionData for reporting.
type SessionInfo struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	PeerIdentity string    `json:"peer_identity,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	LoggedIn     bool      `json:"logged_in"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastCommand  time.Time `json:"last_command,omitempty"`
	Commands     int       `json:"commands"`
}

func (sd *SessionData) Info() SessionInfo {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return SessionInfo{
		ID:           sd.ID,
		RemoteAddr:   sd.RemoteAddr,
		PeerIdentity: sd.PeerIdentity,
		ClientID:     sd.ClientID,
		LoggedIn:     sd.LoggedIn,
		ConnectedAt:  sd.ConnectedAt,
		LastCommand:  sd.LastCommand,
		Commands:     sd.Commands,
	}
}

// Handler serves every command in one namespace. Verb support is declared
// by also implementing the Do* interfaces below; a missing verb answers 2101.
type Handler interface {
	// PreHandle runs before the verb method. A non-nil response
	// short-circuits dispatch.
	PreHandle(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
	// PostHandle sees the final response, including short-circuited ones.
	PostHandle(ctx context.Context, ev *Event, sd *SessionData, resp *codec.Response)
}

type LoginHandler interface {
	DoLogin(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

type LogoutHandler interface {
	DoLogout(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

type PollHandler interface {
	DoPoll(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

type CheckHandler interface {
	DoCheck(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

type InfoHandler interface {
	DoInfo(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

type CreateHandler interface {
	DoCreate(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

type UpdateHandler interface {
	DoUpdate(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

type DeleteHandler interface {
	DoDelete(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

type TransferHandler interface {
	DoTransfer(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

type RenewHandler interface {
	DoRenew(ctx context.Context, ev *Event, sd *SessionData) *codec.Response
}

// BaseHandler is a no-op Handler to embed.
type BaseHandler struct{}

func (BaseHandler) PreHandle(context.Context, *Event, *SessionData) *codec.Response { return nil }

func (BaseHandler) PostHandle(context.Context, *Event, *SessionData, *codec.Response) {}

// RequireLogin rejects commands from sessions that have not logged in.
type RequireLogin struct{ BaseHandler }

func (RequireLogin) PreHandle(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	if !sd.LoggedIn {
		return ev.Reject(codec.CodeCommandFailed, string(ev.Command.Verb), "login required")
	}
	return nil
}

// RequireService extends RequireLogin for object handlers: the command's
// object namespace must be one the client listed at login.
type RequireService struct{ RequireLogin }

func (r RequireService) PreHandle(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	if resp := r.RequireLogin.PreHandle(ctx, ev, sd); resp != nil {
		return resp
	}
	ns := ev.Command.Namespace()
	for _, uri := range sd.ObjURIs {
		if uri == ns {
			return nil
		}
	}
	return ev.Reject(codec.CodeUnimplementedService, ns, "object service not selected at login")
}

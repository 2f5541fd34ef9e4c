package server

import (
	"context"
	"errors"

	"github.com/danmuck/eppkit/internal/auth"
	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/pollq"
	"github.com/danmuck/eppkit/internal/protocol"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// DefaultMaxLoginFailures is how many failed logins a connection gets
// before the server answers 2501 and closes it.
const DefaultMaxLoginFailures = 3

// CoreHandler serves the EPP namespace itself: login, logout and poll.
type CoreHandler struct {
	accounts    auth.Authenticator
	queue       *pollq.Queue
	menu        codec.ServiceMenu
	maxFailures int
}

func NewCoreHandler(accounts auth.Authenticator, queue *pollq.Queue, menu codec.ServiceMenu) *CoreHandler {
	return &CoreHandler{accounts: accounts, queue: queue, menu: menu, maxFailures: DefaultMaxLoginFailures}
}

func (h *CoreHandler) PreHandle(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	if ev.Command.Verb == codec.VerbLogin {
		return nil
	}
	return RequireLogin{}.PreHandle(ctx, ev, sd)
}

func (h *CoreHandler) PostHandle(ctx context.Context, ev *Event, sd *SessionData, resp *codec.Response) {
	if resp.Code().ClosesSession() {
		sd.CloseAfterReply()
	}
}

func (h *CoreHandler) DoLogin(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	login, ok := ev.Command.Payload.(*codec.Login)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	if sd.LoggedIn {
		return ev.Reject(codec.CodeUseError, login.ClientID, "session already logged in")
	}
	if !h.menu.SupportsVersion(login.Options.Version) {
		return ev.Reject(codec.CodeUnimplementedVersion, login.Options.Version, "unsupported protocol version")
	}
	if !h.menu.SupportsLang(login.Options.Lang) {
		return ev.Reject(codec.CodeUnimplementedOption, login.Options.Lang, "unsupported language")
	}
	if len(login.Services.ObjURIs) == 0 {
		return ev.Reject(codec.CodeMissingParameter, "objURI", "at least one object service is required")
	}
	for _, uri := range login.Services.ObjURIs {
		if !h.menu.SupportsObject(uri) {
			return ev.Reject(codec.CodeUnimplementedService, uri, "object service not offered")
		}
	}
	for _, uri := range login.Services.Extension.URIs() {
		if !h.menu.SupportsExtension(uri) {
			return ev.Reject(codec.CodeUnimplementedExtension, uri, "extension not offered")
		}
	}

	acct, err := h.accounts.Authenticate(login.ClientID, login.Password)
	if err != nil {
		sd.loginFailures++
		logs.Warnf("server.CoreHandler.DoLogin client_id=%q remote=%q failures=%d err=%v", login.ClientID, sd.RemoteAddr, sd.loginFailures, err)
		if h.maxFailures > 0 && sd.loginFailures >= h.maxFailures {
			return ev.Reply(codec.CodeAuthErrorClosing)
		}
		return ev.Reply(codec.CodeAuthenticationError)
	}
	if login.NewPassword != "" {
		if err := h.accounts.ChangePassword(acct.ClientID, login.NewPassword); err != nil {
			return ev.Reject(codec.CodeParameterPolicy, "newPW", err.Error())
		}
	}

	sd.LoggedIn = true
	sd.ClientID = acct.ClientID
	sd.Version = login.Options.Version
	sd.Lang = login.Options.Lang
	sd.ObjURIs = append([]string(nil), login.Services.ObjURIs...)
	sd.ExtURIs = login.Services.Extension.URIs()
	logs.Infof("server.CoreHandler.DoLogin client_id=%q remote=%q objects=%d extensions=%d", acct.ClientID, sd.RemoteAddr, len(sd.ObjURIs), len(sd.ExtURIs))
	return ev.Reply(codec.CodeOK)
}

func (h *CoreHandler) DoLogout(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	logs.Infof("server.CoreHandler.DoLogout client_id=%q remote=%q", sd.ClientID, sd.RemoteAddr)
	sd.LoggedIn = false
	sd.CloseAfterReply()
	return ev.Reply(codec.CodeOKEndingSession)
}

func (h *CoreHandler) DoPoll(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	poll, ok := ev.Command.Payload.(*codec.Poll)
	if !ok {
		return ev.Reply(codec.CodeCommandFailed)
	}
	switch poll.Op {
	case codec.PollRequest:
		return h.pollRequest(ctx, ev, sd)
	case codec.PollAck:
		return h.pollAck(ctx, ev, sd, poll.MessageID)
	default:
		return ev.Reject(codec.CodeParameterRange, string(poll.Op), "poll op must be req or ack")
	}
}

func (h *CoreHandler) pollRequest(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	rec, n, err := h.queue.Get(ctx, sd.ClientID)
	if errors.Is(err, protocol.ErrQueueEmpty) {
		return ev.Reply(codec.CodeOKNoMessages)
	}
	if err != nil {
		logs.Errf("server.CoreHandler.pollRequest client_id=%q err=%v", sd.ClientID, err)
		return ev.Reply(codec.CodeCommandFailed)
	}
	qdate := rec.QueuedAt
	resp := ev.Reply(codec.CodeOKAckToDequeue)
	resp.MsgQ = &codec.MsgQ{Count: n, ID: rec.ID, QDate: &qdate, Msg: rec.Message}
	// resData only for object services the client logged in with
	if len(rec.Data) > 0 && contains(sd.ObjURIs, rec.Namespace) {
		resp.Data = codec.Raw{NS: rec.Namespace, Data: rec.Data}
	}
	return resp
}

func (h *CoreHandler) pollAck(ctx context.Context, ev *Event, sd *SessionData, msgID string) *codec.Response {
	if msgID == "" {
		return ev.Reject(codec.CodeMissingParameter, "msgID", "ack requires a message id")
	}
	removed, n, err := h.queue.Acknowledge(ctx, sd.ClientID, msgID)
	if errors.Is(err, protocol.ErrMessageNotFound) {
		return ev.Reject(codec.CodeObjectDoesNotExist, msgID, "no such message at the head of the queue")
	}
	if err != nil {
		logs.Errf("server.CoreHandler.pollAck client_id=%q id=%q err=%v", sd.ClientID, msgID, err)
		return ev.Reply(codec.CodeCommandFailed)
	}
	resp := ev.Reply(codec.CodeOK)
	resp.MsgQ = &codec.MsgQ{Count: n, ID: removed.ID}
	return resp
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

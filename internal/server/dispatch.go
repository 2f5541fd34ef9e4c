package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/observability"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// Dispatcher routes commands to the Handler registered for their namespace.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds h to namespace ns. Registering twice is an error.
func (d *Dispatcher) Register(ns string, h Handler) error {
	if ns == "" || h == nil {
		return fmt.Errorf("server: register needs a namespace and handler")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[ns]; ok {
		return fmt.Errorf("server: handler already registered for %q", ns)
	}
	d.handlers[ns] = h
	return nil
}

func (d *Dispatcher) Handler(ns string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[ns]
	return h, ok
}

// Namespaces lists registered namespaces, sorted.
func (d *Dispatcher) Namespaces() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for ns := range d.handlers {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs PreHandle, the verb method and PostHandle. It always
// returns a response with the command's clTRID and ev.SvTRID.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event, sd *SessionData) *codec.Response {
	start := time.Now()
	ns := ev.Command.Namespace()

	var resp *codec.Response
	h, ok := d.Handler(ns)
	if !ok {
		resp = ev.Reject(codec.CodeUnimplementedService, ns, "object service not implemented")
	} else {
		resp = h.PreHandle(ctx, ev, sd)
		if resp == nil {
			resp = invoke(ctx, h, ev, sd)
		}
	}
	if resp == nil {
		logs.Errf("server.Dispatcher.Dispatch nil response ns=%q verb=%s", ns, ev.Command.Verb)
		resp = ev.Reply(codec.CodeCommandFailed)
	}
	resp.TrID = codec.TrID{ClientTRID: ev.Command.ClientTRID, ServerTRID: ev.SvTRID}
	if h != nil {
		h.PostHandle(ctx, ev, sd, resp)
	}

	observability.RecordCommand(ns, string(ev.Command.Verb), int(resp.Code()), time.Since(start))
	logs.Debugf("server.Dispatcher.Dispatch ns=%q verb=%s client_id=%q code=%d", ns, ev.Command.Verb, sd.ClientID, resp.Code())
	return resp
}

func invoke(ctx context.Context, h Handler, ev *Event, sd *SessionData) *codec.Response {
	unimplemented := func() *codec.Response {
		return ev.Reject(codec.CodeUnimplementedCommand, string(ev.Command.Verb), "command not implemented for this object")
	}
	switch ev.Command.Verb {
	case codec.VerbLogin:
		if v, ok := h.(LoginHandler); ok {
			return v.DoLogin(ctx, ev, sd)
		}
	case codec.VerbLogout:
		if v, ok := h.(LogoutHandler); ok {
			return v.DoLogout(ctx, ev, sd)
		}
	case codec.VerbPoll:
		if v, ok := h.(PollHandler); ok {
			return v.DoPoll(ctx, ev, sd)
		}
	case codec.VerbCheck:
		if v, ok := h.(CheckHandler); ok {
			return v.DoCheck(ctx, ev, sd)
		}
	case codec.VerbInfo:
		if v, ok := h.(InfoHandler); ok {
			return v.DoInfo(ctx, ev, sd)
		}
	case codec.VerbCreate:
		if v, ok := h.(CreateHandler); ok {
			return v.DoCreate(ctx, ev, sd)
		}
	case codec.VerbUpdate:
		if v, ok := h.(UpdateHandler); ok {
			return v.DoUpdate(ctx, ev, sd)
		}
	case codec.VerbDelete:
		if v, ok := h.(DeleteHandler); ok {
			return v.DoDelete(ctx, ev, sd)
		}
	case codec.VerbTransfer:
		if v, ok := h.(TransferHandler); ok {
			return v.DoTransfer(ctx, ev, sd)
		}
	case codec.VerbRenew:
		if v, ok := h.(RenewHandler); ok {
			return v.DoRenew(ctx, ev, sd)
		}
	}
	return unimplemented()
}

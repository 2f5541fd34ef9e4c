package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/eppkit/internal/auth"
	"github.com/danmuck/eppkit/internal/extension/secdns"
	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/mapping/contact"
	"github.com/danmuck/eppkit/internal/mapping/domain"
	"github.com/danmuck/eppkit/internal/mapping/host"
	"github.com/danmuck/eppkit/internal/observability"
	"github.com/danmuck/eppkit/internal/pollq"
	"github.com/danmuck/eppkit/internal/protocol/codec"
	"github.com/danmuck/eppkit/internal/protocol/frame"
	"github.com/danmuck/eppkit/internal/protocol/transport"
)

// Service accepts EPP connections and feeds their commands to a Dispatcher.
type Service struct {
	cfg        Config
	reg        *codec.Registry
	dispatcher *Dispatcher
	store      *Store
	notifier   *Notifier

	connsMu sync.Mutex
	conns   map[*SessionData]*transport.Conn
	active  atomic.Int64
}

func NewService(cfg Config, reg *codec.Registry, dispatcher *Dispatcher) *Service {
	return &Service{
		cfg:        cfg.WithDefaults(),
		reg:        reg,
		dispatcher: dispatcher,
		conns:      make(map[*SessionData]*transport.Conn),
	}
}

// NewRegistryService wires the core, domain, contact and host handlers over
// an in-memory Store. reg must already carry the mappings and extensions
// the server should advertise.
func NewRegistryService(cfg Config, reg *codec.Registry, accounts auth.Authenticator, queue *pollq.Queue) (*Service, error) {
	cfg = cfg.WithDefaults()
	store := NewStore(cfg.ROIDSuffix)
	notifier := NewNotifier(queue, reg)

	core := NewCoreHandler(accounts, queue, Menu(reg))
	core.maxFailures = cfg.MaxLoginFailures
	d := NewDispatcher()
	handlers := map[string]Handler{
		codec.NamespaceEPP: core,
		domain.Namespace:   NewDomainHandler(store, notifier),
		contact.Namespace:  NewContactHandler(store),
		host.Namespace:     NewHostHandler(store),
	}
	for ns, h := range handlers {
		if err := d.Register(ns, h); err != nil {
			return nil, err
		}
	}
	svc := NewService(cfg, reg, d)
	svc.store = store
	svc.notifier = notifier
	return svc, nil
}

// RegisterStandard registers the domain, contact, host and secDNS codecs.
func RegisterStandard(reg *codec.Registry) error {
	for _, register := range []func(*codec.Registry) error{
		domain.Register,
		contact.Register,
		host.Register,
		secdns.Register,
	} {
		if err := register(reg); err != nil {
			return err
		}
	}
	return nil
}

// Menu is the service menu advertised for reg.
func Menu(reg *codec.Registry) codec.ServiceMenu {
	return codec.ServiceMenu{
		Versions:  []string{codec.ProtocolVersion},
		Langs:     []string{codec.DefaultLang},
		ObjURIs:   reg.Mappings(),
		Extension: codec.NewServiceExtension(reg.Extensions()),
	}
}

func (s *Service) Config() Config          { return s.cfg }
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// Store is nil unless the service came from NewRegistryService.
func (s *Service) Store() *Store { return s.store }

// Notifier is nil unless the service came from NewRegistryService.
func (s *Service) Notifier() *Notifier { return s.notifier }

func (s *Service) Greeting() *codec.Greeting {
	return &codec.Greeting{
		ServerID:   s.cfg.ServerID,
		ServerDate: time.Now().UTC(),
		Menu:       Menu(s.reg),
		DCP:        codec.DefaultDCP(),
	}
}

// Sessions snapshots every open connection, oldest first.
func (s *Service) Sessions() []SessionInfo {
	s.connsMu.Lock()
	sds := make([]*SessionData, 0, len(s.conns))
	for sd := range s.conns {
		sds = append(sds, sd)
	}
	s.connsMu.Unlock()

	out := make([]SessionInfo, 0, len(sds))
	for _, sd := range sds {
		out = append(out, sd.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

func (s *Service) Listen() (net.Listener, error) {
	return transport.Listen(s.cfg.Transport)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	logs.Infof("server.Service.Run listening addr=%q tls=%t server_id=%q", ln.Addr().String(), s.cfg.Transport.TLS.Enabled, s.cfg.ServerID)
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done, then closes every open connection.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	var wg sync.WaitGroup
	defer wg.Wait()
	defer s.closeAllConns()
	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, raw)
		}()
	}
}

func (s *Service) track(sd *SessionData, conn *transport.Conn) {
	s.connsMu.Lock()
	s.conns[sd] = conn
	s.connsMu.Unlock()
}

func (s *Service) untrack(sd *SessionData) {
	s.connsMu.Lock()
	delete(s.conns, sd)
	s.connsMu.Unlock()
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Service) handleConn(ctx context.Context, raw net.Conn) {
	conn, err := transport.Accept(raw, s.cfg.Transport)
	if err != nil {
		_ = raw.Close()
		logs.Warnf("server.Service.handleConn accept remote=%q err=%v", raw.RemoteAddr().String(), err)
		return
	}
	defer conn.Close()

	sd := &SessionData{
		ID:           uuid.NewString(),
		RemoteAddr:   conn.RemoteAddr(),
		PeerIdentity: conn.PeerIdentity(),
		ConnectedAt:  time.Now().UTC(),
	}
	s.track(sd, conn)
	defer s.untrack(sd)
	if ctx.Err() != nil {
		return
	}
	observability.SessionOpened()
	active := s.active.Add(1)
	logs.Infof("server.Service.handleConn connected session=%s remote=%q peer=%q active=%d", sd.ID, sd.RemoteAddr, sd.PeerIdentity, active)
	defer func() {
		observability.SessionClosed()
		remaining := s.active.Add(-1)
		logs.Infof("server.Service.handleConn disconnected session=%s client_id=%q commands=%d active=%d", sd.ID, sd.ClientID, sd.Commands, remaining)
	}()

	greeting, err := codec.EncodeGreeting(s.Greeting())
	if err != nil {
		logs.Errf("server.Service.handleConn encode greeting err=%v", err)
		return
	}
	if err := s.write(conn, greeting); err != nil {
		logs.Warnf("server.Service.handleConn write greeting session=%s err=%v", sd.ID, err)
		return
	}

	r, err := conn.Reader()
	if err != nil {
		return
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		doc, err := frame.Read(r, s.cfg.Limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logs.Debugf("server.Service.handleConn read session=%s err=%v", sd.ID, err)
			}
			return
		}
		out, err := s.process(ctx, doc, sd)
		if err != nil {
			logs.Errf("server.Service.handleConn session=%s err=%v", sd.ID, err)
			return
		}
		if err := s.write(conn, out); err != nil {
			logs.Warnf("server.Service.handleConn write session=%s err=%v", sd.ID, err)
			return
		}
		if sd.closing {
			return
		}
	}
}

func (s *Service) write(conn *transport.Conn, doc []byte) error {
	w, err := conn.Writer()
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return frame.Write(w, doc, s.cfg.Limits)
}

// process turns one inbound document into the document to send back.
func (s *Service) process(ctx context.Context, doc []byte, sd *SessionData) ([]byte, error) {
	msg, err := s.reg.DecodeMessage(doc)
	if err != nil {
		resp := s.decodeFailure(doc, err)
		logs.Debugf("server.Service.process session=%s decode code=%d err=%v", sd.ID, resp.Code(), err)
		return s.reg.EncodeResponse(resp)
	}
	if msg.Hello != nil {
		return codec.EncodeGreeting(s.Greeting())
	}

	ev := &Event{Command: msg.Command, SvTRID: newServerTRID(), Received: time.Now().UTC()}
	sd.mu.Lock()
	sd.LastCommand = ev.Received
	sd.Commands++
	resp := s.dispatcher.Dispatch(ctx, ev, sd)
	sd.mu.Unlock()
	return s.reg.EncodeResponse(resp)
}

// decodeFailure maps a decode error onto the result a client should see.
func (s *Service) decodeFailure(doc []byte, err error) *codec.Response {
	code := codec.CodeSyntaxError
	switch {
	case errors.Is(err, codec.ErrUnsupportedExtension):
		code = codec.CodeUnimplementedExtension
	case errors.Is(err, codec.ErrUnsupportedNamespace):
		code = codec.CodeUnimplementedService
	case errors.Is(err, codec.ErrUnsupportedElement):
		code = codec.CodeUnknownCommand
	}
	resp := codec.NewResponse(code, codec.PeekClientTRID(doc), newServerTRID())
	resp.Results[0].ExtValues = []codec.ExtValue{{Reason: err.Error()}}
	return resp
}

func newServerTRID() string {
	return "SV-" + uuid.NewString()
}

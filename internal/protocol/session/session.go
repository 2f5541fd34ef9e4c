package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/protocol"
	"github.com/danmuck/eppkit/internal/protocol/codec"
	"github.com/danmuck/eppkit/internal/protocol/frame"
	"github.com/danmuck/eppkit/internal/protocol/transport"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateLoggedIn:
		return "logged_in"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Credentials identify the registrar at login. Empty service lists default
// to what both the registry codec and the server greeting support.
type Credentials struct {
	ClientID    string
	Password    string
	NewPassword string
	ObjURIs     []string
	ExtURIs     []string
}

type Option func(*Session)

// WithDialer replaces transport.Dial, e.g. with a net.Pipe in tests.
func WithDialer(dial transport.DialFunc) Option {
	return func(s *Session) {
		if dial != nil {
			s.dial = dial
		}
	}
}

func WithTRIDPrefix(prefix string) Option {
	return func(s *Session) {
		if prefix != "" {
			s.cfg.TRIDPrefix = prefix
		}
	}
}

// Session is one client connection. Exchanges are serialized: EPP pairs a
// response with the last command written, so only one may be in flight.
type Session struct {
	cfg  Config
	reg  *codec.Registry
	dial transport.DialFunc

	io    sync.Mutex
	state atomic.Int32
	done  atomic.Bool
	seq   atomic.Uint64

	mu       sync.RWMutex
	conn     *transport.Conn
	greeting *codec.Greeting
	last     *codec.Response
	lastTRID string
	clientID string
	version  string
	lang     string
}

func New(cfg Config, reg *codec.Registry, opts ...Option) *Session {
	s := &Session{
		cfg:  cfg.WithDefaults(),
		reg:  reg,
		dial: transport.Dial,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Closed reports whether the session has ended and cannot be reused.
func (s *Session) Closed() bool {
	return s.done.Load()
}

func (s *Session) Greeting() *codec.Greeting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.greeting
}

func (s *Session) LastResponse() *codec.Response {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Session) LastClientTRID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTRID
}

func (s *Session) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientID
}

func (s *Session) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Session) Lang() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}

// Connect opens the transport and reads the greeting. A dial failure leaves
// the session fresh so the caller may retry; any failure after the socket is
// open ends it.
func (s *Session) Connect(ctx context.Context) (*codec.Greeting, error) {
	s.io.Lock()
	defer s.io.Unlock()
	if s.done.Load() {
		return nil, ErrSessionClosed
	}
	if s.State() != StateDisconnected {
		return nil, ErrAlreadyConnected
	}

	conn, err := s.dial(ctx, s.cfg.Transport)
	if err != nil {
		logs.Warnf("session.Session.Connect dial addr=%q err=%v", s.cfg.Transport.Address, err)
		return nil, err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	stop := s.watch(ctx, conn)
	doc, err := s.read(ctx, conn)
	stop()
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: awaiting greeting: %w", protocol.ErrProtocol, err))
	}
	greeting, err := s.reg.DecodeGreeting(doc)
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: first frame is not a greeting: %w", protocol.ErrProtocol, err))
	}

	s.mu.Lock()
	s.greeting = greeting
	s.mu.Unlock()
	s.state.Store(int32(StateConnected))
	logs.Infof("session.Session.Connect addr=%q server=%q objects=%d", conn.RemoteAddr(), greeting.ServerID, len(greeting.Menu.ObjURIs))
	return greeting, nil
}

// Login authenticates. On a failed result the session stays Connected and
// the returned *CommandError carries the server response.
func (s *Session) Login(ctx context.Context, creds Credentials) (*codec.Response, error) {
	s.io.Lock()
	defer s.io.Unlock()
	if s.done.Load() {
		return nil, ErrSessionClosed
	}
	switch s.State() {
	case StateDisconnected:
		return nil, ErrNotConnected
	case StateLoggedIn:
		return nil, ErrAlreadyLoggedIn
	}

	login, err := s.buildLogin(creds)
	if err != nil {
		return nil, err
	}
	resp, err := s.exchange(ctx, &codec.Command{Verb: codec.VerbLogin, Payload: login})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.clientID = login.ClientID
	s.version = login.Options.Version
	s.lang = login.Options.Lang
	s.mu.Unlock()
	s.state.Store(int32(StateLoggedIn))
	logs.Infof("session.Session.Login client_id=%q code=%d", login.ClientID, resp.Code())
	return resp, nil
}

// Send performs one command exchange. It requires LoggedIn; login and logout
// go through their dedicated methods. A clTRID is assigned when empty.
func (s *Session) Send(ctx context.Context, cmd *codec.Command) (*codec.Response, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", protocol.ErrCodec)
	}
	switch cmd.Verb {
	case codec.VerbLogin:
		login, ok := cmd.Payload.(*codec.Login)
		if !ok {
			return nil, fmt.Errorf("%w: login payload is %T", codec.ErrTypeMismatch, cmd.Payload)
		}
		return s.Login(ctx, Credentials{
			ClientID:    login.ClientID,
			Password:    login.Password,
			NewPassword: login.NewPassword,
			ObjURIs:     login.Services.ObjURIs,
			ExtURIs:     login.Services.Extension.URIs(),
		})
	case codec.VerbLogout:
		return s.Logout(ctx)
	}

	s.io.Lock()
	defer s.io.Unlock()
	if s.done.Load() {
		return nil, ErrSessionClosed
	}
	if s.State() != StateLoggedIn {
		return nil, ErrNotLoggedIn
	}
	return s.exchange(ctx, cmd)
}

// Exchange sends cmd and extracts the resData as T.
func Exchange[T codec.Component](ctx context.Context, s *Session, cmd *codec.Command) (*codec.Response, T, error) {
	var zero T
	resp, err := s.Send(ctx, cmd)
	if err != nil {
		return nil, zero, err
	}
	data, err := codec.DataAs[T](resp)
	if err != nil {
		return resp, zero, err
	}
	return resp, data, nil
}

// Hello asks for a fresh greeting. It is legal before and after login and
// keeps idle sessions alive.
func (s *Session) Hello(ctx context.Context) (*codec.Greeting, error) {
	s.io.Lock()
	defer s.io.Unlock()
	if s.done.Load() {
		return nil, ErrSessionClosed
	}
	if s.State() == StateDisconnected {
		return nil, ErrNotConnected
	}
	doc, err := codec.EncodeHello()
	if err != nil {
		return nil, err
	}
	raw, err := s.roundTrip(ctx, doc)
	if err != nil {
		return nil, err
	}
	greeting, err := s.reg.DecodeGreeting(raw)
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: hello answered without greeting: %w", protocol.ErrProtocol, err))
	}
	s.mu.Lock()
	s.greeting = greeting
	s.mu.Unlock()
	return greeting, nil
}

// Poll requests the head of the registrar's message queue. 1300 means empty.
func (s *Session) Poll(ctx context.Context) (*codec.Response, error) {
	return s.Send(ctx, &codec.Command{Verb: codec.VerbPoll, Payload: &codec.Poll{Op: codec.PollRequest}})
}

// PollAck dequeues msgID.
func (s *Session) PollAck(ctx context.Context, msgID string) (*codec.Response, error) {
	return s.Send(ctx, &codec.Command{Verb: codec.VerbPoll, Payload: &codec.Poll{Op: codec.PollAck, MessageID: msgID}})
}

// Logout is best effort: whatever the server answers, the session ends
// Disconnected with its transport closed.
func (s *Session) Logout(ctx context.Context) (*codec.Response, error) {
	s.io.Lock()
	defer s.io.Unlock()
	if s.done.Load() {
		return nil, ErrSessionClosed
	}
	defer s.shutdown()
	if s.State() == StateDisconnected {
		return nil, ErrNotConnected
	}
	resp, err := s.exchange(ctx, &codec.Command{Verb: codec.VerbLogout, Payload: &codec.Logout{}})
	if err != nil {
		logs.Warnf("session.Session.Logout err=%v", err)
		return nil, err
	}
	logs.Infof("session.Session.Logout client_id=%q code=%d", s.ClientID(), resp.Code())
	return resp, nil
}

// Close drops the transport without logging out.
func (s *Session) Close() error {
	s.shutdown()
	return nil
}

func (s *Session) buildLogin(creds Credentials) (*codec.Login, error) {
	s.mu.RLock()
	greeting := s.greeting
	s.mu.RUnlock()
	menu := greeting.Menu

	if len(menu.Versions) > 0 && !menu.SupportsVersion(s.cfg.Version) {
		return nil, fmt.Errorf("%w: version %q", ErrUnsupportedService, s.cfg.Version)
	}
	if len(menu.Langs) > 0 && !menu.SupportsLang(s.cfg.Lang) {
		return nil, fmt.Errorf("%w: lang %q", ErrUnsupportedService, s.cfg.Lang)
	}

	objURIs := creds.ObjURIs
	if len(objURIs) == 0 {
		objURIs = intersect(s.reg.Mappings(), menu.ObjURIs)
	}
	for _, uri := range objURIs {
		if !menu.SupportsObject(uri) {
			return nil, fmt.Errorf("%w: object %q", ErrUnsupportedService, uri)
		}
		if _, ok := s.reg.Mapping(uri); !ok {
			return nil, fmt.Errorf("%w: object %q has no registered mapping", ErrUnsupportedService, uri)
		}
	}
	extURIs := creds.ExtURIs
	if len(extURIs) == 0 {
		extURIs = intersect(s.reg.Extensions(), menu.Extension.URIs())
	}
	for _, uri := range extURIs {
		if !menu.SupportsExtension(uri) {
			return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedService, uri)
		}
		if _, ok := s.reg.Extension(uri); !ok {
			return nil, fmt.Errorf("%w: extension %q has no registered factory", ErrUnsupportedService, uri)
		}
	}

	return &codec.Login{
		ClientID:    creds.ClientID,
		Password:    creds.Password,
		NewPassword: creds.NewPassword,
		Options:     codec.LoginOptions{Version: s.cfg.Version, Lang: s.cfg.Lang},
		Services: codec.Services{
			ObjURIs:   objURIs,
			Extension: codec.NewServiceExtension(extURIs),
		},
	}, nil
}

// exchange runs one command under s.io. Encode failures happen before any
// write and leave the session untouched.
func (s *Session) exchange(ctx context.Context, cmd *codec.Command) (*codec.Response, error) {
	if cmd.ClientTRID == "" {
		cmd.ClientTRID = fmt.Sprintf("%s-%d", s.cfg.TRIDPrefix, s.seq.Add(1))
	}
	doc, err := s.reg.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lastTRID = cmd.ClientTRID
	s.mu.Unlock()

	started := time.Now()
	raw, err := s.roundTrip(ctx, doc)
	if err != nil {
		return nil, err
	}
	resp, err := s.reg.DecodeResponse(raw)
	if err != nil {
		if errors.Is(err, codec.ErrUnexpectedMessage) {
			return nil, s.fail(fmt.Errorf("%w: %w", protocol.ErrProtocol, err))
		}
		// The frame was consumed whole; the stream is still in sync.
		return nil, err
	}

	s.mu.Lock()
	s.last = resp
	s.mu.Unlock()
	if resp.TrID.ClientTRID != cmd.ClientTRID {
		return nil, s.fail(fmt.Errorf("%w: clTRID mismatch sent=%q got=%q",
			protocol.ErrProtocol, cmd.ClientTRID, resp.TrID.ClientTRID))
	}
	if resp.TrID.ServerTRID == "" {
		logs.Warnf("session.Session.exchange empty svTRID clTRID=%q", cmd.ClientTRID)
	}
	logs.Debugf("session.Session.exchange verb=%s clTRID=%q code=%d took=%s",
		cmd.Verb, cmd.ClientTRID, resp.Code(), time.Since(started))

	if resp.Code().ClosesSession() {
		s.shutdown()
	}
	if !resp.Success() {
		return nil, &CommandError{Verb: cmd.Verb, Response: resp}
	}
	return resp, nil
}

// roundTrip writes one frame and reads the next. Transport and frame
// failures end the session.
func (s *Session) roundTrip(ctx context.Context, doc []byte) ([]byte, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	stop := s.watch(ctx, conn)
	defer stop()

	w, err := conn.Writer()
	if err != nil {
		return nil, s.fail(err)
	}
	_ = conn.SetWriteDeadline(s.deadline(ctx, s.cfg.WriteTimeout))
	if err := frame.Write(w, doc, s.cfg.Limits); err != nil {
		if errors.Is(err, frame.ErrFrameTooLarge) {
			return nil, err
		}
		return nil, s.fail(connError("write", err))
	}
	raw, err := s.read(ctx, conn)
	if err != nil {
		return nil, s.fail(err)
	}
	return raw, nil
}

func (s *Session) read(ctx context.Context, conn *transport.Conn) ([]byte, error) {
	r, err := conn.Reader()
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(s.deadline(ctx, s.cfg.ReadTimeout))
	doc, err := frame.Read(r, s.cfg.Limits)
	if err != nil {
		return nil, connError("read", err)
	}
	return doc, nil
}

// watch unblocks pending I/O when ctx ends; the stop func must be called.
func (s *Session) watch(ctx context.Context, conn *transport.Conn) func() bool {
	return context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = conn.SetReadDeadline(now)
		_ = conn.SetWriteDeadline(now)
	})
}

func (s *Session) deadline(ctx context.Context, timeout time.Duration) time.Time {
	dl := time.Now().Add(timeout)
	if ctxDL, ok := ctx.Deadline(); ok && ctxDL.Before(dl) {
		return ctxDL
	}
	return dl
}

func (s *Session) fail(err error) error {
	logs.Warnf("session.Session.fail state=%s err=%v", s.State(), err)
	s.shutdown()
	return err
}

func (s *Session) shutdown() {
	s.state.Store(int32(StateDisconnected))
	if s.done.Swap(true) {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if err := conn.Close(); err != nil {
		logs.Debugf("session.Session.shutdown close err=%v", err)
	}
}

// connError classifies I/O failures as connection errors. Frame errors keep
// their class as well so callers can tell a desync from a dropped socket.
func connError(op string, err error) error {
	if errors.Is(err, protocol.ErrConnection) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", protocol.ErrConnection, op, err)
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		for _, y := range b {
			if x == y {
				out = append(out, x)
				break
			}
		}
	}
	return out
}

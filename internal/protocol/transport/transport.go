// Package transport owns the byte-stream connection beneath an EPP session:
// plain TCP or TLS, one socket per session, no protocol knowledge.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/eppkit/internal/protocol"
)

var (
	ErrAddressRequired = fmt.Errorf("%w: address required", protocol.ErrConnection)
	ErrClosed          = fmt.Errorf("%w: connection closed", protocol.ErrConnection)
)

// DialFunc opens a Conn. Session takes one so tests can substitute pipes.
type DialFunc func(ctx context.Context, cfg Config) (*Conn, error)

// Conn is one open EPP byte stream.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	peerID string
	closed atomic.Bool
}

// NewConn wraps an already established stream.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw, reader: bufio.NewReader(raw)}
}

// Dial opens a TCP connection and, when configured, completes a TLS client
// handshake. Every failure wraps protocol.ErrConnection.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	if cfg.Address == "" {
		return nil, ErrAddressRequired
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrConnection, err)
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	if cfg.LocalAddr != "" {
		local, err := net.ResolveTCPAddr("tcp", cfg.LocalAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve local %q: %w", protocol.ErrConnection, cfg.LocalAddr, err)
		}
		dialer.LocalAddr = local
	}
	rawConn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %q: %w", protocol.ErrConnection, cfg.Address, err)
	}
	if tcp, ok := rawConn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	if !cfg.TLS.Enabled {
		return NewConn(rawConn), nil
	}

	tlsCfg, err := ClientTLSConfig(cfg)
	if err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("%w: %w", protocol.ErrConnection, err)
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("%w: tls handshake %q: %w", protocol.ErrConnection, cfg.Address, err)
	}
	out := NewConn(conn)
	out.peerID = peerIdentity(conn.ConnectionState())
	return out, nil
}

// Reader returns the buffered inbound stream.
func (c *Conn) Reader() (io.Reader, error) {
	if c == nil || c.closed.Load() {
		return nil, ErrClosed
	}
	return c.reader, nil
}

// Writer returns the outbound stream.
func (c *Conn) Writer() (io.Writer, error) {
	if c == nil || c.closed.Load() {
		return nil, ErrClosed
	}
	return c.raw, nil
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	if c == nil || c.closed.Load() {
		return ErrClosed
	}
	return c.raw.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	if c == nil || c.closed.Load() {
		return ErrClosed
	}
	return c.raw.SetWriteDeadline(t)
}

// Close is idempotent and safe on a nil Conn.
func (c *Conn) Close() error {
	if c == nil || c.closed.Swap(true) {
		return nil
	}
	err := c.raw.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Conn) IsClosed() bool {
	return c == nil || c.closed.Load()
}

func (c *Conn) RemoteAddr() string {
	if c == nil || c.raw == nil {
		return ""
	}
	return c.raw.RemoteAddr().String()
}

// PeerIdentity is the verified peer certificate identity, empty without TLS.
func (c *Conn) PeerIdentity() string {
	if c == nil {
		return ""
	}
	return c.peerID
}

// ClientTLSConfig builds the registrar-side TLS config from file material.
func ClientTLSConfig(cfg Config) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(cfg.TLS.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(cfg.Address)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	out.ServerName = serverName

	if caPath := strings.TrimSpace(cfg.TLS.CAFile); caPath != "" {
		pool, err := loadCAPool(caPath)
		if err != nil {
			return nil, err
		}
		out.RootCAs = pool
	}

	if cfg.TLS.Mutual {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, err
		}
		out.Certificates = []tls.Certificate{cert}
	}
	return out, nil
}

// ServerTLSConfig builds the registry-side TLS config; mutual mode and
// production both require verified client certificates.
func ServerTLSConfig(cfg Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, err
	}
	out := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}
	if cfg.TLS.Mutual || NormalizeSecurityMode(cfg.SecurityMode) == SecurityModeProduction {
		pool, err := loadCAPool(cfg.TLS.CAFile)
		if err != nil {
			return nil, err
		}
		out.ClientAuth = tls.RequireAndVerifyClientCert
		out.ClientCAs = pool
	}
	return out, nil
}

// Listen opens a plain or TLS listener per cfg.
func Listen(cfg Config) (net.Listener, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	if !cfg.TLS.Enabled {
		return net.Listen("tcp", cfg.Address)
	}
	tlsCfg, err := ServerTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", cfg.Address, tlsCfg)
}

// Accept completes the server side of a freshly accepted connection: the TLS
// handshake when the listener is TLS, then peer identity extraction.
func Accept(raw net.Conn, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	tlsConn, ok := raw.(*tls.Conn)
	if !ok {
		if cfg.TLS.Enabled {
			return nil, fmt.Errorf("%w: expected tls connection", protocol.ErrConnection)
		}
		return NewConn(raw), nil
	}
	_ = tlsConn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("%w: tls handshake: %w", protocol.ErrConnection, err)
	}
	_ = tlsConn.SetDeadline(time.Time{})
	state := tlsConn.ConnectionState()
	needPeer := cfg.TLS.Mutual || NormalizeSecurityMode(cfg.SecurityMode) == SecurityModeProduction
	if needPeer && len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("%w: %w", protocol.ErrConnection, ErrMTLSRequired)
	}
	out := NewConn(tlsConn)
	out.peerID = peerIdentity(state)
	return out, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("transport: parse tls ca bundle: %s", path)
	}
	return pool, nil
}

// peerIdentity prefers CN, then URI SAN, then DNS SAN.
func peerIdentity(state tls.ConnectionState) string {
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	cert := state.PeerCertificates[0]
	if v := strings.TrimSpace(cert.Subject.CommonName); v != "" {
		return v
	}
	if len(cert.URIs) > 0 {
		if v := strings.TrimSpace(cert.URIs[0].String()); v != "" {
			return v
		}
	}
	if len(cert.DNSNames) > 0 {
		return strings.TrimSpace(cert.DNSNames[0])
	}
	return ""
}

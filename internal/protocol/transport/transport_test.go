package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/eppkit/internal/protocol"
	"github.com/danmuck/eppkit/internal/testutil/testlog"
	"github.com/danmuck/eppkit/internal/testutil/tlstest"
)

func TestConnAccessorsAfterClose(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	defer b.Close()
	c := NewConn(a)
	if _, err := c.Reader(); err != nil {
		t.Fatalf("reader on open conn: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}
	if _, err := c.Reader(); !errors.Is(err, protocol.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if _, err := c.Writer(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNilConnIsSafe(t *testing.T) {
	var c *Conn
	if err := c.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	if _, err := c.Reader(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDialRefused(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = Dial(ctx, Config{Address: addr})
	if !errors.Is(err, protocol.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestDialRequiresAddress(t *testing.T) {
	if _, err := Dial(context.Background(), Config{}); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestSecurityPolicy(t *testing.T) {
	prod := Config{SecurityMode: SecurityModeProduction}
	if err := prod.ValidateClient(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
	prod.TLS.Enabled = true
	if err := prod.ValidateServer(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}
	prod.TLS.Mutual = true
	prod.TLS.InsecureSkipVerify = true
	if err := prod.ValidateClient(); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("expected ErrTLSInsecureSkipNotAllow, got %v", err)
	}
	bad := Config{SecurityMode: "staging"}
	if err := bad.ValidateClient(); !errors.Is(err, ErrInvalidSecurityMode) {
		t.Fatalf("expected ErrInvalidSecurityMode, got %v", err)
	}
	dev := Config{TLS: TLSConfig{Enabled: true}}
	if err := dev.ValidateClient(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}
}

func TestDialMutualTLS(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, "eppkit-test-ca")
	srv := ca.Server(t, "registry.test")
	cli := ca.Client(t, "ClientX")

	serverCfg := Config{
		Address:      "127.0.0.1:0",
		SecurityMode: SecurityModeProduction,
		TLS: TLSConfig{
			Enabled:  true,
			Mutual:   true,
			CertFile: srv.CertFile,
			KeyFile:  srv.KeyFile,
			CAFile:   ca.CAFile(),
		},
	}
	ln, err := Listen(serverCfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	peer := make(chan string, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			peer <- "accept: " + err.Error()
			return
		}
		conn, err := Accept(raw, serverCfg)
		if err != nil {
			peer <- "handshake: " + err.Error()
			return
		}
		defer conn.Close()
		peer <- conn.PeerIdentity()
		r, _ := conn.Reader()
		_, _ = io.Copy(io.Discard, r)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, Config{
		Address:      ln.Addr().String(),
		SecurityMode: SecurityModeProduction,
		TLS: TLSConfig{
			Enabled:  true,
			Mutual:   true,
			CAFile:   ca.CAFile(),
			CertFile: cli.CertFile,
			KeyFile:  cli.KeyFile,
		},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if got := conn.PeerIdentity(); got != "registry.test" {
		t.Fatalf("server identity=%q", got)
	}
	w, err := conn.Writer()
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if _, err := w.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-peer:
		if got != "ClientX" {
			t.Fatalf("client identity=%q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for server handshake")
	}
}

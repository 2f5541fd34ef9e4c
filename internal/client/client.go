// Package client layers typed, reusable object handles over a session.
//
// A handle such as Domain accumulates fields through setters and clears all
// of them after every Send call, successful or not, so one handle can be
// reused across unrelated operations without stale state.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/protocol"
	"github.com/danmuck/eppkit/internal/protocol/codec"
	"github.com/danmuck/eppkit/internal/protocol/session"
)

// Sender performs one command exchange. *session.Session satisfies it.
type Sender interface {
	Send(ctx context.Context, cmd *codec.Command) (*codec.Response, error)
}

var ErrMissingField = errors.New("client: required field not set")

// Connect dials, reads the greeting and logs in. Dial failures are retried
// with the configured backoff up to MaxConnectAttempts; a failed login is
// returned as is.
func Connect(ctx context.Context, cfg session.Config, reg *codec.Registry, creds session.Credentials, opts ...session.Option) (*session.Session, error) {
	cfg = cfg.WithDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	sess := session.New(cfg, reg, opts...)
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxConnectAttempts; attempt++ {
		if attempt > 1 {
			if err := session.SleepBackoff(ctx, cfg.Backoff, attempt-1, rng); err != nil {
				return nil, err
			}
		}
		_, err := sess.Connect(ctx)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if sess.Closed() || !errors.Is(err, protocol.ErrConnection) {
			// failure after the socket opened; the session is spent
			return nil, err
		}
		logs.Warnf("client.Connect attempt=%d/%d addr=%q err=%v", attempt, cfg.MaxConnectAttempts, cfg.Transport.Address, err)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("client: connect after %d attempts: %w", cfg.MaxConnectAttempts, lastErr)
	}

	if _, err := sess.Login(ctx, creds); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

func exchange[T codec.Component](ctx context.Context, s Sender, cmd *codec.Command) (*codec.Response, T, error) {
	var zero T
	resp, err := s.Send(ctx, cmd)
	if err != nil {
		return resp, zero, err
	}
	data, err := codec.DataAs[T](resp)
	if err != nil {
		return resp, zero, err
	}
	return resp, data, nil
}

// common holds the fields every handle carries.
type common struct {
	sender     Sender
	extensions []codec.Component
	clTRID     string
}

func (c *common) command(verb codec.Verb, payload codec.Component) *codec.Command {
	return &codec.Command{
		Verb:       verb,
		Payload:    payload,
		Extensions: c.extensions,
		ClientTRID: c.clTRID,
	}
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/eppkit/internal/protocol/codec"
)

var (
	ErrNotConnected       = errors.New("session: not connected")
	ErrAlreadyConnected   = errors.New("session: already connected")
	ErrNotLoggedIn        = errors.New("session: not logged in")
	ErrAlreadyLoggedIn    = errors.New("session: already logged in")
	ErrSessionClosed      = errors.New("session: closed")
	ErrUnsupportedService = errors.New("session: service not offered by server")
)

// CommandError is a well-formed response whose primary result is not a
// success. The session stays usable.
type CommandError struct {
	Verb     codec.Verb
	Response *codec.Response
}

func (e *CommandError) Error() string {
	primary := e.Response.Primary()
	msg := fmt.Sprintf("session: %s failed code=%d msg=%q", e.Verb, primary.Code, primary.Msg)
	if len(primary.ExtValues) > 0 && primary.ExtValues[0].Reason != "" {
		msg += fmt.Sprintf(" reason=%q", primary.ExtValues[0].Reason)
	}
	return msg
}

func (e *CommandError) Code() codec.ResultCode {
	return e.Response.Code()
}

// AsCommandError unwraps err to the carried server response, if any.
func AsCommandError(err error) (*CommandError, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ResultCode returns the server result code carried by err, or 0.
func ResultCode(err error) codec.ResultCode {
	if ce, ok := AsCommandError(err); ok {
		return ce.Code()
	}
	return 0
}

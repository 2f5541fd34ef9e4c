package protocol

import "errors"

// Error classes. Package-specific errors wrap exactly one of these so callers
// can branch with errors.Is regardless of which layer failed.
var (
	// ErrConnection is fatal to the session: DNS, refused, TLS, timeout, reset.
	ErrConnection = errors.New("epp: connection error")
	// ErrFrame is fatal to the session: frame boundaries can no longer be trusted.
	ErrFrame = errors.New("epp: frame error")
	// ErrCodec reports well-formed XML that cannot be mapped to a known type.
	ErrCodec = errors.New("epp: codec error")
	// ErrCodecConfig reports conflicting factory registration.
	ErrCodecConfig = errors.New("epp: codec configuration error")
	// ErrProtocol reports a peer that violated the session contract.
	ErrProtocol = errors.New("epp: protocol error")

	ErrQueueEmpty      = errors.New("epp: poll queue empty")
	ErrMessageNotFound = errors.New("epp: poll message not found")
)

// Fatal reports whether err ends the session it occurred on.
func Fatal(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrFrame) || errors.Is(err, ErrProtocol)
}

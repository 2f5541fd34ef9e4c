// Package frame implements EPP-over-TCP data units (RFC 5734 §4): a 4-byte
// big-endian total length, counting the header itself, followed by one XML
// document.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/eppkit/internal/protocol"
)

const HeaderLen = 4

var (
	ErrShortHeader   = fmt.Errorf("%w: short length header", protocol.ErrFrame)
	ErrInvalidLength = fmt.Errorf("%w: declared length does not exceed header", protocol.ErrFrame)
	ErrFrameTooLarge = fmt.Errorf("%w: frame exceeds limit", protocol.ErrFrame)
	ErrTruncated     = fmt.Errorf("%w: stream closed mid-frame", protocol.ErrFrame)
	ErrEmptyFrame    = fmt.Errorf("%w: empty payload", protocol.ErrFrame)
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	// MaxFrameBytes bounds the XML payload, excluding the header.
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 4 * 1024 * 1024}
}

func (l Limits) withDefaults() Limits {
	if l.MaxFrameBytes == 0 {
		return DefaultLimits()
	}
	return l
}

// Encode prepends the total-length header to payload.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(len(payload)) > uint64(^uint32(0))-HeaderLen {
		return nil, ErrFrameTooLarge
	}
	out := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(out[:HeaderLen], uint32(len(payload)+HeaderLen))
	copy(out[HeaderLen:], payload)
	return out, nil
}

// Read blocks until one complete frame is available and returns its payload.
// The declared length is validated against limits before any payload buffer
// is allocated.
func Read(r io.Reader, limits Limits) ([]byte, error) {
	limits = limits.withDefaults()

	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		// io.EOF here means a clean close between frames.
		return nil, err
	}

	total := binary.BigEndian.Uint32(header[:])
	if total <= HeaderLen {
		return nil, fmt.Errorf("%w: total=%d", ErrInvalidLength, total)
	}
	size := total - HeaderLen
	if size > limits.MaxFrameBytes {
		return nil, fmt.Errorf("%w: size=%d max=%d", ErrFrameTooLarge, size, limits.MaxFrameBytes)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return payload, nil
}

// Write encodes payload and writes the whole frame, resuming after short writes.
func Write(w io.Writer, payload []byte, limits Limits) error {
	limits = limits.withDefaults()
	if uint64(len(payload)) > uint64(limits.MaxFrameBytes) {
		return fmt.Errorf("%w: size=%d max=%d", ErrFrameTooLarge, len(payload), limits.MaxFrameBytes)
	}
	buf, err := Encode(payload)
	if err != nil {
		return err
	}
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
	}
	return nil
}

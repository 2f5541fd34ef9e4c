// Package pollq is the per-registrar message queue behind EPP <poll>.
//
// Records are FIFO per recipient. Get reads the head without removing it;
// Acknowledge removes the head. Put and Acknowledge for one recipient are
// serialized so concurrent sessions never interleave a read-modify-write.
package pollq

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/protocol"
)

// Record is one queued notification.
type Record struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Namespace string    `json:"namespace,omitempty"`
	Data      []byte    `json:"data,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
}

// Payload is what a producer hands to Put. Data is an encoded resData
// element in Namespace, or empty for text-only messages.
type Payload struct {
	Message   string
	Namespace string
	Data      []byte
}

// AckPolicy decides how Acknowledge treats the supplied message id.
type AckPolicy int

const (
	// AckMatchHead removes the head only when its id equals the supplied id.
	AckMatchHead AckPolicy = iota
	// AckHead removes the head whatever id is supplied.
	AckHead
)

func (p AckPolicy) String() string {
	switch p {
	case AckMatchHead:
		return "match-head"
	case AckHead:
		return "head"
	default:
		return fmt.Sprintf("ack-policy(%d)", int(p))
	}
}

// ParseAckPolicy accepts "match-head" (default when empty) or "head".
func ParseAckPolicy(s string) (AckPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "match-head", "match":
		return AckMatchHead, nil
	case "head":
		return AckHead, nil
	default:
		return 0, fmt.Errorf("pollq: unknown ack policy %q", s)
	}
}

// Store is the backing storage. Implementations need not lock per
// recipient; Queue does that.
type Store interface {
	NextID(ctx context.Context) (uint64, error)
	Append(ctx context.Context, rec Record) error
	Head(ctx context.Context, recipient string) (Record, bool, error)
	RemoveHead(ctx context.Context, recipient string) (Record, bool, error)
	Len(ctx context.Context, recipient string) (int, error)
	Close() error
}

type Option func(*Queue)

func WithAckPolicy(p AckPolicy) Option {
	return func(q *Queue) { q.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

const lockStripes = 64

type Queue struct {
	store  Store
	policy AckPolicy
	now    func() time.Time
	locks  [lockStripes]sync.Mutex
}

func New(store Store, opts ...Option) *Queue {
	q := &Queue{store: store, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Policy() AckPolicy { return q.policy }

func (q *Queue) lock(recipient string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipient))
	return &q.locks[h.Sum32()%lockStripes]
}

// Put appends a record with a fresh, strictly increasing id.
func (q *Queue) Put(ctx context.Context, recipient, kind string, payload Payload) (Record, error) {
	if recipient == "" {
		return Record{}, fmt.Errorf("pollq: recipient required")
	}
	mu := q.lock(recipient)
	mu.Lock()
	defer mu.Unlock()

	id, err := q.store.NextID(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("pollq: next id: %w", err)
	}
	rec := Record{
		ID:        strconv.FormatUint(id, 10),
		Recipient: recipient,
		Kind:      kind,
		Message:   payload.Message,
		Namespace: payload.Namespace,
		Data:      payload.Data,
		QueuedAt:  q.now().UTC(),
	}
	if err := q.store.Append(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("pollq: append: %w", err)
	}
	logs.Debugf("pollq.Queue.Put recipient=%q id=%s kind=%q", recipient, rec.ID, kind)
	return rec, nil
}

// Get returns the head record and the queue size without removing anything.
func (q *Queue) Get(ctx context.Context, recipient string) (Record, int, error) {
	mu := q.lock(recipient)
	mu.Lock()
	defer mu.Unlock()

	rec, ok, err := q.store.Head(ctx, recipient)
	if err != nil {
		return Record{}, 0, fmt.Errorf("pollq: head: %w", err)
	}
	if !ok {
		return Record{}, 0, protocol.ErrQueueEmpty
	}
	n, err := q.store.Len(ctx, recipient)
	if err != nil {
		return Record{}, 0, fmt.Errorf("pollq: len: %w", err)
	}
	return rec, n, nil
}

// Acknowledge removes the head record and returns it along with how many
// remain. Ack is positional: only the head can be removed.
func (q *Queue) Acknowledge(ctx context.Context, recipient, msgID string) (Record, int, error) {
	mu := q.lock(recipient)
	mu.Lock()
	defer mu.Unlock()

	head, ok, err := q.store.Head(ctx, recipient)
	if err != nil {
		return Record{}, 0, fmt.Errorf("pollq: head: %w", err)
	}
	if !ok {
		return Record{}, 0, fmt.Errorf("%w: queue empty", protocol.ErrMessageNotFound)
	}
	if q.policy == AckMatchHead && head.ID != strings.TrimSpace(msgID) {
		return Record{}, 0, fmt.Errorf("%w: id=%q head=%q", protocol.ErrMessageNotFound, msgID, head.ID)
	}
	removed, ok, err := q.store.RemoveHead(ctx, recipient)
	if err != nil {
		return Record{}, 0, fmt.Errorf("pollq: remove: %w", err)
	}
	if !ok {
		return Record{}, 0, fmt.Errorf("%w: queue drained concurrently", protocol.ErrMessageNotFound)
	}
	n, err := q.store.Len(ctx, recipient)
	if err != nil {
		return Record{}, 0, fmt.Errorf("pollq: len: %w", err)
	}
	logs.Debugf("pollq.Queue.Acknowledge recipient=%q id=%s remaining=%d", recipient, removed.ID, n)
	return removed, n, nil
}

// Size reports the queue length for recipient.
func (q *Queue) Size(ctx context.Context, recipient string) (int, error) {
	return q.store.Len(ctx, recipient)
}

func (q *Queue) Close() error {
	return q.store.Close()
}

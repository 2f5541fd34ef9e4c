package pollq

import (
	"context"
	"errors"
	"sync"
)

var ErrStoreClosed = errors.New("pollq: store closed")

// MemoryStore keeps queues in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	seq    uint64
	queues map[string][]Record
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{queues: make(map[string][]Record)}
}

func (m *MemoryStore) NextID(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	m.seq++
	return m.seq, nil
}

func (m *MemoryStore) Append(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.queues[rec.Recipient] = append(m.queues[rec.Recipient], rec)
	return nil
}

func (m *MemoryStore) Head(ctx context.Context, recipient string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Record{}, false, ErrStoreClosed
	}
	q := m.queues[recipient]
	if len(q) == 0 {
		return Record{}, false, nil
	}
	return q[0], true, nil
}

func (m *MemoryStore) RemoveHead(ctx context.Context, recipient string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Record{}, false, ErrStoreClosed
	}
	q := m.queues[recipient]
	if len(q) == 0 {
		return Record{}, false, nil
	}
	head := q[0]
	q[0] = Record{}
	if len(q) == 1 {
		delete(m.queues, recipient)
	} else {
		m.queues[recipient] = q[1:]
	}
	return head, true, nil
}

func (m *MemoryStore) Len(ctx context.Context, recipient string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.queues[recipient]), nil
}

// Recipients lists recipients with at least one queued record.
func (m *MemoryStore) Recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.queues))
	for r := range m.queues {
		out = append(out, r)
	}
	return out
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

package pollq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/eppkit/internal/protocol"
	"github.com/danmuck/eppkit/internal/testutil/testlog"
	"github.com/redis/go-redis/v9"
)

// fakeRedis implements RedisClient over in-memory lists.
type fakeRedis struct {
	mu       sync.Mutex
	counters map[string]int64
	lists    map[string][]string
	fail     error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counters: map[string]int64{}, lists: map[string][]string{}}
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return redis.NewIntResult(0, f.fail)
	}
	f.counters[key]++
	return redis.NewIntResult(f.counters[key], nil)
}

func (f *fakeRedis) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return redis.NewIntResult(0, f.fail)
	}
	for _, v := range values {
		switch b := v.(type) {
		case []byte:
			f.lists[key] = append(f.lists[key], string(b))
		case string:
			f.lists[key] = append(f.lists[key], b)
		default:
			f.lists[key] = append(f.lists[key], fmt.Sprint(v))
		}
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LIndex(ctx context.Context, key string, index int64) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	if index < 0 || int(index) >= len(l) {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(l[index], nil)
}

func (f *fakeRedis) LPop(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	if len(l) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	f.lists[key] = l[1:]
	return redis.NewStringResult(l[0], nil)
}

func (f *fakeRedis) LLen(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"redis":  func() Store { return NewRedisStore(newFakeRedis(), WithRedisPrefix("test:")) },
	}
}

func TestQueueFIFO(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			q := New(mk(), WithClock(func() time.Time { return fixedNow }))
			for i := 1; i <= 3; i++ {
				if _, err := q.Put(ctx, "ClientX", "transfer", Payload{Message: fmt.Sprintf("msg %d", i)}); err != nil {
					t.Fatalf("put %d: %v", i, err)
				}
			}
			if _, err := q.Put(ctx, "ClientY", "transfer", Payload{Message: "other"}); err != nil {
				t.Fatalf("put other: %v", err)
			}

			for i := 1; i <= 3; i++ {
				rec, n, err := q.Get(ctx, "ClientX")
				if err != nil {
					t.Fatalf("get %d: %v", i, err)
				}
				if rec.Message != fmt.Sprintf("msg %d", i) || n != 4-i {
					t.Fatalf("get %d: msg=%q size=%d", i, rec.Message, n)
				}
				if !rec.QueuedAt.Equal(fixedNow) {
					t.Fatalf("queued at %v", rec.QueuedAt)
				}
				// Get does not dequeue.
				again, _, _ := q.Get(ctx, "ClientX")
				if again.ID != rec.ID {
					t.Fatalf("head moved without ack: %s -> %s", rec.ID, again.ID)
				}
				removed, left, err := q.Acknowledge(ctx, "ClientX", rec.ID)
				if err != nil || left != 3-i || removed.ID != rec.ID {
					t.Fatalf("ack %d: removed=%q left=%d err=%v", i, removed.ID, left, err)
				}
			}
			if _, _, err := q.Get(ctx, "ClientX"); !errors.Is(err, protocol.ErrQueueEmpty) {
				t.Fatalf("expected empty queue, got %v", err)
			}
			if n, _ := q.Size(ctx, "ClientY"); n != 1 {
				t.Fatalf("ClientY size=%d", n)
			}
		})
	}
}

func TestQueueIDsIncrease(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore())
	a, _ := q.Put(ctx, "a", "k", Payload{})
	b, _ := q.Put(ctx, "b", "k", Payload{})
	if a.ID != "1" || b.ID != "2" {
		t.Fatalf("ids %s %s", a.ID, b.ID)
	}
}

func TestAcknowledgeMatchHead(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore())
	first, _ := q.Put(ctx, "ClientX", "k", Payload{Message: "one"})
	second, _ := q.Put(ctx, "ClientX", "k", Payload{Message: "two"})

	if _, _, err := q.Acknowledge(ctx, "ClientX", second.ID); !errors.Is(err, protocol.ErrMessageNotFound) {
		t.Fatalf("ack of non-head: %v", err)
	}
	if n, _ := q.Size(ctx, "ClientX"); n != 2 {
		t.Fatalf("non-head ack removed a record: size=%d", n)
	}
	if _, _, err := q.Acknowledge(ctx, "ClientX", first.ID); err != nil {
		t.Fatalf("ack head: %v", err)
	}
	if _, _, err := q.Acknowledge(ctx, "nobody", "1"); !errors.Is(err, protocol.ErrMessageNotFound) {
		t.Fatalf("ack on empty queue: %v", err)
	}
}

func TestAcknowledgeHeadPolicy(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore(), WithAckPolicy(AckHead))
	first, _ := q.Put(ctx, "ClientX", "k", Payload{Message: "one"})
	_, _ = q.Put(ctx, "ClientX", "k", Payload{Message: "two"})
	removed, _, err := q.Acknowledge(ctx, "ClientX", "999")
	if err != nil {
		t.Fatalf("head policy ack: %v", err)
	}
	if removed.ID != first.ID || removed.Message != "one" {
		t.Fatalf("removed=%+v want id %s", removed, first.ID)
	}
	rec, n, err := q.Get(ctx, "ClientX")
	if err != nil || rec.Message != "two" || n != 1 {
		t.Fatalf("after head ack: %+v size=%d err=%v", rec, n, err)
	}
}

func TestParseAckPolicy(t *testing.T) {
	cases := map[string]AckPolicy{"": AckMatchHead, "match-head": AckMatchHead, "HEAD": AckHead}
	for in, want := range cases {
		got, err := ParseAckPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseAckPolicy(%q)=%s err=%v", in, got, err)
		}
	}
	if _, err := ParseAckPolicy("tail"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestRedisStorePayloadSurvives(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	q := New(NewRedisStore(client))
	data := []byte(`<domain:trnData xmlns:domain="urn:ietf:params:xml:ns:domain-1.0"/>`)
	if _, err := q.Put(ctx, "ClientX", "transfer", Payload{Message: "Transfer requested.", Namespace: "urn:ietf:params:xml:ns:domain-1.0", Data: data}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := client.lists["eppkit:pollq:q:ClientX"]; !ok {
		t.Fatalf("default key prefix not used: %v", client.lists)
	}

	// A second store over the same client sees the record.
	reopened := New(NewRedisStore(client))
	rec, _, err := reopened.Get(ctx, "ClientX")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(rec.Data) != string(data) || rec.Namespace == "" {
		t.Fatalf("payload lost: %+v", rec)
	}
}

func TestRedisStoreErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.fail = errors.New("connection refused")
	q := New(NewRedisStore(client))
	if _, err := q.Put(ctx, "ClientX", "k", Payload{}); err == nil {
		t.Fatalf("expected put error")
	}

	store := NewRedisStore(newFakeRedis())
	_ = store.Close()
	if _, err := store.NextID(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("closed store: %v", err)
	}
}

func TestQueueConcurrentAcks(t *testing.T) {
	ctx := context.Background()
	q := New(NewMemoryStore(), WithAckPolicy(AckHead))
	const n = 50
	for i := 0; i < n; i++ {
		if _, err := q.Put(ctx, "ClientX", "k", Payload{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	acked := 0
	for i := 0; i < n*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := q.Acknowledge(ctx, "ClientX", ""); err == nil {
				mu.Lock()
				acked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if acked != n {
		t.Fatalf("acked %d records, want %d", acked, n)
	}
}

package pollq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis commands RedisStore uses.
// *redis.Client and *redis.ClusterClient satisfy it.
type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LIndex(ctx context.Context, key string, index int64) *redis.StringCmd
	LPop(ctx context.Context, key string) *redis.StringCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// RedisStore keeps one list per recipient, records JSON-encoded, so queues
// survive server restarts and can be shared by several server processes.
type RedisStore struct {
	client RedisClient
	prefix string
	closed atomic.Bool
}

type RedisStoreOption func(*RedisStore)

// WithRedisPrefix sets the key prefix. Default: "eppkit:pollq:".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(r *RedisStore) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func NewRedisStore(client RedisClient, opts ...RedisStoreOption) *RedisStore {
	r := &RedisStore{client: client, prefix: "eppkit:pollq:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) queueKey(recipient string) string {
	return r.prefix + "q:" + recipient
}

func (r *RedisStore) seqKey() string {
	return r.prefix + "seq"
}

func (r *RedisStore) NextID(ctx context.Context) (uint64, error) {
	if r.closed.Load() {
		return 0, ErrStoreClosed
	}
	id, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *RedisStore) Append(ctx context.Context, rec Record) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pollq: encode record: %w", err)
	}
	return r.client.RPush(ctx, r.queueKey(rec.Recipient), b).Err()
}

func (r *RedisStore) Head(ctx context.Context, recipient string) (Record, bool, error) {
	if r.closed.Load() {
		return Record{}, false, ErrStoreClosed
	}
	return decodeRecord(r.client.LIndex(ctx, r.queueKey(recipient), 0).Bytes())
}

func (r *RedisStore) RemoveHead(ctx context.Context, recipient string) (Record, bool, error) {
	if r.closed.Load() {
		return Record{}, false, ErrStoreClosed
	}
	return decodeRecord(r.client.LPop(ctx, r.queueKey(recipient)).Bytes())
}

func (r *RedisStore) Len(ctx context.Context, recipient string) (int, error) {
	if r.closed.Load() {
		return 0, ErrStoreClosed
	}
	n, err := r.client.LLen(ctx, r.queueKey(recipient)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close marks the store closed. The client is left open; callers may share it.
func (r *RedisStore) Close() error {
	r.closed.Store(true)
	return nil
}

func decodeRecord(b []byte, err error) (Record, bool, error) {
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, false, fmt.Errorf("pollq: decode record: %w", err)
	}
	return rec, true, nil
}

package server

import (
	"context"

	logs "github.com/danmuck/eppkit/internal/logging"
	"github.com/danmuck/eppkit/internal/observability"
	"github.com/danmuck/eppkit/internal/pollq"
	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// Notifier queues service messages for registrars. Payload components are
// encoded once at enqueue time and replayed verbatim on poll.
type Notifier struct {
	queue *pollq.Queue
	reg   *codec.Registry
}

func NewNotifier(queue *pollq.Queue, reg *codec.Registry) *Notifier {
	return &Notifier{queue: queue, reg: reg}
}

func (n *Notifier) Queue() *pollq.Queue { return n.queue }

// Notify queues msg for recipient. data may be nil.
func (n *Notifier) Notify(ctx context.Context, recipient, kind, msg string, data codec.Component) (pollq.Record, error) {
	payload := pollq.Payload{Message: msg}
	if data != nil {
		raw, err := n.reg.EncodeComponent(data)
		if err != nil {
			return pollq.Record{}, err
		}
		payload.Namespace = data.Namespace()
		payload.Data = raw
	}
	rec, err := n.queue.Put(ctx, recipient, kind, payload)
	if err != nil {
		logs.Errf("server.Notifier.Notify recipient=%q kind=%q err=%v", recipient, kind, err)
		return pollq.Record{}, err
	}
	observability.RecordPollEnqueued(kind)
	return rec, nil
}

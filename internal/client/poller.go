package client

import (
	"context"

	"github.com/danmuck/eppkit/internal/protocol/codec"
)

// Poller reads and acknowledges queued service messages.
type Poller struct {
	sender Sender
}

func NewPoller(s Sender) *Poller {
	return &Poller{sender: s}
}

// Message is the head of the queue as reported by a poll request.
type Message struct {
	ID        string
	Remaining int
	Text      string
	Data      codec.Component
	Response  *codec.Response
}

// Next requests the head message. ok is false when the queue is empty (1300).
func (p *Poller) Next(ctx context.Context) (msg Message, ok bool, err error) {
	resp, err := p.sender.Send(ctx, &codec.Command{Verb: codec.VerbPoll, Payload: &codec.Poll{Op: codec.PollRequest}})
	if err != nil {
		return Message{}, false, err
	}
	if resp.Code() == codec.CodeOKNoMessages || resp.MsgQ == nil {
		return Message{Response: resp}, false, nil
	}
	return Message{
		ID:        resp.MsgQ.ID,
		Remaining: resp.MsgQ.Count,
		Text:      resp.MsgQ.Msg,
		Data:      resp.Data,
		Response:  resp,
	}, true, nil
}

// Ack dequeues id and returns the remaining count.
func (p *Poller) Ack(ctx context.Context, id string) (int, error) {
	resp, err := p.sender.Send(ctx, &codec.Command{Verb: codec.VerbPoll, Payload: &codec.Poll{Op: codec.PollAck, MessageID: id}})
	if err != nil {
		return 0, err
	}
	if resp.MsgQ == nil {
		return 0, nil
	}
	return resp.MsgQ.Count, nil
}

// Drain calls fn for each queued message and acknowledges it when fn
// returns nil. It stops at the first error or when the queue is empty.
func (p *Poller) Drain(ctx context.Context, fn func(Message) error) (int, error) {
	n := 0
	for {
		msg, ok, err := p.Next(ctx)
		if err != nil || !ok {
			return n, err
		}
		if err := fn(msg); err != nil {
			return n, err
		}
		if _, err := p.Ack(ctx, msg.ID); err != nil {
			return n, err
		}
		n++
	}
}

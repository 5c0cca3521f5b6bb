package plugin

import (
	"context"
	"log/slog"

	"github.com/starford/questline/internal/apperr"
)

// DefaultInboxSize is the number of envelopes that may wait for the worker.
const DefaultInboxSize = 64

// Inbox delivers inbound envelopes to a Session one at a time, in the order
// they were enqueued, whichever transport they came from.
type Inbox struct {
	session *Session
	queue   chan []byte
	done    chan struct{}
}

// NewInbox returns an inbox for s. Nothing is handled until Run is called.
func NewInbox(s *Session, size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{
		session: s,
		queue:   make(chan []byte, size),
		done:    make(chan struct{}),
	}
}

// Enqueue checks the envelope and queues it. It blocks while the queue is
// full, until ctx is done or the inbox stops.
func (in *Inbox) Enqueue(ctx context.Context, raw []byte) (Type, error) {
	typ, err := Peek(raw)
	if err != nil {
		return "", err
	}
	select {
	case <-in.done:
		return "", apperr.ErrStopped
	default:
	}
	select {
	case in.queue <- raw:
		return typ, nil
	case <-in.done:
		return "", apperr.ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run handles queued envelopes until ctx is done. Handler errors are logged;
// envelopes still queued at shutdown are dropped.
func (in *Inbox) Run(ctx context.Context) error {
	defer close(in.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw := <-in.queue:
			if err := in.session.Handle(ctx, raw); err != nil {
				in.session.logger.Error("plugin: handle message failed", slog.String("error", err.Error()))
			}
		}
	}
}

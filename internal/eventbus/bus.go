package eventbus

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabterm/schema"
)

// ErrNoSubscriber is returned when the page has no live queue.
var ErrNoSubscriber = errors.New("page has no subscriber")

// Event is a queued page event. Events sent with Request carry an ack the
// consumer must complete with Done.
type Event struct {
	schema.PageEvent
	ack chan error
}

// Done reports the outcome of handling a requested event. It is a no-op for
// events without an ack.
func (e Event) Done(err error) {
	if e.ack == nil {
		return
	}
	select {
	case e.ack <- err:
	default:
	}
}

type subscription struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Bus delivers page events to per-page queues. Each page has at most one
// queue; a page's events are consumed one at a time by its owner.
type Bus struct {
	mu    sync.RWMutex
	subs  map[schema.PageID]*subscription
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.PageID]*subscription),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers the queue of a page and returns it with a cancel
// func. A second Subscribe for the same page replaces the first. The queue
// is never closed; owners stop reading once they cancel.
func (b *Bus) Subscribe(pageID schema.PageID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscription{
		ch:   make(chan Event, b.depth),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	previous := b.subs[pageID]
	b.subs[pageID] = sub
	count := len(b.subs)
	b.mu.Unlock()
	if previous != nil {
		previous.stop()
	}
	if b.log != nil {
		b.log.With("page", pageID).Debug("eventbus subscribe", "subs", count)
	}
	return sub.ch, func() {
		b.mu.Lock()
		if b.subs[pageID] == sub {
			delete(b.subs, pageID)
		}
		b.mu.Unlock()
		sub.stop()
		if b.log != nil {
			b.log.With("page", pageID).Debug("eventbus unsubscribe")
		}
	}
}

// Subscribers returns the number of live page queues.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Send enqueues event on the page queue, waiting for room.
func (b *Bus) Send(ctx context.Context, pageID schema.PageID, event schema.PageEvent) error {
	_, err := b.enqueue(ctx, pageID, Event{PageEvent: event})
	return err
}

// Request enqueues event and waits until the page has handled it,
// returning the handler's error.
func (b *Bus) Request(ctx context.Context, pageID schema.PageID, event schema.PageEvent) error {
	ack := make(chan error, 1)
	sub, err := b.enqueue(ctx, pageID, Event{PageEvent: event, ack: ack})
	if err != nil {
		return err
	}
	select {
	case err := <-ack:
		return err
	case <-sub.done:
		// The consumer may have handled the event right before stopping.
		select {
		case err := <-ack:
			return err
		default:
			return ErrNoSubscriber
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) enqueue(ctx context.Context, pageID schema.PageID, event Event) (*subscription, error) {
	if b == nil {
		return nil, ErrNoSubscriber
	}
	b.mu.RLock()
	sub := b.subs[pageID]
	b.mu.RUnlock()
	if sub == nil {
		return nil, ErrNoSubscriber
	}
	select {
	case <-sub.done:
		return nil, ErrNoSubscriber
	default:
	}
	select {
	case sub.ch <- event:
		return sub, nil
	case <-sub.done:
		return nil, ErrNoSubscriber
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnTabActivated broadcasts a tab activation to every page without
// blocking and returns the number of queues reached. Pages whose queue is
// full miss the event.
func (b *Bus) OnTabActivated(event schema.TabActivatedEvent) int {
	if b == nil {
		return 0
	}
	activated := event
	queued := Event{PageEvent: schema.PageEvent{Type: schema.PageEventTabActivated, TabActivated: &activated}}
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	delivered, dropped := 0, 0
	for _, sub := range subs {
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.ch <- queued:
			delivered++
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.With("tab", int(event.TabID), "window", int(event.WindowID)).Warn("eventbus dropped", "count", dropped)
	}
	return delivered
}

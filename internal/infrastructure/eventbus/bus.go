package eventbus

import (
	"context"
	"sync"
	"time"
)

const (
	defaultRingSize       = 100
	defaultSubscriberSize = 64
	heartbeatInterval     = 30 * time.Second
)

// Subscriber receives events pushed by the Bus. Write returns an error when
// the underlying transport (typically an SSE response writer) has gone
// away; a failing Subscriber is evicted on its next publish.
type Subscriber interface {
	Write(Event) error
}

// subscriberHandle pairs a Subscriber with its own bounded mailbox and
// dispatch goroutine, so one slow client can't block publishers or other
// subscribers.
type subscriberHandle struct {
	id      uint64
	sub     Subscriber
	mailbox chan Event
	done    chan struct{}
}

// Bus is the in-process fan-out hub described by §4.11. The zero value is
// not usable; use New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriberHandle
	nextID      uint64

	ring     []Event
	ringSize int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Bus and starts its heartbeat loop. Call Close to stop it.
func New() *Bus {
	b := &Bus{
		subscribers: make(map[uint64]*subscriberHandle),
		ringSize:    defaultRingSize,
		stopCh:      make(chan struct{}),
	}
	b.wg.Add(1)
	go b.heartbeatLoop()
	return b
}

// Subscribe registers sub and immediately replays the ring buffer to it
// (§4.11 "new subscribers receive the buffer"). The returned unsubscribe
// func must be called when the caller's stream ends.
func (b *Bus) Subscribe(sub Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	handle := &subscriberHandle{
		id:      id,
		sub:     sub,
		mailbox: make(chan Event, defaultSubscriberSize),
		done:    make(chan struct{}),
	}
	b.subscribers[id] = handle
	replay := append([]Event(nil), b.ring...)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.dispatchLoop(handle)

	for _, ev := range replay {
		handle.mailbox <- ev
	}

	return func() { b.evict(id) }
}

// Publish fans ev out to every subscriber's mailbox (non-blocking: a full
// mailbox drops the event rather than stalling the publisher) and appends
// it to the ring buffer unless it is a high-rate progress event.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	if !ev.isProgress() {
		b.ring = append(b.ring, ev)
		if len(b.ring) > b.ringSize {
			b.ring = b.ring[len(b.ring)-b.ringSize:]
		}
	}
	handles := make([]*subscriberHandle, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handles = append(handles, h)
	}
	b.mu.Unlock()

	for _, h := range handles {
		select {
		case h.mailbox <- ev:
		default:
			// Mailbox full: this subscriber is falling behind. Drop the
			// event rather than block the publisher; the heartbeat loop
			// will still detect a genuinely dead connection.
		}
	}
}

// dispatchLoop delivers one subscriber's mailbox to its Write method,
// evicting on the first write error.
func (b *Bus) dispatchLoop(h *subscriberHandle) {
	defer b.wg.Done()
	for {
		select {
		case ev, ok := <-h.mailbox:
			if !ok {
				return
			}
			if err := h.sub.Write(ev); err != nil {
				b.evict(h.id)
				return
			}
		case <-h.done:
			return
		}
	}
}

func (b *Bus) evict(id uint64) {
	b.mu.Lock()
	h, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	if ok {
		close(h.done)
	}
}

// heartbeatLoop publishes a heartbeat event every 30s so subscribers (and
// intermediating proxies) can detect a silently dead bus versus an
// idle-but-alive one.
func (b *Bus) heartbeatLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Publish(Event{Kind: "heartbeat", Category: CategoryHeartbeat})
		case <-b.stopCh:
			return
		}
	}
}

// SubscriberCount reports the current number of live subscribers, used by
// the admin dashboard.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close stops the heartbeat loop and all dispatch goroutines.
func (b *Bus) Close(ctx context.Context) error {
	close(b.stopCh)
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.evict(id)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	events   []Event
	failFrom int // fail starting from the Nth Write call (0 = never)
	calls    int
}

func (r *recordingSubscriber) Write(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failFrom != 0 && r.calls >= r.failFrom {
		return fmt.Errorf("simulated write failure")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSubscriber) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	sub := &recordingSubscriber{}
	unsub := b.Subscribe(sub)
	defer unsub()

	b.Publish(Event{Kind: KindUploadQueued, VideoID: "v1"})

	waitFor(t, time.Second, func() bool { return len(sub.snapshot()) == 1 })
}

func TestBus_NewSubscriberReceivesRingBufferReplay(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	b.Publish(Event{Kind: KindUploadQueued, VideoID: "v1"})
	b.Publish(Event{Kind: KindUploadComplete, VideoID: "v1"})

	sub := &recordingSubscriber{}
	unsub := b.Subscribe(sub)
	defer unsub()

	waitFor(t, time.Second, func() bool { return len(sub.snapshot()) == 2 })
}

func TestBus_ProgressEventsExcludedFromRingBuffer(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	b.Publish(Event{Kind: KindUploadProgress, VideoID: "v1", Progress: 42})

	sub := &recordingSubscriber{}
	unsub := b.Subscribe(sub)
	defer unsub()

	// Publish a marker event so we know delivery would have happened by now.
	b.Publish(Event{Kind: KindUploadComplete, VideoID: "v1"})
	waitFor(t, time.Second, func() bool { return len(sub.snapshot()) >= 1 })

	for _, ev := range sub.snapshot() {
		if ev.Kind == KindUploadProgress {
			t.Fatal("expected progress event not to be replayed from the ring buffer")
		}
	}
}

func TestBus_RingBufferBoundedAtDefaultSize(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	for i := 0; i < defaultRingSize+20; i++ {
		b.Publish(Event{Kind: KindUploadQueued, VideoID: "v"})
	}

	b.mu.Lock()
	n := len(b.ring)
	b.mu.Unlock()
	if n != defaultRingSize {
		t.Fatalf("expected ring buffer capped at %d, got %d", defaultRingSize, n)
	}
}

func TestBus_WriteErrorEvictsSubscriber(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	sub := &recordingSubscriber{failFrom: 1}
	b.Subscribe(sub)

	b.Publish(Event{Kind: KindUploadQueued, VideoID: "v1"})

	waitFor(t, time.Second, func() bool { return b.SubscriberCount() == 0 })
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	sub := &recordingSubscriber{}
	unsub := b.Subscribe(sub)
	unsub()

	waitFor(t, time.Second, func() bool { return b.SubscriberCount() == 0 })

	b.Publish(Event{Kind: KindUploadQueued, VideoID: "v1"})
	time.Sleep(10 * time.Millisecond)
	if len(sub.snapshot()) != 0 {
		t.Fatal("expected no delivery after unsubscribe")
	}
}

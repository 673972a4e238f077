package eventbus

import (
	"context"
	"log/slog"

	"github.com/kestrelhq/scrapegate/internal/domain/repository"
)

func toEvent(ev repository.LifecycleEvent) Event {
	category := CategoryLog
	switch ev.Category {
	case "download":
		category = CategoryDownload
	case "upload":
		category = CategoryUpload
	case "queue":
		category = CategoryQueue
	}
	return Event{
		Kind:     ev.Kind,
		Category: category,
		VideoID:  ev.VideoID,
		Message:  ev.Message,
		Progress: ev.Progress,
		Data:     ev.Data,
	}
}

// BusAdapter exposes a process-local Bus as a repository.EventPublisher,
// for services (cmd/gateway) that keep their own subscribers in-process.
type BusAdapter struct {
	bus *Bus
}

// NewBusAdapter wraps bus.
func NewBusAdapter(bus *Bus) *BusAdapter {
	return &BusAdapter{bus: bus}
}

var _ repository.EventPublisher = (*BusAdapter)(nil)

func (a *BusAdapter) Publish(ev repository.LifecycleEvent) {
	a.bus.Publish(toEvent(ev))
}

// RelayAdapter exposes a RedisRelay as a repository.EventPublisher, for
// cmd/worker, which has no local SSE subscribers and must forward lifecycle
// events to the gateway process over Redis.
type RelayAdapter struct {
	relay  *RedisRelay
	logger *slog.Logger
}

// NewRelayAdapter wraps relay.
func NewRelayAdapter(relay *RedisRelay, logger *slog.Logger) *RelayAdapter {
	return &RelayAdapter{relay: relay, logger: logger}
}

var _ repository.EventPublisher = (*RelayAdapter)(nil)

func (a *RelayAdapter) Publish(ev repository.LifecycleEvent) {
	if err := a.relay.Publish(context.Background(), toEvent(ev)); err != nil && a.logger != nil {
		a.logger.Warn("failed to relay lifecycle event", "kind", ev.Kind, "error", err)
	}
}

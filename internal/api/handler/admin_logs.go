package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kestrelhq/scrapegate/internal/infrastructure/eventbus"
)

// LogsHandler streams the C11 event bus over SSE for the admin live-log
// view (§4.11, §6.2 "/logs/stream").
type LogsHandler struct {
	bus *eventbus.Bus
}

func NewLogsHandler(bus *eventbus.Bus) *LogsHandler {
	return &LogsHandler{bus: bus}
}

// sseSubscriber adapts an http.ResponseWriter into an eventbus.Subscriber,
// writing one "data: <json>\n\n" frame per event and flushing immediately
// so the browser's EventSource sees it without buffering delay.
type sseSubscriber struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSubscriber) Write(ev eventbus.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", body); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Stream handles GET /apis/admin/v1/logs/stream.
func (h *LogsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming unsupported", "streaming_unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	sub := &sseSubscriber{w: w, flusher: flusher}
	unsubscribe := h.bus.Subscribe(sub)
	defer unsubscribe()

	<-r.Context().Done()
}

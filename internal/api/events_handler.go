package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/lexstat/internal/events"
)

// handleEvents handles GET /events as a Server-Sent Events stream.
// Clients may replay missed events by sending a Last-Event-ID header.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var lastID int64
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			lastID = id
		}
	}

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	// Replay the buffered backlog before streaming live events. Subscribing
	// first means an event arriving mid-replay is delivered twice at worst,
	// never dropped; clients dedupe on the event ID.
	for _, ev := range s.hub.SnapshotSince(lastID) {
		writeSSE(w, ev)
		lastID = ev.ID
	}
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if ev.ID <= lastID {
				continue
			}
			writeSSE(w, ev)
			lastID = ev.ID
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) {
	fmt.Fprintf(w, "id: %d\n", ev.ID)
	fmt.Fprintf(w, "event: %s\n", ev.Type)
	fmt.Fprintf(w, "data: %s\n\n", ev.Data)
}

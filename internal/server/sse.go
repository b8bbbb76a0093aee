package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseReplayCapacity is how many recent events are retained for clients
	// reconnecting with Last-Event-ID.
	sseReplayCapacity = 512

	sseKeepaliveInterval = 15 * time.Second
	sseClientBuffer      = 64
)

// sseEvent is one broadcast, as stored for replay and sent to clients.
type sseEvent struct {
	ID         uint64
	Topic      string
	ManifestID int64
	Data       []byte
}

// sseFilter narrows a stream. Zero values match everything.
type sseFilter struct {
	topics     []string
	manifestID int64
}

func (f sseFilter) matches(evt *sseEvent) bool {
	if f.manifestID != 0 && evt.ManifestID != f.manifestID {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, pattern := range f.topics {
		if matchTopicPattern(pattern, evt.Topic) {
			return true
		}
	}
	return false
}

type sseClient struct {
	filter sseFilter
	ch     chan *sseEvent
}

// sseHub fans recorded events out to connected dashboards. Slow clients
// lose events rather than stall the scan path.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	lastID  uint64
	recent  []*sseEvent // oldest first, at most sseReplayCapacity
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

func (h *sseHub) broadcast(topic string, manifestID int64, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := &sseEvent{ID: h.lastID, Topic: topic, ManifestID: manifestID, Data: payload}
	if len(h.recent) == sseReplayCapacity {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:sseReplayCapacity-1]
	}
	h.recent = append(h.recent, evt)

	for c := range h.clients {
		if !c.filter.matches(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
}

func (h *sseHub) subscribe(f sseFilter) *sseClient {
	c := &sseClient{filter: f, ch: make(chan *sseEvent, sseClientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *sseHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// eventsSince returns retained events newer than lastID, oldest first.
func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := len(h.recent)
	for i > 0 && h.recent[i-1].ID > lastID {
		i--
	}
	out := make([]*sseEvent, len(h.recent)-i)
	copy(out, h.recent[i:])
	return out
}

// matchTopicPattern matches a dot-separated topic against a NATS-style
// pattern: "*" matches one segment and a trailing ">" matches the rest.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(top)
		}
		if i >= len(top) || (p != "*" && p != top[i]) {
			return false
		}
	}
	return len(pat) == len(top)
}

// handleEventStream handles GET /v1/events/stream.
// Query params: topics (comma-separated patterns), manifest_id.
func (s *CrossdockServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var f sseFilter
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.topics = append(f.topics, t)
		}
	}
	if v := r.URL.Query().Get("manifest_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid manifest_id: "+v)
			return
		}
		f.manifestID = id
	}

	client := s.sseHub.subscribe(f)
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if lastID, err := strconv.ParseUint(v, 10, 64); err == nil {
			for _, evt := range s.sseHub.eventsSince(lastID) {
				if f.matches(evt) {
					writeSSEEvent(w, evt)
				}
			}
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}

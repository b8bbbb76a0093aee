package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/events"
)

func TestSSEHub_BroadcastAndReceive(t *testing.T) {
	hub := newSSEHub()
	client := hub.subscribe(sseFilter{})
	defer hub.unsubscribe(client)

	hub.broadcast(events.TopicVolumeDispatched, 7, []byte(`{"key":"VOL-1"}`))

	select {
	case evt := <-client.ch:
		if evt.Topic != events.TopicVolumeDispatched || evt.ManifestID != 7 || evt.ID != 1 {
			t.Fatalf("event = %+v", evt)
		}
		if string(evt.Data) != `{"key":"VOL-1"}` {
			t.Fatalf("data = %s", evt.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSSEFilter(t *testing.T) {
	evt := &sseEvent{Topic: events.TopicVolumeReceived, ManifestID: 3}
	for _, tc := range []struct {
		name   string
		filter sseFilter
		want   bool
	}{
		{"empty", sseFilter{}, true},
		{"topic", sseFilter{topics: []string{"crossdock.volume.*"}}, true},
		{"other topic", sseFilter{topics: []string{"crossdock.manifest.*"}}, false},
		{"any of topics", sseFilter{topics: []string{"crossdock.manifest.*", events.TopicVolumeReceived}}, true},
		{"manifest", sseFilter{manifestID: 3}, true},
		{"other manifest", sseFilter{manifestID: 4}, false},
		{"both", sseFilter{topics: []string{events.TopicAll}, manifestID: 3}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.matches(evt); got != tc.want {
				t.Fatalf("matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := newSSEHub()
	client := hub.subscribe(sseFilter{})
	hub.unsubscribe(client)
	if hub.clientCount() != 0 {
		t.Fatalf("clients = %d", hub.clientCount())
	}

	hub.broadcast(events.TopicManifestOpened, 1, []byte(`{}`))
	select {
	case <-client.ch:
		t.Fatal("should not receive events after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHub_SlowClientDropsEvents(t *testing.T) {
	hub := newSSEHub()
	client := hub.subscribe(sseFilter{})
	defer hub.unsubscribe(client)

	done := make(chan struct{})
	go func() {
		for range sseClientBuffer + 10 {
			hub.broadcast(events.TopicVolumeDispatched, 1, []byte(`{}`))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	if len(client.ch) != sseClientBuffer {
		t.Fatalf("buffered = %d, want %d", len(client.ch), sseClientBuffer)
	}
}

func TestSSEHub_EventsSince(t *testing.T) {
	hub := newSSEHub()
	if got := hub.eventsSince(0); len(got) != 0 {
		t.Fatalf("empty hub returned %d events", len(got))
	}
	for range 5 {
		hub.broadcast(events.TopicVolumeDispatched, 1, []byte(`{}`))
	}
	evts := hub.eventsSince(2)
	if len(evts) != 3 || evts[0].ID != 3 || evts[2].ID != 5 {
		t.Fatalf("events = %+v", evts)
	}
	if got := hub.eventsSince(5); len(got) != 0 {
		t.Fatalf("eventsSince(last) = %d", len(got))
	}
}

func TestSSEHub_ReplayCapacity(t *testing.T) {
	hub := newSSEHub()
	for range sseReplayCapacity + 100 {
		hub.broadcast(events.TopicVolumeDispatched, 1, []byte(`{}`))
	}
	evts := hub.eventsSince(0)
	if len(evts) != sseReplayCapacity {
		t.Fatalf("retained %d, want %d", len(evts), sseReplayCapacity)
	}
	if evts[0].ID != 101 {
		t.Fatalf("oldest id = %d, want 101", evts[0].ID)
	}
}

func TestMatchTopicPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"crossdock.volume.received", "crossdock.volume.received", true},
		{"crossdock.volume.received", "crossdock.volume.dispatched", false},
		{"crossdock.volume.*", "crossdock.volume.dispatched", true},
		{"crossdock.volume.*", "crossdock.manifest.closed", false},
		{"crossdock.>", "crossdock.manifest.opened", true},
		{"crossdock.>", "crossdock", false},
		{"crossdock.>", "other.topic", false},
		{"*.*.*", "crossdock.volume.received", true},
		{"*.*.*", "crossdock.volume", false},
	} {
		t.Run(tc.pattern+"_"+tc.topic, func(t *testing.T) {
			if got := matchTopicPattern(tc.pattern, tc.topic); got != tc.want {
				t.Fatalf("matchTopicPattern(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
			}
		})
	}
}

// streamFor runs the SSE handler until stop is called and returns the body.
func streamFor(t *testing.T, h http.Handler, req *http.Request, during func()) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, req.WithContext(ctx))
	}()
	time.Sleep(50 * time.Millisecond)
	during()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	return rec.Body.String()
}

func TestHandleEventStream_FromScans(t *testing.T) {
	_, _, h := newTestServer()
	sid := login(t, h, "ana@example.com", "reserva")

	req := httptest.NewRequest("GET", "/v1/events/stream?topics=crossdock.volume.*", nil)
	body := streamFor(t, h, req, func() {
		doJSON(t, h, "POST", "/v1/sessions/"+sid+"/dispatch/open", nil)
		doJSON(t, h, "POST", "/v1/sessions/"+sid+"/dispatch/scan", map[string]string{"key": "VOL-5555"})
	})

	if strings.Contains(body, events.TopicManifestOpened) {
		t.Errorf("manifest event should be filtered:\n%s", body)
	}
	if !strings.Contains(body, "event:"+events.TopicVolumeDispatched) || !strings.Contains(body, "VOL-5555") {
		t.Errorf("expected dispatched event:\n%s", body)
	}
}

func TestHandleEventStream_ManifestFilter(t *testing.T) {
	srv, _, h := newTestServer()
	req := httptest.NewRequest("GET", "/v1/events/stream?manifest_id=2", nil)
	body := streamFor(t, h, req, func() {
		srv.sseHub.broadcast(events.TopicVolumeDispatched, 1, []byte(`{"n":1}`))
		srv.sseHub.broadcast(events.TopicVolumeDispatched, 2, []byte(`{"n":2}`))
	})
	if strings.Contains(body, `{"n":1}`) || !strings.Contains(body, `{"n":2}`) {
		t.Errorf("body:\n%s", body)
	}
}

func TestHandleEventStream_BadManifestID(t *testing.T) {
	_, _, h := newTestServer()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/events/stream?manifest_id=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleEventStream_LastEventID(t *testing.T) {
	srv, _, h := newTestServer()
	srv.sseHub.broadcast(events.TopicManifestOpened, 1, []byte(`{"n":1}`))
	srv.sseHub.broadcast(events.TopicVolumeDispatched, 1, []byte(`{"n":2}`))
	srv.sseHub.broadcast(events.TopicManifestClosed, 1, []byte(`{"n":3}`))

	req := httptest.NewRequest("GET", "/v1/events/stream", nil)
	req.Header.Set("Last-Event-ID", "1")
	body := streamFor(t, h, req, func() {})

	if strings.Contains(body, `data:{"n":1}`) {
		t.Errorf("event 1 should be skipped:\n%s", body)
	}
	if !strings.Contains(body, `data:{"n":2}`) || !strings.Contains(body, `data:{"n":3}`) {
		t.Errorf("events 2 and 3 should replay:\n%s", body)
	}
}

func TestSSEEventFormat(t *testing.T) {
	srv, _, h := newTestServer()
	req := httptest.NewRequest("GET", "/v1/events/stream", nil)
	body := streamFor(t, h, req, func() {
		srv.sseHub.broadcast(events.TopicManifestClosed, 9, []byte(`{"volume_count":3}`))
	})

	var id, event, data string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}
	if id != "1" || event != events.TopicManifestClosed || data != `{"volume_count":3}` {
		t.Fatalf("id=%q event=%q data=%q", id, event, data)
	}
}

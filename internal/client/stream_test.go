package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStreamEvents(t *testing.T) {
	var gotQuery, gotLastID string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotLastID = r.Header.Get("Last-Event-ID")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ":keepalive\n\n")
		fmt.Fprint(w, "id:7\nevent:crossdock.volume.dispatched\ndata:{\"key\":\"ABCD1\"}\n\n")
		fmt.Fprint(w, "id:8\nevent:crossdock.manifest.closed\ndata:{\"manifest_id\":3}\n\n")
	})
	c := newTestClient(t, h, "")

	var got []StreamEvent
	err := c.StreamEvents(context.Background(), &StreamRequest{
		Topics:      []string{"crossdock.volume.*", "crossdock.manifest.*"},
		ManifestID:  3,
		LastEventID: 6,
	}, func(e StreamEvent) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}
	if gotQuery != "manifest_id=3&topics=crossdock.volume.%2A%2Ccrossdock.manifest.%2A" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotLastID != "6" {
		t.Errorf("Last-Event-ID = %q, want 6", gotLastID)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != 7 || got[0].Topic != "crossdock.volume.dispatched" || string(got[0].Data) != `{"key":"ABCD1"}` {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].ID != 8 || got[1].Topic != "crossdock.manifest.closed" {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestStreamEventsStopsOnHandlerError(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "id:1\nevent:a\ndata:{}\n\nid:2\nevent:b\ndata:{}\n\n")
	})
	c := newTestClient(t, h, "")

	stop := errors.New("stop")
	calls := 0
	err := c.StreamEvents(context.Background(), &StreamRequest{}, func(StreamEvent) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want stop", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStreamEventsUnauthorized(t *testing.T) {
	h := &testHandler{statusCode: http.StatusUnauthorized, responseBody: `{"error":"unauthorized"}`}
	c := newTestClient(t, h, "bad")

	err := c.StreamEvents(context.Background(), &StreamRequest{}, func(StreamEvent) error { return nil })
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 APIError", err)
	}
	if h.auth != "Bearer bad" {
		t.Errorf("auth = %q", h.auth)
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/store/storetest"
)

var testNow = time.Date(2024, 6, 10, 17, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer returns a server over an in-memory store with a fixed clock.
func newTestServer() (*CrossdockServer, *storetest.Store, http.Handler) {
	ms := storetest.New()
	srv := NewCrossdockServer(ms, Options{
		Logger: quietLogger(),
		Now:    func() time.Time { return testNow },
	})
	return srv, ms, srv.NewHTTPHandler("")
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

type rejectionBody struct {
	Error  string       `json:"error"`
	Reason model.Reason `json:"reason"`
}

func login(t *testing.T, h http.Handler, identity, site string) string {
	t.Helper()
	rec := doJSON(t, h, "POST", "/v1/sessions", map[string]string{"identity": identity, "site": site})
	expectStatus(t, rec, http.StatusCreated)
	return decode[map[string]any](t, rec)["id"].(string)
}

// seedClosed stores a closed manifest from origin holding keys.
func seedClosed(ms *storetest.Store, origin model.Site, keys ...string) *model.Manifest {
	closed := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	vols := make([]model.VolumeRecord, len(keys))
	for i, k := range keys {
		vols[i] = model.VolumeRecord{Key: k, Destination: "Loja Centro"}
	}
	return ms.Seed(model.Manifest{
		OriginSite: origin,
		CreatedBy:  "ana@example.com",
		Status:     model.ManifestClosed,
		ClosedAt:   &closed,
	}, vols...)
}

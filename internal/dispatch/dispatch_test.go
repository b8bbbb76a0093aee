package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/events"
	"github.com/alfredjeanlab/crossdock/internal/inventory"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/store"
	"github.com/alfredjeanlab/crossdock/internal/store/storetest"
)

var fixedNow = time.Date(2024, 6, 10, 14, 0, 0, 0, time.FixedZone("BRT", -3*3600))

type stubResolver struct {
	calls  int
	lookup inventory.Lookup
}

func (r *stubResolver) Resolve(_ context.Context, _ string) inventory.Lookup {
	r.calls++
	return r.lookup
}

type captureNotifier struct {
	topics []string
}

func (n *captureNotifier) Notify(_ context.Context, topic string, _ int64, _ string, _ any) {
	n.topics = append(n.topics, topic)
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *storetest.Store) {
	t.Helper()
	s := storetest.New()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(s, append(base, opts...)...), s
}

func operator() *Context {
	return &Context{Identity: "ana@example.com", Site: model.SiteReserva}
}

func openManifest(t *testing.T, e *Engine, c *Context) *model.Manifest {
	t.Helper()
	m, err := e.Open(context.Background(), c, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m
}

func requireReason(t *testing.T, err error, want model.Reason) {
	t.Helper()
	rej, ok := model.AsRejection(err)
	if !ok {
		t.Fatalf("err = %v, want rejection %s", err, want)
	}
	if rej.Reason != want {
		t.Fatalf("reason = %s (%s), want %s", rej.Reason, rej.Message, want)
	}
}

func TestOpen(t *testing.T) {
	n := &captureNotifier{}
	e, s := newEngine(t, WithNotifier(n))
	c := operator()

	m, err := e.Open(context.Background(), c, "  Loja Centro ")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID == 0 || c.ActiveManifestID != m.ID {
		t.Fatalf("manifest id %d, context %d", m.ID, c.ActiveManifestID)
	}
	if m.Status != model.ManifestOpen || m.OriginSite != model.SiteReserva || m.CreatedBy != "ana@example.com" {
		t.Errorf("manifest = %+v", m)
	}
	if m.OpenedAt.Location() != time.UTC || !m.OpenedAt.Equal(fixedNow) {
		t.Errorf("opened_at = %v, want %v in UTC", m.OpenedAt, fixedNow)
	}
	if c.DefaultDestination != "Loja Centro" {
		t.Errorf("default destination = %q", c.DefaultDestination)
	}
	if got, _ := s.GetManifest(context.Background(), m.ID); got == nil {
		t.Error("manifest not persisted")
	}
	if len(n.topics) != 1 || n.topics[0] != events.TopicManifestOpened {
		t.Errorf("events = %v", n.topics)
	}
}

func TestOpen_FailsWhenAlreadyOpen(t *testing.T) {
	e, _ := newEngine(t)
	c := operator()
	first := openManifest(t, e, c)

	_, err := e.Open(context.Background(), c, "")
	requireReason(t, err, model.ReasonManifestActive)
	if c.ActiveManifestID != first.ID {
		t.Error("failed open must not replace the active manifest")
	}
}

func TestOpen_RequiresSiteAndIdentity(t *testing.T) {
	e, _ := newEngine(t)

	_, err := e.Open(context.Background(), &Context{Identity: "a@b.c", Site: "lagoa"}, "")
	requireReason(t, err, model.ReasonInvalidSite)

	_, err = e.Open(context.Background(), &Context{Identity: " ", Site: model.SitePavuna}, "")
	requireReason(t, err, model.ReasonInvalidIdentity)
}

func TestRecordVolume(t *testing.T) {
	n := &captureNotifier{}
	r := &stubResolver{lookup: inventory.Lookup{Destination: inventory.Destination{Label: "Loja Norte", Branch: "007"}, Found: true}}
	e, s := newEngine(t, WithResolver(r), WithNotifier(n))
	c := operator()
	m := openManifest(t, e, c)

	ack, err := e.RecordVolume(context.Background(), c, "  nf-000123456 ", "")
	if err != nil {
		t.Fatal(err)
	}
	if ack.Suffix != "123456" {
		t.Errorf("suffix = %q, want 123456", ack.Suffix)
	}
	if ack.Destination != "Loja Norte" || ack.Branch != "007" {
		t.Errorf("ack = %+v", ack)
	}

	vols := s.Volumes(m.ID)
	if len(vols) != 1 {
		t.Fatalf("stored %d volumes, want 1", len(vols))
	}
	v := vols[0]
	if v.Key != "NF-000123456" || v.Destination != "Loja Norte" || v.Branch != "007" {
		t.Errorf("volume = %+v", v)
	}
	if !v.DispatchedAt.Equal(fixedNow) || v.DispatchedAt.Location() != time.UTC {
		t.Errorf("dispatched_at = %v", v.DispatchedAt)
	}
	if n.topics[len(n.topics)-1] != events.TopicVolumeDispatched {
		t.Errorf("events = %v", n.topics)
	}
}

func TestRecordVolume_DuplicateRejected(t *testing.T) {
	r := &stubResolver{}
	e, s := newEngine(t, WithResolver(r))
	c := operator()
	m := openManifest(t, e, c)

	if _, err := e.RecordVolume(context.Background(), c, "nf1234", ""); err != nil {
		t.Fatal(err)
	}
	_, err := e.RecordVolume(context.Background(), c, "NF1234 ", "")
	requireReason(t, err, model.ReasonDuplicate)

	if got := len(s.Volumes(m.ID)); got != 1 {
		t.Errorf("stored %d volumes, want exactly 1", got)
	}
	if r.calls != 1 {
		t.Errorf("resolver calls = %d, duplicate should not look up", r.calls)
	}
}

func TestRecordVolume_ConstraintIsAuthoritative(t *testing.T) {
	e, s := newEngine(t)
	c := operator()
	m := openManifest(t, e, c)

	// A concurrent session inserts the same key between pre-check and insert.
	s.BeforeInsert = func(v *model.VolumeRecord) {
		s.BeforeInsert = nil
		s.ForceInsert(model.VolumeRecord{ManifestID: v.ManifestID, Key: v.Key, DispatchedAt: fixedNow})
	}
	_, err := e.RecordVolume(context.Background(), c, "NF7777", "")
	requireReason(t, err, model.ReasonDuplicate)
	if got := len(s.Volumes(m.ID)); got != 1 {
		t.Errorf("stored %d volumes, want 1", got)
	}
}

func TestRecordVolume_SameKeyInAnotherManifest(t *testing.T) {
	e, _ := newEngine(t)
	a, b := operator(), &Context{Identity: "bia@example.com", Site: model.SiteReserva}
	openManifest(t, e, a)
	openManifest(t, e, b)

	if _, err := e.RecordVolume(context.Background(), a, "NF5555", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RecordVolume(context.Background(), b, "NF5555", ""); err != nil {
		t.Errorf("key uniqueness should be scoped per manifest: %v", err)
	}
}

func TestRecordVolume_BadScans(t *testing.T) {
	r := &stubResolver{}
	e, s := newEngine(t, WithResolver(r))
	c := operator()
	m := openManifest(t, e, c)

	_, err := e.RecordVolume(context.Background(), c, "   ", "")
	requireReason(t, err, model.ReasonEmptyScan)
	_, err = e.RecordVolume(context.Background(), c, " ab1 ", "")
	requireReason(t, err, model.ReasonScanTooShort)

	if got := len(s.Volumes(m.ID)); got != 0 {
		t.Errorf("stored %d volumes, want 0", got)
	}
	if r.calls != 0 {
		t.Errorf("resolver calls = %d, want 0", r.calls)
	}
}

func TestRecordVolume_DestinationPrecedence(t *testing.T) {
	r := &stubResolver{lookup: inventory.Lookup{Destination: inventory.Destination{Label: "Looked Up"}, Found: true}}
	e, _ := newEngine(t, WithResolver(r))
	c := operator()
	if _, err := e.Open(context.Background(), c, "Default Dest"); err != nil {
		t.Fatal(err)
	}

	ack, err := e.RecordVolume(context.Background(), c, "NF0001", "")
	if err != nil {
		t.Fatal(err)
	}
	if ack.Destination != "Default Dest" {
		t.Errorf("destination = %q, want session default", ack.Destination)
	}

	ack, err = e.RecordVolume(context.Background(), c, "NF0002", " Explicit ")
	if err != nil {
		t.Fatal(err)
	}
	if ack.Destination != "Explicit" {
		t.Errorf("destination = %q, want explicit", ack.Destination)
	}
	if r.calls != 0 {
		t.Errorf("resolver calls = %d, explicit destinations skip lookup", r.calls)
	}
}

func TestRecordVolume_LookupDegradationIsSoft(t *testing.T) {
	r := &stubResolver{lookup: inventory.Lookup{Warning: "inventory unavailable"}}
	e, s := newEngine(t, WithResolver(r))
	c := operator()
	m := openManifest(t, e, c)

	ack, err := e.RecordVolume(context.Background(), c, "NF0003", "")
	if err != nil {
		t.Fatal(err)
	}
	if ack.Destination != "" || ack.Warning == "" {
		t.Errorf("ack = %+v, want empty destination with warning", ack)
	}
	if got := len(s.Volumes(m.ID)); got != 1 {
		t.Errorf("volume not recorded despite lookup failure")
	}
}

func TestRecordVolume_NoActiveManifest(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.RecordVolume(context.Background(), operator(), "NF0001", "")
	requireReason(t, err, model.ReasonNoActiveManifest)
}

func TestRecordVolume_StoreError(t *testing.T) {
	e, s := newEngine(t)
	c := operator()
	openManifest(t, e, c)

	boom := errors.New("connection reset")
	s.FailOn("InsertVolume", boom)
	_, err := e.RecordVolume(context.Background(), c, "NF0001", "")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	if _, ok := model.AsRejection(err); ok {
		t.Error("store failures are not rejections")
	}
}

func TestClose(t *testing.T) {
	n := &captureNotifier{}
	e, s := newEngine(t, WithNotifier(n))
	c := operator()
	m := openManifest(t, e, c)
	for _, k := range []string{"NF0001", "NF0002", "NF0003"} {
		if _, err := e.RecordVolume(context.Background(), c, k, ""); err != nil {
			t.Fatal(err)
		}
	}

	closed, err := e.Close(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if closed.ID != m.ID || closed.Status != model.ManifestClosed || closed.ClosedAt == nil {
		t.Fatalf("closed = %+v", closed)
	}
	if closed.VolumeCount != 3 {
		t.Errorf("volume count = %d, want 3", closed.VolumeCount)
	}
	if c.ActiveManifestID != 0 || c.PendingPrintID != m.ID {
		t.Errorf("context = %+v", c)
	}
	if n.topics[len(n.topics)-1] != events.TopicManifestClosed {
		t.Errorf("events = %v", n.topics)
	}

	// The closed manifest accepts no more volumes, whether addressed through
	// a stale context or through the cleared one.
	stale := &Context{Identity: c.Identity, Site: c.Site, ActiveManifestID: m.ID}
	_, err = e.RecordVolume(context.Background(), stale, "NF0004", "")
	requireReason(t, err, model.ReasonManifestNotOpen)
	_, err = e.RecordVolume(context.Background(), c, "NF0004", "")
	requireReason(t, err, model.ReasonNoActiveManifest)
	if got := len(s.Volumes(m.ID)); got != 3 {
		t.Errorf("stored %d volumes after close, want 3", got)
	}

	// A new manifest can be opened once the previous one is closed.
	if _, err := e.Open(context.Background(), c, ""); err != nil {
		t.Errorf("open after close: %v", err)
	}
}

func TestClose_Irreversible(t *testing.T) {
	e, _ := newEngine(t)
	c := operator()
	m := openManifest(t, e, c)
	if _, err := e.Close(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	stale := &Context{Identity: c.Identity, Site: c.Site, ActiveManifestID: m.ID}
	_, err := e.Close(context.Background(), stale)
	requireReason(t, err, model.ReasonManifestNotOpen)
	if stale.ActiveManifestID != 0 {
		t.Error("stale reference should be dropped")
	}
}

func TestClose_NoActiveManifest(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Close(context.Background(), operator())
	requireReason(t, err, model.ReasonNoActiveManifest)
}

func TestDiscard(t *testing.T) {
	e, s := newEngine(t)
	c := operator()
	m := openManifest(t, e, c)

	e.Discard(c)
	if c.ActiveManifestID != 0 {
		t.Error("discard kept the manifest reference")
	}
	got, _ := s.GetManifest(context.Background(), m.ID)
	if got.Status != model.ManifestOpen {
		t.Error("discard must not mutate the store")
	}
	if _, err := e.Open(context.Background(), c, ""); err != nil {
		t.Errorf("open after discard: %v", err)
	}
}

func TestDocument(t *testing.T) {
	e, _ := newEngine(t)
	c := operator()
	m := openManifest(t, e, c)
	for _, scan := range []struct{ key, dest string }{
		{"NFBBBB", "X"},
		{"NFAAAA", ""},
		{"NFCCCC", "X"},
	} {
		if _, err := e.RecordVolume(context.Background(), c, scan.key, scan.dest); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.Close(context.Background(), c); err != nil {
		t.Fatal(err)
	}

	doc, err := e.Document(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Responsible != "ana@example.com" || doc.OriginLabel != "CD Reserva" || doc.ClosedAt == nil {
		t.Errorf("doc header = %+v", doc)
	}
	want := []string{"NFAAAA", "NFBBBB", "NFCCCC"}
	for i, r := range doc.Rows {
		if r.Key != want[i] {
			t.Fatalf("rows = %+v, want order %v", doc.Rows, want)
		}
	}
}

func TestDocument_NotFound(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Document(context.Background(), 404)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

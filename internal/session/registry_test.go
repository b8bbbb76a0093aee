package session

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRegistry() (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)}
	r := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = clock.Now
	return r, clock
}

func TestCreate(t *testing.T) {
	r, _ := newRegistry()

	s, err := r.Create("  ana@example.com ", model.SiteReserva)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(s.ID, "op-") {
		t.Errorf("id = %q", s.ID)
	}
	if s.Identity != "ana@example.com" || s.Dispatch.Identity != "ana@example.com" {
		t.Errorf("identity not trimmed into dispatch context: %+v", s)
	}
	if s.Dispatch.Site != model.SiteReserva {
		t.Errorf("dispatch site = %q", s.Dispatch.Site)
	}

	got, err := r.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get = %v, %v", got, err)
	}
}

func TestCreate_Rejections(t *testing.T) {
	r, _ := newRegistry()

	_, err := r.Create("", model.SitePavuna)
	if rej, ok := model.AsRejection(err); !ok || rej.Reason != model.ReasonInvalidIdentity {
		t.Errorf("err = %v", err)
	}
	_, err = r.Create("a@b.c", "lagoa")
	if rej, ok := model.AsRejection(err); !ok || rej.Reason != model.ReasonInvalidSite {
		t.Errorf("err = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestGet_Unknown(t *testing.T) {
	r, _ := newRegistry()
	if _, err := r.Get("op-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	r, _ := newRegistry()
	s, _ := r.Create("ana@example.com", model.SiteReserva)
	r.Delete(s.ID)
	r.Delete(s.ID)
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("session survived delete")
	}
}

func TestList_MostRecentFirst(t *testing.T) {
	r, clock := newRegistry()
	a, _ := r.Create("a@example.com", model.SiteReserva)
	clock.Advance(time.Minute)
	b, _ := r.Create("b@example.com", model.SitePavuna)
	clock.Advance(time.Minute)
	r.Get(a.ID)

	b.Lock()
	b.Dispatch.ActiveManifestID = 42
	b.Unlock()

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List len = %d", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("order = %s, %s", list[0].ID, list[1].ID)
	}
	if list[1].ActiveManifestID != 42 || list[1].SiteLabel != "CD Pavuna" {
		t.Errorf("entry = %+v", list[1])
	}
	if list[1].IdleSecs != 60 {
		t.Errorf("idle = %v, want 60", list[1].IdleSecs)
	}
}

func TestGet_ConcurrentWithSnapshot(t *testing.T) {
	r, clock := newRegistry()
	s, _ := r.Create("ana@example.com", model.SiteReserva)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := r.Get(s.ID)
				if err != nil {
					t.Error(err)
					return
				}
				got.Lock()
				_ = got.Snapshot(clock.Now())
				got.Unlock()
				clock.Advance(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if list := r.List(); len(list) != 1 || list[0].LastSeen.IsZero() {
		t.Errorf("list = %+v", list)
	}
}

func TestSweep_EvictsIdle(t *testing.T) {
	r, clock := newRegistry()
	idle, _ := r.Create("idle@example.com", model.SiteReserva)
	clock.Advance(7 * time.Hour)
	busy, _ := r.Create("busy@example.com", model.SiteReserva)
	clock.Advance(2 * time.Hour)
	r.Get(busy.ID)

	var evicted []Entry
	n := r.sweep((&ReaperConfig{OnEvict: func(e Entry) { evicted = append(evicted, e) }}).withDefaults())
	if n != 1 {
		t.Fatalf("evicted %d sessions, want 1", n)
	}
	if len(evicted) != 1 || evicted[0].ID != idle.ID {
		t.Errorf("evicted = %+v", evicted)
	}
	if _, err := r.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Error("idle session still present")
	}
	if _, err := r.Get(busy.ID); err != nil {
		t.Error("active session evicted")
	}
}

func TestReaper_StartStop(t *testing.T) {
	r, clock := newRegistry()
	s, _ := r.Create("a@example.com", model.SiteReserva)
	clock.Advance(time.Hour)

	done := make(chan string, 1)
	r.StartReaper(&ReaperConfig{
		IdleThreshold: time.Minute,
		SweepInterval: 5 * time.Millisecond,
		OnEvict:       func(e Entry) { done <- e.ID },
	})
	defer r.Stop()

	select {
	case id := <-done:
		if id != s.ID {
			t.Errorf("evicted %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not evict the idle session")
	}
}

func TestStop_WithoutStart(t *testing.T) {
	r, _ := newRegistry()
	r.Stop()
}

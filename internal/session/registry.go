// Package session keeps the server-side state of logged-in operators.
//
// A session is created when an operator identifies with (identity, site)
// and holds that operator's dispatch context and receiving session. Nothing
// here is durable: a background reaper evicts sessions idle for longer than
// the configured threshold, and a restart forgets them all. Every committed
// scan already lives in the store, so eviction only loses working memory.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/dispatch"
	"github.com/alfredjeanlab/crossdock/internal/idgen"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/reconcile"
)

// ErrNotFound is returned for unknown or evicted session ids.
var ErrNotFound = errors.New("session not found")

// Session is one operator's working state. Callers must hold Lock while
// reading or mutating Dispatch or Receiving.
type Session struct {
	mu sync.Mutex

	ID        string
	Identity  string
	Site      model.Site
	CreatedAt time.Time

	Dispatch  dispatch.Context
	Receiving *reconcile.Session

	// lastSeen is unix nanoseconds; Registry.Get stores it without Lock.
	lastSeen atomic.Int64
}

// Lock acquires the session for a single operation.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Entry is a read-only snapshot of a session.
type Entry struct {
	ID               string     `json:"id"`
	Identity         string     `json:"identity"`
	Site             model.Site `json:"site"`
	SiteLabel        string     `json:"site_label"`
	CreatedAt        time.Time  `json:"created_at"`
	LastSeen         time.Time  `json:"last_seen"`
	IdleSecs         float64    `json:"idle_secs"`
	ActiveManifestID int64      `json:"active_manifest_id,omitempty"`
	PendingPrintID   int64      `json:"pending_print_id,omitempty"`
	Receiving        []int64    `json:"receiving,omitempty"`
	ReceivingMode    string     `json:"receiving_mode,omitempty"`
}

// LastSeen reports when the session was last fetched from the registry.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load()).UTC()
}

func (s *Session) touch(t time.Time) { s.lastSeen.Store(t.UnixNano()) }

// Snapshot returns the session state. The caller must hold Lock.
func (s *Session) Snapshot(now time.Time) Entry {
	e := Entry{
		ID:               s.ID,
		Identity:         s.Identity,
		Site:             s.Site,
		SiteLabel:        s.Site.Label(),
		CreatedAt:        s.CreatedAt,
		LastSeen:         s.LastSeen(),
		IdleSecs:         now.Sub(s.LastSeen()).Seconds(),
		ActiveManifestID: s.Dispatch.ActiveManifestID,
		PendingPrintID:   s.Dispatch.PendingPrintID,
	}
	if s.Receiving.Loaded() {
		e.Receiving = s.Receiving.ManifestIDs()
		e.ReceivingMode = string(s.Receiving.Mode())
	}
	return e
}

// Registry holds every live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	logger   *slog.Logger

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
		logger:   logger,
	}
}

// Create starts a session for an operator. Any non-empty identity is
// accepted; there is no authentication beyond trusting it.
func (r *Registry) Create(identity string, site model.Site) (*Session, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, model.Reject(model.ReasonInvalidIdentity, "identity is required")
	}
	if !site.IsValid() {
		return nil, model.Reject(model.ReasonInvalidSite, fmt.Sprintf("unknown site %q", site))
	}
	id, err := idgen.Session()
	if err != nil {
		return nil, err
	}

	now := r.now()
	s := &Session{
		ID:        id,
		Identity:  identity,
		Site:      site,
		CreatedAt: now,
		Dispatch:  dispatch.Context{Identity: identity, Site: site},
	}
	s.touch(now)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("session: operator logged in", "session_id", id, "identity", identity, "site", site)
	return s, nil
}

// Get returns a session and marks it as active.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Delete ends a session. Deleting an unknown id is not an error.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		r.logger.Info("session: operator logged out", "session_id", id)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot of all sessions, most recently active first.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	now := r.now()
	entries := make([]Entry, 0, len(all))
	for _, s := range all {
		s.Lock()
		e := s.Snapshot(now)
		s.Unlock()
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// ReaperConfig configures the background idle-session reaper.
type ReaperConfig struct {
	// IdleThreshold is how long a session may go unused before eviction.
	// Default: 8 hours.
	IdleThreshold time.Duration

	// SweepInterval is how often the reaper scans for idle sessions.
	// Default: 60 seconds.
	SweepInterval time.Duration

	// OnEvict is called for each evicted session, outside the lock.
	OnEvict func(e Entry)
}

func (cfg *ReaperConfig) withDefaults() *ReaperConfig {
	out := ReaperConfig{}
	if cfg != nil {
		out = *cfg
	}
	if out.IdleThreshold == 0 {
		out.IdleThreshold = 8 * time.Hour
	}
	if out.SweepInterval == 0 {
		out.SweepInterval = 60 * time.Second
	}
	return &out
}

// StartReaper launches a background goroutine that evicts idle sessions.
// Call Stop to shut it down.
func (r *Registry) StartReaper(cfg *ReaperConfig) {
	cfg = cfg.withDefaults()
	r.reaperStop = make(chan struct{})
	r.reaperDone = make(chan struct{})

	go r.reapLoop(cfg)
	r.logger.Info("session: reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (r *Registry) Stop() {
	if r.reaperStop != nil {
		close(r.reaperStop)
		<-r.reaperDone
		r.reaperStop = nil
		r.reaperDone = nil
	}
}

func (r *Registry) reapLoop(cfg *ReaperConfig) {
	defer close(r.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.reaperStop:
			return
		case <-ticker.C:
			r.sweep(cfg)
		}
	}
}

// sweep evicts every session idle for longer than the threshold and
// returns how many were removed.
func (r *Registry) sweep(cfg *ReaperConfig) int {
	now := r.now()

	var evicted []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastSeen()) > cfg.IdleThreshold {
			delete(r.sessions, id)
			evicted = append(evicted, s)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.Lock()
		e := s.Snapshot(now)
		s.Unlock()
		r.logger.Info("session: evicted idle operator",
			"session_id", e.ID,
			"identity", e.Identity,
			"idle", now.Sub(e.LastSeen).Round(time.Second),
			"active_manifest_id", e.ActiveManifestID)
		if cfg.OnEvict != nil {
			cfg.OnEvict(e)
		}
	}
	return len(evicted)
}

// Package storetest provides an in-memory store.Store for tests. It honours
// the same constraints as the postgres store: unique keys per manifest,
// inserts only into open manifests and receipts only on closed ones.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/store"
)

// Store is a concurrency-safe in-memory store.
type Store struct {
	mu        sync.Mutex
	manifests map[int64]*model.Manifest
	volumes   []*model.VolumeRecord
	events    []*model.Event
	nextID    int64
	nextVolID int64
	nextEvtID int64
	failures  map[string]error

	// BeforeInsert runs inside InsertVolume before the uniqueness check.
	// Tests use it to simulate a concurrent writer.
	BeforeInsert func(v *model.VolumeRecord)
}

// New returns an empty store.
func New() *Store {
	return &Store{
		manifests: make(map[int64]*model.Manifest),
		failures:  make(map[string]error),
	}
}

// FailOn makes every call to the named method return err until cleared
// with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) fail(method string) error {
	return s.failures[method]
}

// Events returns a copy of every recorded event.
func (s *Store) Events() []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Volumes returns a copy of every volume of a manifest in insertion order.
func (s *Store) Volumes(manifestID int64) []model.VolumeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.VolumeRecord
	for _, v := range s.volumes {
		if v.ManifestID == manifestID {
			out = append(out, *v)
		}
	}
	return out
}

// Seed inserts a manifest and its volumes directly, bypassing status
// checks. Keys are stored as given.
func (s *Store) Seed(m model.Manifest, vols ...model.VolumeRecord) *model.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		s.nextID++
		m.ID = s.nextID
	} else if m.ID > s.nextID {
		s.nextID = m.ID
	}
	if m.OpenedAt.IsZero() {
		m.OpenedAt = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	}
	stored := m
	s.manifests[m.ID] = &stored
	for i := range vols {
		v := vols[i]
		s.nextVolID++
		v.ID = s.nextVolID
		v.ManifestID = m.ID
		if v.DispatchedAt.IsZero() {
			v.DispatchedAt = m.OpenedAt
		}
		s.volumes = append(s.volumes, &v)
	}
	out := stored
	return &out
}

func (s *Store) CreateManifest(_ context.Context, m *model.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateManifest"); err != nil {
		return err
	}
	s.nextID++
	m.ID = s.nextID
	stored := *m
	s.manifests[m.ID] = &stored
	return nil
}

func (s *Store) summary(m *model.Manifest) *model.Manifest {
	out := *m
	out.VolumeCount, out.ReceivedCount = 0, 0
	for _, v := range s.volumes {
		if v.ManifestID == m.ID {
			out.VolumeCount++
			if v.ReceivedAt != nil {
				out.ReceivedCount++
			}
		}
	}
	return &out
}

func (s *Store) GetManifest(_ context.Context, id int64) (*model.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetManifest"); err != nil {
		return nil, err
	}
	m, ok := s.manifests[id]
	if !ok {
		return nil, fmt.Errorf("manifest %d: %w", id, store.ErrNotFound)
	}
	out := *m
	return &out, nil
}

func (s *Store) GetManifests(_ context.Context, ids []int64) ([]*model.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetManifests"); err != nil {
		return nil, err
	}
	var out []*model.Manifest
	for _, id := range ids {
		if m, ok := s.manifests[id]; ok {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListManifests(_ context.Context, f model.ManifestFilter) ([]*model.Manifest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListManifests"); err != nil {
		return nil, 0, err
	}
	var all []*model.Manifest
	for _, m := range s.manifests {
		if f.Origin != "" && m.OriginSite != f.Origin {
			continue
		}
		if len(f.Status) > 0 && !containsStatus(f.Status, m.Status) {
			continue
		}
		all = append(all, s.summary(m))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, f.Limit, f.Offset), len(all), nil
}

func containsStatus(list []model.ManifestStatus, st model.ManifestStatus) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *Store) CloseManifest(_ context.Context, id int64, closedAt time.Time) (*model.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CloseManifest"); err != nil {
		return nil, err
	}
	m, ok := s.manifests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if m.Status != model.ManifestOpen {
		return nil, store.ErrNotOpen
	}
	m.Status = model.ManifestClosed
	t := closedAt.UTC()
	m.ClosedAt = &t
	out := *m
	return &out, nil
}

func (s *Store) InsertVolume(_ context.Context, v *model.VolumeRecord) error {
	if s.BeforeInsert != nil {
		s.BeforeInsert(v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertVolume"); err != nil {
		return err
	}
	for _, existing := range s.volumes {
		if existing.ManifestID == v.ManifestID && existing.Key == v.Key {
			return store.ErrDuplicate
		}
	}
	m, ok := s.manifests[v.ManifestID]
	if !ok {
		return store.ErrNotFound
	}
	if m.Status != model.ManifestOpen {
		return store.ErrNotOpen
	}
	s.nextVolID++
	v.ID = s.nextVolID
	stored := *v
	s.volumes = append(s.volumes, &stored)
	return nil
}

// ForceInsert appends a volume without any checks.
func (s *Store) ForceInsert(v model.VolumeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextVolID++
	v.ID = s.nextVolID
	s.volumes = append(s.volumes, &v)
}

func (s *Store) GetVolume(_ context.Context, manifestID int64, key string) (*model.VolumeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetVolume"); err != nil {
		return nil, err
	}
	for _, v := range s.volumes {
		if v.ManifestID == manifestID && v.Key == key {
			out := *v
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListVolumes(_ context.Context, f model.VolumeFilter) ([]*model.VolumeRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListVolumes"); err != nil {
		return nil, 0, err
	}
	want := make(map[int64]bool, len(f.ManifestIDs))
	for _, id := range f.ManifestIDs {
		want[id] = true
	}
	var out []*model.VolumeRecord
	for _, v := range s.volumes {
		if len(want) > 0 && !want[v.ManifestID] {
			continue
		}
		switch f.Received {
		case model.ReceivedOnly:
			if v.ReceivedAt == nil {
				continue
			}
		case model.PendingOnly:
			if v.ReceivedAt != nil {
				continue
			}
		}
		c := *v
		out = append(out, &c)
	}
	sortVolumes(out, f.Sort)
	return page(out, f.Limit, f.Offset), len(out), nil
}

func sortVolumes(vols []*model.VolumeRecord, order string) {
	desc := strings.HasPrefix(order, "-")
	field := strings.TrimPrefix(order, "-")
	less := func(a, b *model.VolumeRecord) bool { return a.ID < b.ID }
	switch field {
	case "key":
		less = func(a, b *model.VolumeRecord) bool { return a.Key < b.Key }
	case "destination":
		less = func(a, b *model.VolumeRecord) bool { return a.Destination < b.Destination }
	case "dispatched_at":
		less = func(a, b *model.VolumeRecord) bool { return a.DispatchedAt.Before(b.DispatchedAt) }
	case "received_at":
		less = func(a, b *model.VolumeRecord) bool {
			if a.ReceivedAt == nil || b.ReceivedAt == nil {
				return a.ReceivedAt == nil && b.ReceivedAt != nil
			}
			return a.ReceivedAt.Before(*b.ReceivedAt)
		}
	}
	sort.SliceStable(vols, func(i, j int) bool {
		if desc {
			return less(vols[j], vols[i])
		}
		return less(vols[i], vols[j])
	})
}

func (s *Store) CountVolumes(_ context.Context, ids []int64) (map[int64]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CountVolumes"); err != nil {
		return nil, err
	}
	counts := make(map[int64]int, len(ids))
	for _, id := range ids {
		counts[id] = 0
	}
	for _, v := range s.volumes {
		if _, ok := counts[v.ManifestID]; ok {
			counts[v.ManifestID]++
		}
	}
	return counts, nil
}

func (s *Store) MarkReceived(_ context.Context, manifestID int64, key string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkReceived"); err != nil {
		return false, err
	}
	m, ok := s.manifests[manifestID]
	if !ok {
		return false, store.ErrNotFound
	}
	for _, v := range s.volumes {
		if v.ManifestID != manifestID || v.Key != key {
			continue
		}
		if m.Status != model.ManifestClosed {
			return false, store.ErrNotClosed
		}
		if v.ReceivedAt != nil {
			return false, nil
		}
		t := at.UTC()
		v.ReceivedAt = &t
		return true, nil
	}
	return false, store.ErrNotFound
}

func (s *Store) RecordEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("RecordEvent"); err != nil {
		return err
	}
	s.nextEvtID++
	e.ID = s.nextEvtID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	c := *e
	s.events = append(s.events, &c)
	return nil
}

func (s *Store) GetEvents(_ context.Context, manifestID int64) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Event
	for _, e := range s.events {
		if e.ManifestID == manifestID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// RunInTransaction runs fn against the same store; there is no rollback.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)

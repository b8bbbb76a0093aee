package reconcile

import (
	"sort"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/model"
)

// Mode selects how many manifests a session conferences at once.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Session is the transient working memory of one receiving operation. The
// store stays the source of truth; every confirmation is committed before
// the session records it. A Session is not safe for concurrent use.
type Session struct {
	mode      Mode
	site      model.Site
	ids       []int64
	owner     map[string]int64
	confirmed map[string]bool
	expected  map[int64]int
	received  map[int64]int
	loadedAt  time.Time
	complete  bool
}

func newSession(mode Mode, site model.Site, now time.Time) *Session {
	return &Session{
		mode:      mode,
		site:      site,
		owner:     make(map[string]int64),
		confirmed: make(map[string]bool),
		expected:  make(map[int64]int),
		received:  make(map[int64]int),
		loadedAt:  now,
	}
}

// Mode returns the session mode.
func (s *Session) Mode() Mode { return s.mode }

// ManifestIDs returns the loaded manifests in load order.
func (s *Session) ManifestIDs() []int64 {
	out := make([]int64, len(s.ids))
	copy(out, s.ids)
	return out
}

// Complete reports whether the last finalize found nothing missing.
func (s *Session) Complete() bool { return s.complete }

// Loaded reports whether the session still holds manifests.
func (s *Session) Loaded() bool { return s != nil && len(s.ids) > 0 }

func (s *Session) addVolume(v *model.VolumeRecord) bool {
	if _, taken := s.owner[v.Key]; taken {
		return false
	}
	s.owner[v.Key] = v.ManifestID
	s.expected[v.ManifestID]++
	if v.IsReceived() {
		s.confirmed[v.Key] = true
		s.received[v.ManifestID]++
	}
	return true
}

func (s *Session) confirm(key string, manifestID int64) {
	if s.confirmed[key] {
		return
	}
	s.confirmed[key] = true
	s.received[manifestID]++
}

// Progress is the receiving state of one manifest.
type Progress struct {
	ManifestID int64 `json:"manifest_id"`
	Expected   int   `json:"expected"`
	Confirmed  int   `json:"confirmed"`
	Missing    int   `json:"missing"`
}

// Progress returns per-manifest counts, worst first: missing descending,
// then manifest id ascending.
func (s *Session) Progress() []Progress {
	out := make([]Progress, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.progressOf(id))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Missing != out[j].Missing {
			return out[i].Missing > out[j].Missing
		}
		return out[i].ManifestID < out[j].ManifestID
	})
	return out
}

func (s *Session) progressOf(id int64) Progress {
	exp, got := s.expected[id], s.received[id]
	return Progress{ManifestID: id, Expected: exp, Confirmed: got, Missing: exp - got}
}

// Totals sums progress across every loaded manifest.
func (s *Session) Totals() Progress {
	var t Progress
	for _, id := range s.ids {
		p := s.progressOf(id)
		t.Expected += p.Expected
		t.Confirmed += p.Confirmed
		t.Missing += p.Missing
	}
	return t
}

// missingKeys returns the expected keys not yet confirmed, sorted.
func (s *Session) missingKeys() []string {
	var keys []string
	for k := range s.owner {
		if !s.confirmed[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Clear drops every loaded manifest. Committed receipts are unaffected.
func (s *Session) Clear() {
	s.ids = nil
	s.owner = make(map[string]int64)
	s.confirmed = make(map[string]bool)
	s.expected = make(map[int64]int)
	s.received = make(map[int64]int)
	s.complete = false
}

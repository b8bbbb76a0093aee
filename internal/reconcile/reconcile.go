// Package reconcile implements the receiving side: loading closed manifests,
// matching scanned volumes against them and reporting what is missing.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/events"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/report"
	"github.com/alfredjeanlab/crossdock/internal/store"
	"github.com/alfredjeanlab/crossdock/internal/volkey"
)

// Engine runs receiving operations against a store.
type Engine struct {
	store    store.Store
	notifier events.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets where lifecycle events are sent.
func WithNotifier(n events.Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New returns an Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		notifier: events.NopNotifier{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// InvalidManifest is a manifest that exists but cannot be received here.
type InvalidManifest struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// LoadReport describes how a batch of manifest ids was partitioned.
type LoadReport struct {
	Requested []int64           `json:"requested"`
	Valid     []int64           `json:"valid"`
	Invalid   []InvalidManifest `json:"invalid,omitempty"`
	NotFound  []int64           `json:"not_found,omitempty"`
}

// eligibility returns an empty string when m can be received at site.
func eligibility(m *model.Manifest, site model.Site) string {
	if m.Status != model.ManifestClosed {
		return "manifest is still open"
	}
	if want := site.Counterpart(); m.OriginSite != want {
		return fmt.Sprintf("manifest originates from %s, expected %s", m.OriginSite.Label(), want.Label())
	}
	return ""
}

// Load starts a single-manifest session at site. The manifest must be
// closed and originate from the site's counterpart.
func (e *Engine) Load(ctx context.Context, site model.Site, manifestID int64) (*Session, error) {
	if !site.IsValid() {
		return nil, model.Reject(model.ReasonInvalidSite, fmt.Sprintf("unknown site %q", site))
	}
	m, err := e.store.GetManifest(ctx, manifestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.Reject(model.ReasonManifestNotFound, fmt.Sprintf("manifest %d not found", manifestID))
	}
	if err != nil {
		return nil, fmt.Errorf("get manifest %d: %w", manifestID, err)
	}
	if why := eligibility(m, site); why != "" {
		return nil, model.Reject(model.ReasonManifestInvalid, fmt.Sprintf("manifest %d: %s", manifestID, why))
	}

	s := newSession(ModeSingle, site, e.now().UTC())
	if err := e.fill(ctx, s, []int64{manifestID}); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadText starts a multi-manifest session from a pasted list of ids.
// The report is returned even when the load is rejected.
func (e *Engine) LoadText(ctx context.Context, site model.Site, text string) (*Session, *LoadReport, error) {
	return e.LoadMany(ctx, site, ParseManifestIDs(text))
}

// LoadMany starts a multi-manifest session. Ids that do not exist or are
// not eligible are reported and skipped; the load fails only when none
// remain.
func (e *Engine) LoadMany(ctx context.Context, site model.Site, ids []int64) (*Session, *LoadReport, error) {
	rep := &LoadReport{Requested: ids}
	if !site.IsValid() {
		return nil, rep, model.Reject(model.ReasonInvalidSite, fmt.Sprintf("unknown site %q", site))
	}
	if len(ids) == 0 {
		return nil, rep, model.Reject(model.ReasonNoValidManifests, "no manifest ids found in input")
	}

	found, err := e.store.GetManifests(ctx, ids)
	if err != nil {
		return nil, rep, fmt.Errorf("get manifests: %w", err)
	}
	byID := make(map[int64]*model.Manifest, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	for _, id := range ids {
		m, ok := byID[id]
		switch {
		case !ok:
			rep.NotFound = append(rep.NotFound, id)
		case eligibility(m, site) != "":
			rep.Invalid = append(rep.Invalid, InvalidManifest{ID: id, Reason: eligibility(m, site)})
		default:
			rep.Valid = append(rep.Valid, id)
		}
	}
	if len(rep.Valid) == 0 {
		return nil, rep, model.Reject(model.ReasonNoValidManifests, "none of the listed manifests can be received here")
	}

	s := newSession(ModeMulti, site, e.now().UTC())
	if err := e.fill(ctx, s, rep.Valid); err != nil {
		return nil, rep, err
	}
	return s, rep, nil
}

func (e *Engine) fill(ctx context.Context, s *Session, ids []int64) error {
	vols, _, err := e.store.ListVolumes(ctx, model.VolumeFilter{ManifestIDs: ids})
	if err != nil {
		return fmt.Errorf("list volumes: %w", err)
	}
	s.ids = ids
	for _, id := range ids {
		s.expected[id] = 0
	}
	for _, v := range vols {
		if !s.addVolume(v) {
			e.logger.Warn("volume key appears in more than one loaded manifest",
				"key", v.Key, "kept_manifest_id", s.owner[v.Key], "skipped_manifest_id", v.ManifestID)
		}
	}
	return nil
}

// Receipt acknowledges a confirmed volume.
type Receipt struct {
	ManifestID int64     `json:"manifest_id"`
	Key        string    `json:"key"`
	ReceivedAt time.Time `json:"received_at"`
	Progress   Progress  `json:"progress"`
}

// Scan confirms the volume identified by raw. The receipt is committed to
// the store before the session counts it.
func (e *Engine) Scan(ctx context.Context, s *Session, actor, raw string) (*Receipt, error) {
	if !s.Loaded() {
		return nil, model.Reject(model.ReasonNothingLoaded, "no manifest loaded for receiving")
	}
	key := volkey.Normalize(raw)
	if key == "" {
		return nil, model.Reject(model.ReasonEmptyScan, "empty scan ignored")
	}
	manifestID, ok := s.owner[key]
	if !ok {
		if s.mode == ModeSingle {
			return nil, model.Reject(model.ReasonNotInManifest,
				fmt.Sprintf("volume %s does not belong to manifest %d", key, s.ids[0]))
		}
		return nil, model.Reject(model.ReasonNotInAnyManifest,
			fmt.Sprintf("volume %s does not belong to any loaded manifest", key))
	}
	if s.confirmed[key] {
		return nil, alreadyReceived(key, manifestID)
	}

	at := e.now().UTC()
	updated, err := e.store.MarkReceived(ctx, manifestID, key, at)
	if err != nil {
		return nil, fmt.Errorf("mark %s received: %w", key, err)
	}
	s.confirm(key, manifestID)
	if !updated {
		// Another session got there first; the store already holds a receipt.
		return nil, alreadyReceived(key, manifestID)
	}

	e.notifier.Notify(ctx, events.TopicVolumeReceived, manifestID, actor, events.VolumeReceived{
		Volume: &model.VolumeRecord{ManifestID: manifestID, Key: key, ReceivedAt: &at},
		Site:   s.site,
		Actor:  actor,
	})
	return &Receipt{ManifestID: manifestID, Key: key, ReceivedAt: at, Progress: s.progressOf(manifestID)}, nil
}

func alreadyReceived(key string, manifestID int64) *model.Rejection {
	return model.Reject(model.ReasonAlreadyReceived,
		fmt.Sprintf("volume %s of manifest %d already received", key, manifestID))
}

// Result is the outcome of Finalize.
type Result struct {
	Complete bool `json:"complete"`
	// MissingKeys lists every unconfirmed key; single mode only.
	MissingKeys []string `json:"missing_keys,omitempty"`
	// Incomplete lists manifests with missing volumes, worst first; multi
	// mode only.
	Incomplete []int64    `json:"incomplete,omitempty"`
	Progress   []Progress `json:"progress"`
	Totals     Progress   `json:"totals"`
}

// Finalize reports whether anything is still missing. The session stays
// loaded either way so scanning can continue.
func (e *Engine) Finalize(ctx context.Context, s *Session, actor string) (*Result, error) {
	if !s.Loaded() {
		return nil, model.Reject(model.ReasonNothingLoaded, "no manifest loaded for receiving")
	}
	res := &Result{Progress: s.Progress(), Totals: s.Totals()}
	switch s.mode {
	case ModeSingle:
		res.MissingKeys = s.missingKeys()
		res.Complete = len(res.MissingKeys) == 0
	default:
		for _, p := range res.Progress {
			if p.Missing > 0 {
				res.Incomplete = append(res.Incomplete, p.ManifestID)
			}
		}
		res.Complete = len(res.Incomplete) == 0
	}
	s.complete = res.Complete

	e.notifier.Notify(ctx, events.TopicReconciliationFinalized, s.ids[0], actor, events.ReconciliationFinalized{
		ManifestIDs: s.ManifestIDs(),
		Complete:    res.Complete,
		MissingKeys: res.MissingKeys,
		Incomplete:  res.Incomplete,
		Actor:       actor,
	})
	return res, nil
}

// Discrepancy builds the printable list of missing volumes for one loaded
// manifest.
func (e *Engine) Discrepancy(ctx context.Context, s *Session, manifestID int64, responsible string) (*report.Document, error) {
	if !s.Loaded() {
		return nil, model.Reject(model.ReasonNothingLoaded, "no manifest is loaded for receiving")
	}
	if _, ok := s.expected[manifestID]; !ok {
		return nil, model.Reject(model.ReasonNothingLoaded, fmt.Sprintf("manifest %d is not loaded", manifestID))
	}
	m, err := e.store.GetManifest(ctx, manifestID)
	if err != nil {
		return nil, fmt.Errorf("get manifest %d: %w", manifestID, err)
	}
	vols, _, err := e.store.ListVolumes(ctx, model.VolumeFilter{
		ManifestIDs: []int64{manifestID},
		Received:    model.PendingOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("list pending volumes of manifest %d: %w", manifestID, err)
	}

	doc := &report.Document{
		Kind:        report.KindDiscrepancy,
		ManifestID:  manifestID,
		Responsible: strings.TrimSpace(responsible),
		OriginLabel: m.OriginSite.Label(),
		OpenedAt:    m.OpenedAt,
		ClosedAt:    m.ClosedAt,
	}
	for _, v := range vols {
		if s.confirmed[v.Key] {
			continue
		}
		doc.Rows = append(doc.Rows, report.Row{Key: v.Key, Destination: v.Destination, Branch: v.Branch})
	}
	report.SortRows(doc.Rows)
	return doc, nil
}

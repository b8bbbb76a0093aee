// Package dispatch implements the outbound side of a cross-dock transfer:
// opening a manifest, recording scanned volumes into it and closing it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/events"
	"github.com/alfredjeanlab/crossdock/internal/inventory"
	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/report"
	"github.com/alfredjeanlab/crossdock/internal/store"
	"github.com/alfredjeanlab/crossdock/internal/volkey"
)

// DefaultAckSuffix is how many trailing key characters are echoed back.
const DefaultAckSuffix = 6

// Resolver looks up the destination of a volume. It never fails.
type Resolver interface {
	Resolve(ctx context.Context, key string) inventory.Lookup
}

// Context is the per-operator dispatch state. It is owned by a single
// session and must not be shared between goroutines without external locking.
type Context struct {
	Identity string     `json:"identity"`
	Site     model.Site `json:"site"`

	// ActiveManifestID is the open manifest scans are recorded into; zero
	// when none.
	ActiveManifestID int64 `json:"active_manifest_id,omitempty"`
	// DefaultDestination overrides inventory lookups for every scan.
	DefaultDestination string `json:"default_destination,omitempty"`
	// PendingPrintID is the most recently closed manifest, kept until the
	// operator prints or discards it.
	PendingPrintID int64 `json:"pending_print_id,omitempty"`
}

// Ack acknowledges a recorded volume.
type Ack struct {
	ManifestID  int64  `json:"manifest_id"`
	Suffix      string `json:"suffix"`
	Destination string `json:"destination,omitempty"`
	Branch      string `json:"branch,omitempty"`
	// Warning carries a soft inventory degradation message.
	Warning string `json:"warning,omitempty"`
}

// Engine runs dispatch operations against a store.
type Engine struct {
	store     store.Store
	resolver  Resolver
	notifier  events.Notifier
	logger    *slog.Logger
	now       func() time.Time
	ackSuffix int
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver sets the destination resolver.
func WithResolver(r Resolver) Option { return func(e *Engine) { e.resolver = r } }

// WithNotifier sets where lifecycle events are sent.
func WithNotifier(n events.Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithAckSuffix sets how many key characters acknowledgments echo.
func WithAckSuffix(n int) Option { return func(e *Engine) { e.ackSuffix = n } }

// New returns an Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		notifier:  events.NopNotifier{},
		logger:    slog.Default(),
		now:       time.Now,
		ackSuffix: DefaultAckSuffix,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// Open creates a new open manifest for the operator. It fails if the context
// already references an open manifest.
func (e *Engine) Open(ctx context.Context, c *Context, defaultDestination string) (*model.Manifest, error) {
	if c.ActiveManifestID != 0 {
		return nil, model.Reject(model.ReasonManifestActive,
			fmt.Sprintf("manifest %d is still open; close or discard it first", c.ActiveManifestID))
	}
	if !c.Site.IsValid() {
		return nil, model.Reject(model.ReasonInvalidSite, fmt.Sprintf("unknown site %q", c.Site))
	}
	if strings.TrimSpace(c.Identity) == "" {
		return nil, model.Reject(model.ReasonInvalidIdentity, "identity is required")
	}

	m := &model.Manifest{
		OriginSite: c.Site,
		CreatedBy:  c.Identity,
		Status:     model.ManifestOpen,
		OpenedAt:   e.clock(),
	}
	if err := model.ValidateManifest(m); err != nil {
		return nil, err
	}
	if err := e.store.CreateManifest(ctx, m); err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}

	c.ActiveManifestID = m.ID
	c.DefaultDestination = strings.TrimSpace(defaultDestination)
	c.PendingPrintID = 0

	e.notifier.Notify(ctx, events.TopicManifestOpened, m.ID, c.Identity, events.ManifestOpened{Manifest: m})
	return m, nil
}

// RecordVolume normalizes raw and appends it to the active manifest.
// destination, when non-empty, takes precedence over the context default and
// over the inventory lookup.
func (e *Engine) RecordVolume(ctx context.Context, c *Context, raw, destination string) (*Ack, error) {
	if c.ActiveManifestID == 0 {
		return nil, model.Reject(model.ReasonNoActiveManifest, "no open manifest; open one first")
	}
	key, err := volkey.Parse(raw)
	switch {
	case errors.Is(err, volkey.ErrEmpty):
		return nil, model.Reject(model.ReasonEmptyScan, "empty scan ignored")
	case errors.Is(err, volkey.ErrTooShort):
		return nil, model.Reject(model.ReasonScanTooShort,
			fmt.Sprintf("scan too short (%q); rescan the label", key))
	}
	manifestID := c.ActiveManifestID

	// Fast path only; the unique constraint below is what actually decides.
	if _, err := e.store.GetVolume(ctx, manifestID, key); err == nil {
		return nil, duplicate(key, manifestID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check volume %s: %w", key, err)
	}

	ack := &Ack{ManifestID: manifestID, Suffix: volkey.Suffix(key, e.ackSuffix)}
	switch {
	case strings.TrimSpace(destination) != "":
		ack.Destination = strings.TrimSpace(destination)
	case c.DefaultDestination != "":
		ack.Destination = c.DefaultDestination
	case e.resolver != nil:
		lookup := e.resolver.Resolve(ctx, key)
		ack.Destination = lookup.Label
		ack.Branch = lookup.Branch
		ack.Warning = lookup.Warning
	}

	v := &model.VolumeRecord{
		ManifestID:   manifestID,
		Key:          key,
		Destination:  ack.Destination,
		Branch:       ack.Branch,
		DispatchedAt: e.clock(),
	}
	if err := model.ValidateVolume(v); err != nil {
		return nil, err
	}
	if err := e.store.InsertVolume(ctx, v); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, duplicate(key, manifestID)
		case errors.Is(err, store.ErrNotOpen):
			return nil, model.Reject(model.ReasonManifestNotOpen,
				fmt.Sprintf("manifest %d is closed and accepts no more volumes", manifestID))
		case errors.Is(err, store.ErrNotFound):
			c.ActiveManifestID = 0
			return nil, model.Reject(model.ReasonManifestNotFound,
				fmt.Sprintf("manifest %d no longer exists", manifestID))
		}
		return nil, fmt.Errorf("insert volume %s: %w", key, err)
	}

	e.notifier.Notify(ctx, events.TopicVolumeDispatched, manifestID, c.Identity,
		events.VolumeDispatched{Volume: v, Actor: c.Identity})
	return ack, nil
}

func duplicate(key string, manifestID int64) *model.Rejection {
	return model.Reject(model.ReasonDuplicate,
		fmt.Sprintf("volume %s already recorded in manifest %d", key, manifestID))
}

// Close transitions the active manifest to closed. The manifest becomes the
// context's pending print.
func (e *Engine) Close(ctx context.Context, c *Context) (*model.Manifest, error) {
	id := c.ActiveManifestID
	if id == 0 {
		return nil, model.Reject(model.ReasonNoActiveManifest, "no open manifest to close")
	}
	m, err := e.store.CloseManifest(ctx, id, e.clock())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotOpen):
			c.ActiveManifestID = 0
			return nil, model.Reject(model.ReasonManifestNotOpen,
				fmt.Sprintf("manifest %d is already closed", id))
		case errors.Is(err, store.ErrNotFound):
			c.ActiveManifestID = 0
			return nil, model.Reject(model.ReasonManifestNotFound,
				fmt.Sprintf("manifest %d no longer exists", id))
		}
		return nil, fmt.Errorf("close manifest %d: %w", id, err)
	}

	counts, err := e.store.CountVolumes(ctx, []int64{id})
	if err != nil {
		e.logger.Warn("failed to count volumes of closed manifest", "manifest_id", id, "error", err)
	}
	m.VolumeCount = counts[id]

	c.ActiveManifestID = 0
	c.DefaultDestination = ""
	c.PendingPrintID = id

	e.notifier.Notify(ctx, events.TopicManifestClosed, id, c.Identity,
		events.ManifestClosed{Manifest: m, VolumeCount: m.VolumeCount})
	return m, nil
}

// Discard drops the context's manifest references without touching the
// store. An open manifest stays open and can no longer be scanned into from
// this context.
func (e *Engine) Discard(c *Context) {
	if c.ActiveManifestID != 0 {
		e.logger.Info("discarding open manifest reference",
			"manifest_id", c.ActiveManifestID, "identity", c.Identity)
	}
	c.ActiveManifestID = 0
	c.DefaultDestination = ""
	c.PendingPrintID = 0
}

// Document assembles the printable artifact for a manifest with all of its
// volumes in print order.
func (e *Engine) Document(ctx context.Context, manifestID int64) (*report.Document, error) {
	m, err := e.store.GetManifest(ctx, manifestID)
	if err != nil {
		return nil, fmt.Errorf("get manifest %d: %w", manifestID, err)
	}
	vols, _, err := e.store.ListVolumes(ctx, model.VolumeFilter{ManifestIDs: []int64{manifestID}})
	if err != nil {
		return nil, fmt.Errorf("list volumes of manifest %d: %w", manifestID, err)
	}

	rows := make([]report.Row, 0, len(vols))
	for _, v := range vols {
		rows = append(rows, report.Row{Key: v.Key, Destination: v.Destination, Branch: v.Branch})
	}
	doc := &report.Document{
		Kind:        report.KindManifest,
		ManifestID:  m.ID,
		Responsible: m.CreatedBy,
		OriginLabel: m.OriginSite.Label(),
		OpenedAt:    m.OpenedAt,
		ClosedAt:    m.ClosedAt,
		Rows:        rows,
	}
	report.SortRows(doc.Rows)
	return doc, nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/model"
)

var (
	// ErrNotFound is returned when the requested manifest or volume does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a volume key already exists in the manifest.
	// Implementations must derive it from the storage uniqueness constraint on
	// (manifest_id, key), not from a prior read.
	ErrDuplicate = errors.New("duplicate volume key in manifest")
	// ErrNotOpen is returned when a write requires an open manifest but the
	// manifest is closed.
	ErrNotOpen = errors.New("manifest is not open")
	// ErrNotClosed is returned when a receipt targets a manifest that is
	// still open.
	ErrNotClosed = errors.New("manifest is not closed")
)

// Store defines the persistence interface for manifests and volume records.
type Store interface {
	// Manifests
	CreateManifest(ctx context.Context, m *model.Manifest) error
	GetManifest(ctx context.Context, id int64) (*model.Manifest, error)
	GetManifests(ctx context.Context, ids []int64) ([]*model.Manifest, error)
	ListManifests(ctx context.Context, filter model.ManifestFilter) ([]*model.Manifest, int, error) // returns manifests, total count, error
	CloseManifest(ctx context.Context, id int64, closedAt time.Time) (*model.Manifest, error)

	// Volumes
	InsertVolume(ctx context.Context, v *model.VolumeRecord) error
	GetVolume(ctx context.Context, manifestID int64, key string) (*model.VolumeRecord, error)
	ListVolumes(ctx context.Context, filter model.VolumeFilter) ([]*model.VolumeRecord, int, error)
	CountVolumes(ctx context.Context, manifestIDs []int64) (map[int64]int, error)
	// MarkReceived sets received_at on a volume of a closed manifest. It
	// reports false when the volume was already received.
	MarkReceived(ctx context.Context, manifestID int64, key string, at time.Time) (bool, error)

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, manifestID int64) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

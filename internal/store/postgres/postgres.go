// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultQueryTimeout bounds every store call when no timeout is configured.
const DefaultQueryTimeout = 10 * time.Second

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
// A non-positive queryTimeout selects DefaultQueryTimeout.
func New(databaseURL string, queryTimeout time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db, queryTimeout: queryTimeout}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// bound applies the per-call timeout.
func (s *PostgresStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateManifest(ctx context.Context, m *model.Manifest) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryCreateManifest(ctx, s.db, m)
}

func (s *PostgresStore) GetManifest(ctx context.Context, id int64) (*model.Manifest, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryGetManifest(ctx, s.db, id)
}

func (s *PostgresStore) GetManifests(ctx context.Context, ids []int64) ([]*model.Manifest, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryGetManifests(ctx, s.db, ids)
}

func (s *PostgresStore) ListManifests(ctx context.Context, filter model.ManifestFilter) ([]*model.Manifest, int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryListManifests(ctx, s.db, filter)
}

func (s *PostgresStore) CloseManifest(ctx context.Context, id int64, closedAt time.Time) (*model.Manifest, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryCloseManifest(ctx, s.db, id, closedAt)
}

func (s *PostgresStore) InsertVolume(ctx context.Context, v *model.VolumeRecord) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryInsertVolume(ctx, s.db, v)
}

func (s *PostgresStore) GetVolume(ctx context.Context, manifestID int64, key string) (*model.VolumeRecord, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryGetVolume(ctx, s.db, manifestID, key)
}

func (s *PostgresStore) ListVolumes(ctx context.Context, filter model.VolumeFilter) ([]*model.VolumeRecord, int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryListVolumes(ctx, s.db, filter)
}

func (s *PostgresStore) CountVolumes(ctx context.Context, manifestIDs []int64) (map[int64]int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryCountVolumes(ctx, s.db, manifestIDs)
}

func (s *PostgresStore) MarkReceived(ctx context.Context, manifestID int64, key string, at time.Time) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryMarkReceived(ctx, s.db, manifestID, key, at)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *model.Event) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryRecordEvent(ctx, s.db, event)
}

func (s *PostgresStore) GetEvents(ctx context.Context, manifestID int64) ([]*model.Event, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return queryGetEvents(ctx, s.db, manifestID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateManifest(ctx context.Context, m *model.Manifest) error {
	return queryCreateManifest(ctx, s.tx, m)
}

func (s *txStore) GetManifest(ctx context.Context, id int64) (*model.Manifest, error) {
	return queryGetManifest(ctx, s.tx, id)
}

func (s *txStore) GetManifests(ctx context.Context, ids []int64) ([]*model.Manifest, error) {
	return queryGetManifests(ctx, s.tx, ids)
}

func (s *txStore) ListManifests(ctx context.Context, filter model.ManifestFilter) ([]*model.Manifest, int, error) {
	return queryListManifests(ctx, s.tx, filter)
}

func (s *txStore) CloseManifest(ctx context.Context, id int64, closedAt time.Time) (*model.Manifest, error) {
	return queryCloseManifest(ctx, s.tx, id, closedAt)
}

func (s *txStore) InsertVolume(ctx context.Context, v *model.VolumeRecord) error {
	return queryInsertVolume(ctx, s.tx, v)
}

func (s *txStore) GetVolume(ctx context.Context, manifestID int64, key string) (*model.VolumeRecord, error) {
	return queryGetVolume(ctx, s.tx, manifestID, key)
}

func (s *txStore) ListVolumes(ctx context.Context, filter model.VolumeFilter) ([]*model.VolumeRecord, int, error) {
	return queryListVolumes(ctx, s.tx, filter)
}

func (s *txStore) CountVolumes(ctx context.Context, manifestIDs []int64) (map[int64]int, error) {
	return queryCountVolumes(ctx, s.tx, manifestIDs)
}

func (s *txStore) MarkReceived(ctx context.Context, manifestID int64, key string, at time.Time) (bool, error) {
	return queryMarkReceived(ctx, s.tx, manifestID, key, at)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.tx, event)
}

func (s *txStore) GetEvents(ctx context.Context, manifestID int64) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.tx, manifestID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}

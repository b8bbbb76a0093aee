package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/crossdock/internal/model"
	"github.com/alfredjeanlab/crossdock/internal/store"
)

// manifestColumns is the column list used for SELECT statements on the manifests table.
const manifestColumns = `id, origin_site, created_by, status, opened_at, closed_at`

// volumeColumns is the column list used for SELECT statements on the volumes table.
const volumeColumns = `id, manifest_id, key, destination, branch, dispatched_at, received_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func queryCreateManifest(ctx context.Context, db executor, m *model.Manifest) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO manifests (origin_site, created_by, status, opened_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		string(m.OriginSite),
		m.CreatedBy,
		string(m.Status),
		m.OpenedAt,
	).Scan(&m.ID)
}

func queryGetManifest(ctx context.Context, db executor, id int64) (*model.Manifest, error) {
	row := db.QueryRowContext(ctx, `SELECT `+manifestColumns+` FROM manifests WHERE id = $1`, id)
	m, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get manifest %d: %w", id, err)
	}
	return m, nil
}

func queryGetManifests(ctx context.Context, db executor, ids []int64) ([]*model.Manifest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+manifestColumns+` FROM manifests WHERE id = ANY($1) ORDER BY id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("get manifests: %w", err)
	}
	defer rows.Close()

	var manifests []*model.Manifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manifests: %w", err)
		}
		manifests = append(manifests, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return manifests, nil
}

func queryListManifests(ctx context.Context, db executor, filter model.ManifestFilter) ([]*model.Manifest, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "m.status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.Origin != "" {
		whereClauses = append(whereClauses, "m.origin_site = "+nextArg())
		args = append(args, string(filter.Origin))
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := `SELECT COUNT(*) OVER() AS total_count,
		m.id, m.origin_site, m.created_by, m.status, m.opened_at, m.closed_at,
		(SELECT COUNT(*) FROM volumes v WHERE v.manifest_id = m.id) AS volume_count,
		(SELECT COUNT(*) FROM volumes v WHERE v.manifest_id = m.id AND v.received_at IS NOT NULL) AS received_count
		FROM manifests m` + whereSQL + ` ORDER BY m.id DESC`

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list manifests: %w", err)
	}
	defer rows.Close()

	var manifests []*model.Manifest
	var total int
	for rows.Next() {
		m, t, err := scanManifestSummary(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan manifests: %w", err)
		}
		total = t
		manifests = append(manifests, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return manifests, total, nil
}

func queryCloseManifest(ctx context.Context, db executor, id int64, closedAt time.Time) (*model.Manifest, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE manifests SET status = 'closed', closed_at = $2
		WHERE id = $1 AND status = 'open'
		RETURNING `+manifestColumns,
		id, closedAt,
	)
	m, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing manifest from one that was already closed.
		if _, gerr := queryGetManifest(ctx, db, id); gerr != nil {
			return nil, gerr
		}
		return nil, store.ErrNotOpen
	}
	if err != nil {
		return nil, fmt.Errorf("close manifest %d: %w", id, err)
	}
	return m, nil
}

func queryInsertVolume(ctx context.Context, db executor, v *model.VolumeRecord) error {
	// The manifest status is checked in the same statement so that a
	// concurrent close cannot admit a late volume.
	err := db.QueryRowContext(ctx, `
		INSERT INTO volumes (manifest_id, key, destination, branch, dispatched_at)
		SELECT m.id, $2, $3, $4, $5 FROM manifests m
		WHERE m.id = $1 AND m.status = 'open'
		RETURNING id`,
		v.ManifestID,
		v.Key,
		nullString(v.Destination),
		nullString(v.Branch),
		v.DispatchedAt,
	).Scan(&v.ID)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return store.ErrDuplicate
	case errors.Is(err, sql.ErrNoRows):
		if _, gerr := queryGetManifest(ctx, db, v.ManifestID); gerr != nil {
			return gerr
		}
		return store.ErrNotOpen
	default:
		return fmt.Errorf("insert volume: %w", err)
	}
}

func queryGetVolume(ctx context.Context, db executor, manifestID int64, key string) (*model.VolumeRecord, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+volumeColumns+` FROM volumes WHERE manifest_id = $1 AND key = $2`,
		manifestID, key,
	)
	v, err := scanVolume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get volume: %w", err)
	}
	return v, nil
}

func queryListVolumes(ctx context.Context, db executor, filter model.VolumeFilter) ([]*model.VolumeRecord, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.ManifestIDs) > 0 {
		whereClauses = append(whereClauses, "manifest_id = ANY("+nextArg()+")")
		args = append(args, pq.Array(filter.ManifestIDs))
	}

	switch filter.Received {
	case model.ReceivedOnly:
		whereClauses = append(whereClauses, "received_at IS NOT NULL")
	case model.PendingOnly:
		whereClauses = append(whereClauses, "received_at IS NULL")
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + volumeColumns + " FROM volumes" + whereSQL +
		" ORDER BY " + parseSortClause(filter.Sort)

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list volumes: %w", err)
	}
	defer rows.Close()

	var volumes []*model.VolumeRecord
	var total int
	for rows.Next() {
		v, t, err := scanVolumeWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan volumes: %w", err)
		}
		total = t
		volumes = append(volumes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return volumes, total, nil
}

func queryCountVolumes(ctx context.Context, db executor, manifestIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(manifestIDs))
	if len(manifestIDs) == 0 {
		return counts, nil
	}
	rows, err := db.QueryContext(ctx, `
		SELECT manifest_id, COUNT(*) FROM volumes
		WHERE manifest_id = ANY($1)
		GROUP BY manifest_id`,
		pq.Array(manifestIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("count volumes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan volume count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func queryMarkReceived(ctx context.Context, db executor, manifestID int64, key string, at time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE volumes v SET received_at = $3
		FROM manifests m
		WHERE v.manifest_id = $1 AND v.key = $2 AND v.received_at IS NULL
		  AND m.id = v.manifest_id AND m.status = 'closed'`,
		manifestID, key, at,
	)
	if err != nil {
		return false, fmt.Errorf("mark received: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark received: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Nothing updated: either already received, unknown, or the manifest
	// is still open.
	v, err := queryGetVolume(ctx, db, manifestID, key)
	if err != nil {
		return false, err
	}
	if v.IsReceived() {
		return false, nil
	}
	return false, store.ErrNotClosed
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, manifest_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, nullInt64(e.ManifestID), e.Actor, jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, manifestID int64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, manifest_id, actor, payload, created_at
		FROM events
		WHERE manifest_id = $1
		ORDER BY created_at ASC`,
		manifestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func parseSortClause(sort string) string {
	if sort == "" {
		return "id ASC"
	}
	desc := strings.HasPrefix(sort, "-")
	col := strings.TrimPrefix(sort, "-")
	allowed := map[string]bool{
		"id": true, "key": true, "destination": true,
		"dispatched_at": true, "received_at": true, "manifest_id": true,
	}
	if !allowed[col] {
		return "id ASC"
	}
	if desc {
		return col + " DESC NULLS LAST, id DESC"
	}
	return col + " ASC NULLS FIRST, id ASC"
}

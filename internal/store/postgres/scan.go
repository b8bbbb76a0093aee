package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanManifest scans a single row into a model.Manifest.
// The row must contain columns in the order defined by manifestColumns.
func scanManifest(row scannable) (*model.Manifest, error) {
	var (
		m        model.Manifest
		closedAt sql.NullTime
	)
	err := row.Scan(
		&m.ID,
		&m.OriginSite,
		&m.CreatedBy,
		&m.Status,
		&m.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ClosedAt = timePtr(closedAt)
	return &m, nil
}

// scanManifestSummary scans a listing row: total_count, the manifest
// columns, then the volume and received counts.
func scanManifestSummary(row scannable) (*model.Manifest, int, error) {
	var (
		total    int
		m        model.Manifest
		closedAt sql.NullTime
	)
	err := row.Scan(
		&total,
		&m.ID,
		&m.OriginSite,
		&m.CreatedBy,
		&m.Status,
		&m.OpenedAt,
		&closedAt,
		&m.VolumeCount,
		&m.ReceivedCount,
	)
	if err != nil {
		return nil, 0, err
	}
	m.ClosedAt = timePtr(closedAt)
	return &m, total, nil
}

// scanVolume scans a single row into a model.VolumeRecord.
// The row must contain columns in the order defined by volumeColumns.
func scanVolume(row scannable) (*model.VolumeRecord, error) {
	var (
		v           model.VolumeRecord
		destination sql.NullString
		branch      sql.NullString
		receivedAt  sql.NullTime
	)
	err := row.Scan(
		&v.ID,
		&v.ManifestID,
		&v.Key,
		&destination,
		&branch,
		&v.DispatchedAt,
		&receivedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Destination = destination.String
	v.Branch = branch.String
	v.ReceivedAt = timePtr(receivedAt)
	return &v, nil
}

// scanVolumeWithTotal scans a row that has a leading total_count column
// followed by the standard volume columns.
func scanVolumeWithTotal(row scannable) (*model.VolumeRecord, int, error) {
	var (
		total       int
		v           model.VolumeRecord
		destination sql.NullString
		branch      sql.NullString
		receivedAt  sql.NullTime
	)
	err := row.Scan(
		&total,
		&v.ID,
		&v.ManifestID,
		&v.Key,
		&destination,
		&branch,
		&v.DispatchedAt,
		&receivedAt,
	)
	if err != nil {
		return nil, 0, err
	}
	v.Destination = destination.String
	v.Branch = branch.String
	v.ReceivedAt = timePtr(receivedAt)
	return &v, total, nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		var (
			e          model.Event
			manifestID sql.NullInt64
			actor      sql.NullString
			payload    []byte
		)
		if err := rows.Scan(&e.ID, &e.Topic, &manifestID, &actor, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ManifestID = manifestID.Int64
		e.Actor = actor.String
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// timePtr converts a sql.NullTime to a *time.Time in UTC.
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullInt64 converts an id to sql.NullInt64; zero is null.
func nullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}

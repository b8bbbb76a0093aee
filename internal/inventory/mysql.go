package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// latestOutboundQuery picks the newest outbound invoice line for a volume.
// Ties on issue date are broken by the higher invoice number.
const latestOutboundQuery = `
	SELECT i.counterpart_name, i.branch_code
	FROM outbound_invoices i
	JOIN outbound_invoice_volumes iv ON iv.invoice_id = i.id
	WHERE iv.volume_key = ?
	ORDER BY i.issued_at DESC, i.invoice_number DESC
	LIMIT 1`

// MySQLBackend reads outbound invoices from the ERP's MySQL database.
type MySQLBackend struct {
	db *sql.DB
}

// NewMySQLBackend opens a read-only pool for dsn. Connect, read and write
// timeouts are all bounded by timeout so a stuck ERP cannot hold a scan.
func NewMySQLBackend(dsn string, timeout time.Duration) (*MySQLBackend, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse inventory DSN: %w", err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cfg.Timeout = timeout
	cfg.ReadTimeout = timeout
	cfg.WriteTimeout = timeout
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("inventory connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	// The pool is opened lazily; an unreachable ERP at startup only means
	// lookups start in cooldown on first use.
	return &MySQLBackend{db: db}, nil
}

// NewMySQLBackendFromDB wraps an existing pool.
func NewMySQLBackendFromDB(db *sql.DB) *MySQLBackend {
	return &MySQLBackend{db: db}
}

// LatestOutbound implements Backend.
func (b *MySQLBackend) LatestOutbound(ctx context.Context, key string) (Destination, error) {
	var (
		name   sql.NullString
		branch sql.NullString
	)
	err := b.db.QueryRowContext(ctx, latestOutboundQuery, key).Scan(&name, &branch)
	if errors.Is(err, sql.ErrNoRows) {
		return Destination{}, ErrNoMatch
	}
	if err != nil {
		return Destination{}, fmt.Errorf("query outbound invoice: %w", err)
	}
	if !name.Valid || name.String == "" {
		return Destination{}, ErrNoMatch
	}
	return Destination{Label: name.String, Branch: branch.String}, nil
}

// Close releases the pool.
func (b *MySQLBackend) Close() error {
	return b.db.Close()
}

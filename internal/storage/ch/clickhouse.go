package ch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"lending/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS peminjaman (
		id String,
		holder_name String,
		asset_name String,
		checkout_time String,
		return_time String,
		status LowCardinality(String),
		transferred_to String,
		created_at DateTime64(6)
	) ENGINE = MergeTree()
	ORDER BY (created_at, id)
`

// conn is the part of clickhouse.Conn the store uses
type conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	Close() error
}

type ClickHouseDB struct {
	conn conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize creates the ledger table if it is missing.
// cmd/migrate applies the same schema through goose.
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	if err := db.conn.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// ListRecords returns all records in table order
func (db *ClickHouseDB) ListRecords(ctx context.Context) ([]models.LoanRecord, error) {
	rows, err := db.conn.Query(ctx, `SELECT id, holder_name, asset_name, checkout_time, return_time, status, transferred_to, created_at FROM peminjaman`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []models.LoanRecord
	for rows.Next() {
		var r models.LoanRecord
		var status string
		if err := rows.Scan(&r.ID, &r.HolderName, &r.AssetName, &r.CheckoutTime, &r.ReturnTime, &status, &r.TransferredTo, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Status = models.Status(status)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}

// InsertRecord inserts one record
func (db *ClickHouseDB) InsertRecord(ctx context.Context, r models.LoanRecord) error {
	err := db.conn.Exec(ctx, `INSERT INTO peminjaman (id, holder_name, asset_name, checkout_time, return_time, status, transferred_to, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.HolderName, r.AssetName, r.CheckoutTime, r.ReturnTime, string(r.Status), r.TransferredTo, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// CloseActive applies the closure to holderName's active records
func (db *ClickHouseDB) CloseActive(ctx context.Context, holderName string, closure models.Closure) (int64, error) {
	ids, err := db.activeIDs(ctx, holderName)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := db.updateByID(ctx, ids, closure); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// Transfer closes the active records of fromHolder and inserts next.
// ClickHouse has no multi-statement transactions, so a failed insert is
// compensated by reopening the rows that were closed.
func (db *ClickHouseDB) Transfer(ctx context.Context, fromHolder string, closure models.Closure, next models.LoanRecord) (int64, error) {
	ids, err := db.activeIDs(ctx, fromHolder)
	if err != nil {
		return 0, err
	}

	if len(ids) > 0 {
		if err := db.updateByID(ctx, ids, closure); err != nil {
			return 0, err
		}
	}

	if err := db.InsertRecord(ctx, next); err != nil {
		if len(ids) == 0 {
			return 0, err
		}
		reopen := models.Closure{
			Status:        models.StatusCheckedOut,
			ReturnTime:    models.NoValue,
			TransferredTo: models.NoValue,
		}
		if undoErr := db.updateByID(ctx, ids, reopen); undoErr != nil {
			return 0, errors.Join(err, fmt.Errorf("failed to reopen transferred records: %w", undoErr))
		}
		return 0, err
	}
	return int64(len(ids)), nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *ClickHouseDB) activeIDs(ctx context.Context, holderName string) ([]string, error) {
	rows, err := db.conn.Query(ctx, `SELECT id FROM peminjaman WHERE holder_name = ? AND status = ?`,
		holderName, string(models.StatusCheckedOut))
	if err != nil {
		return nil, fmt.Errorf("failed to find active records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// updateByID runs a synchronous mutation so the change is visible to the next read
func (db *ClickHouseDB) updateByID(ctx context.Context, ids []string, c models.Closure) error {
	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 2,
	}))
	err := db.conn.Exec(ctx, `ALTER TABLE peminjaman UPDATE status = ?, return_time = ?, transferred_to = ? WHERE has(?, id)`,
		string(c.Status), c.ReturnTime, c.TransferredTo, ids)
	if err != nil {
		return fmt.Errorf("failed to update records: %w", err)
	}
	return nil
}

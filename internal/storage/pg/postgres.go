package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"lending/internal/models"
	"lending/internal/storage"
	"lending/migrations"
)

const (
	colID            = "id"
	colHolderName    = "holder_name"
	colAssetName     = "asset_name"
	colCheckoutTime  = "checkout_time"
	colReturnTime    = "return_time"
	colStatus        = "status"
	colTransferredTo = "transferred_to"
	colCreatedAt     = "created_at"
)

var dialect = goqu.Dialect("postgres")

// execer is satisfied by both the pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresDB stores the ledger in a Postgres table, such as a hosted Supabase project
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB connects to the database behind dsn
func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres DSN: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Initialize applies the embedded migrations
func (db *PostgresDB) Initialize(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(db.pool)
	defer sqlDB.Close()

	return migrations.Up(ctx, sqlDB, goose.DialectPostgres)
}

// ListRecords returns every row without ordering
func (db *PostgresDB) ListRecords(ctx context.Context) ([]models.LoanRecord, error) {
	query, args, err := dialect.From(storage.TableName).
		Select(colID, colHolderName, colAssetName, colCheckoutTime, colReturnTime, colStatus, colTransferredTo, colCreatedAt).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	rows, err := db.pool.Query(ctx, query, args...)
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

// InsertRecord inserts one row
func (db *PostgresDB) InsertRecord(ctx context.Context, record models.LoanRecord) error {
	return insert(ctx, db.pool, record)
}

// CloseActive updates the active rows of holderName
func (db *PostgresDB) CloseActive(ctx context.Context, holderName string, closure models.Closure) (int64, error) {
	return closeActive(ctx, db.pool, holderName, closure)
}

// Transfer runs the close and the insert in one transaction
func (db *PostgresDB) Transfer(ctx context.Context, fromHolder string, closure models.Closure, next models.LoanRecord) (int64, error) {
	var matched int64
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		n, err := closeActive(ctx, tx, fromHolder, closure)
		if err != nil {
			return err
		}
		matched = n
		return insert(ctx, tx, next)
	})
	if err != nil {
		return 0, errors.Join(errors.New("transfer rolled back"), err)
	}
	return matched, nil
}

// Close closes the connection pool
func (db *PostgresDB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

func insert(ctx context.Context, ex execer, r models.LoanRecord) error {
	query, args, err := dialect.Insert(storage.TableName).
		Rows(goqu.Record{
			colID:            r.ID,
			colHolderName:    r.HolderName,
			colAssetName:     r.AssetName,
			colCheckoutTime:  r.CheckoutTime,
			colReturnTime:    r.ReturnTime,
			colStatus:        string(r.Status),
			colTransferredTo: r.TransferredTo,
			colCreatedAt:     r.CreatedAt,
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := ex.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func closeActive(ctx context.Context, ex execer, holderName string, c models.Closure) (int64, error) {
	query, args, err := dialect.Update(storage.TableName).
		Set(goqu.Record{
			colStatus:        string(c.Status),
			colReturnTime:    c.ReturnTime,
			colTransferredTo: c.TransferredTo,
		}).
		Where(
			goqu.C(colHolderName).Eq(holderName),
			goqu.C(colStatus).Eq(string(models.StatusCheckedOut)),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build update: %w", err)
	}

	tag, err := ex.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update record: %w", err)
	}
	return tag.RowsAffected(), nil
}

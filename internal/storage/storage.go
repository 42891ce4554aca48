package storage

import (
	"context"

	"lending/internal/models"
)

// TableName is the ledger table in every backend
const TableName = "peminjaman"

// Storage defines the row-level operations the ledger needs from the remote table
type Storage interface {
	// ListRecords returns every row in the store's native order
	ListRecords(ctx context.Context) ([]models.LoanRecord, error)

	// InsertRecord appends a new row
	InsertRecord(ctx context.Context, record models.LoanRecord) error

	// CloseActive applies the closure to rows matching
	// holder_name = holderName AND status = CheckedOut.
	// It returns how many rows matched; zero is not an error.
	CloseActive(ctx context.Context, holderName string, closure models.Closure) (int64, error)

	// Transfer closes the active rows of fromHolder and inserts next as one unit.
	// Backends without transactions undo the close when the insert fails.
	// It returns how many rows the close matched.
	Transfer(ctx context.Context, fromHolder string, closure models.Closure, next models.LoanRecord) (int64, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// Package ledger holds the lending logic for a single tracked asset.
//
// Current loan state is never cached: every read scans the full record set
// and derives the holder from it.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lending/internal/models"
	"lending/internal/storage"
)

// NoHolder is reported by ActiveHolder when the asset is available
const NoHolder = "none"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

type IDGen interface {
	New() string
}

type uuidGen struct{}

func (uuidGen) New() string {
	return uuid.NewString()
}

// Option configures a Ledger
type Option func(*Ledger)

// WithAssetName sets the tracked asset name
func WithAssetName(name string) Option {
	return func(l *Ledger) {
		if strings.TrimSpace(name) != "" {
			l.asset = name
		}
	}
}

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithIDGenerator replaces the record ID generator
func WithIDGenerator(g IDGen) Option {
	return func(l *Ledger) { l.ids = g }
}

// Ledger performs checkout, return and transfer against the record store
type Ledger struct {
	store  storage.Storage
	logger *zap.Logger
	clock  Clock
	ids    IDGen
	asset  string
}

// New creates a ledger over store
func New(store storage.Storage, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		store:  store,
		logger: logger,
		clock:  realClock{},
		ids:    uuidGen{},
		asset:  models.DefaultAssetName,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AssetName returns the tracked asset name
func (l *Ledger) AssetName() string {
	return l.asset
}

// Records returns every loan record in the store's order
func (l *Ledger) Records(ctx context.Context) ([]models.LoanRecord, error) {
	records, err := l.store.ListRecords(ctx)
	if err != nil {
		l.logger.Error("Failed to list records", zap.Error(err))
		return nil, storeErr("list", err)
	}
	return records, nil
}

// Status returns the active record, if any
func (l *Ledger) Status(ctx context.Context) (models.LoanRecord, bool, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return models.LoanRecord{}, false, err
	}

	if n := models.CountActive(records); n > 1 {
		l.logger.Warn("Multiple active records found",
			zap.Int("active_count", n),
			zap.Int("record_count", len(records)),
		)
	}

	active, ok := models.FindActive(records)
	return active, ok, nil
}

// ActiveHolder returns the current holder's name or NoHolder
func (l *Ledger) ActiveHolder(ctx context.Context) (string, error) {
	active, ok, err := l.Status(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return NoHolder, nil
	}
	return active.HolderName, nil
}

// Checkout records name as the new holder.
//
// The caller is expected to have confirmed the asset is available;
// CheckoutAvailable does both steps.
func (l *Ledger) Checkout(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	record := l.newRecord(name)
	if err := l.store.InsertRecord(ctx, record); err != nil {
		l.logger.Error("Failed to insert checkout",
			zap.Error(err),
			zap.String("holder", name),
		)
		return storeErr("insert", err)
	}

	l.logger.Info("Asset checked out",
		zap.String("asset", l.asset),
		zap.String("holder", name),
		zap.String("record_id", record.ID),
	)
	return nil
}

// Return closes holderName's active record as returned.
// A holder without an active record is a no-op.
func (l *Ledger) Return(ctx context.Context, holderName string) error {
	closure := models.Closure{
		Status:        models.StatusReturned,
		ReturnTime:    l.now(),
		TransferredTo: models.NoValue,
	}

	n, err := l.store.CloseActive(ctx, holderName, closure)
	if err != nil {
		l.logger.Error("Failed to close record for return",
			zap.Error(err),
			zap.String("holder", holderName),
		)
		return storeErr("update", err)
	}
	l.logMatched("return", holderName, n)
	if n == 0 {
		return nil
	}

	l.logger.Info("Asset returned",
		zap.String("asset", l.asset),
		zap.String("holder", holderName),
	)
	return nil
}

// Transfer closes fromName's active record and checks the asset out to toName
func (l *Ledger) Transfer(ctx context.Context, fromName, toName string) error {
	toName = strings.TrimSpace(toName)
	if toName == "" {
		return ErrEmptyName
	}

	closure := models.Closure{
		Status:        models.StatusTransferred,
		ReturnTime:    l.now(),
		TransferredTo: toName,
	}
	next := l.newRecord(toName)

	n, err := l.store.Transfer(ctx, fromName, closure, next)
	if err != nil {
		l.logger.Error("Failed to transfer",
			zap.Error(err),
			zap.String("from", fromName),
			zap.String("to", toName),
		)
		return storeErr("transfer", err)
	}
	l.logMatched("transfer", fromName, n)

	l.logger.Info("Asset transferred",
		zap.String("asset", l.asset),
		zap.String("from", fromName),
		zap.String("to", toName),
		zap.String("record_id", next.ID),
	)
	return nil
}

// CheckoutAvailable re-reads the ledger and checks out only when nobody holds the asset
func (l *Ledger) CheckoutAvailable(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}

	active, ok, err := l.Status(ctx)
	if err != nil {
		return err
	}
	if ok {
		return &AlreadyCheckedOutError{Holder: active.HolderName}
	}
	return l.Checkout(ctx, name)
}

// ReturnActive returns the asset on behalf of whoever currently holds it
func (l *Ledger) ReturnActive(ctx context.Context) (string, error) {
	active, ok, err := l.Status(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotCheckedOut
	}
	return active.HolderName, l.Return(ctx, active.HolderName)
}

// TransferActive moves the asset from its current holder to toName
func (l *Ledger) TransferActive(ctx context.Context, toName string) (string, error) {
	if strings.TrimSpace(toName) == "" {
		return "", ErrEmptyName
	}

	active, ok, err := l.Status(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotCheckedOut
	}
	return active.HolderName, l.Transfer(ctx, active.HolderName, toName)
}

func (l *Ledger) newRecord(holder string) models.LoanRecord {
	now := l.clock.Now()
	return models.LoanRecord{
		ID:            l.ids.New(),
		HolderName:    holder,
		AssetName:     l.asset,
		CheckoutTime:  models.FormatTime(now),
		ReturnTime:    models.NoValue,
		Status:        models.StatusCheckedOut,
		TransferredTo: models.NoValue,
		CreatedAt:     now,
	}
}

func (l *Ledger) now() string {
	return models.FormatTime(l.clock.Now())
}

// logMatched reports updates that did not touch exactly one row
func (l *Ledger) logMatched(op, holder string, n int64) {
	if n == 1 {
		return
	}
	l.logger.Warn("Active record update did not match exactly one row",
		zap.String("op", op),
		zap.String("holder", holder),
		zap.Int64("rows_matched", n),
	)
}

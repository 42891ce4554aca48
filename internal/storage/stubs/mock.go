package stubs

import (
	"context"
	"sync"

	"lending/internal/models"
)

// MockDB is an in-memory implementation of the Storage interface for testing
// and for running without a database
type MockDB struct {
	mu      sync.RWMutex
	records []models.LoanRecord

	// Injected failures, returned by the matching operation when non-nil
	ListErr   error
	InsertErr error
	CloseErr  error

	calls int
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		records: make([]models.LoanRecord, 0),
	}
}

// Initialize is a no-op for the mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// ListRecords returns a copy of every record in insertion order
func (m *MockDB) ListRecords(ctx context.Context) ([]models.LoanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	records := make([]models.LoanRecord, len(m.records))
	copy(records, m.records)
	return records, nil
}

// InsertRecord appends a record
func (m *MockDB) InsertRecord(ctx context.Context, record models.LoanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	return m.insertLocked(record)
}

// CloseActive updates every active record held by holderName
func (m *MockDB) CloseActive(ctx context.Context, holderName string, closure models.Closure) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	return m.closeLocked(holderName, closure)
}

// Transfer closes and inserts under a single lock, restoring the previous
// rows if the insert fails
func (m *MockDB) Transfer(ctx context.Context, fromHolder string, closure models.Closure, next models.LoanRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	snapshot := make([]models.LoanRecord, len(m.records))
	copy(snapshot, m.records)

	n, err := m.closeLocked(fromHolder, closure)
	if err != nil {
		return 0, err
	}
	if err := m.insertLocked(next); err != nil {
		m.records = snapshot
		return 0, err
	}
	return n, nil
}

// Seed appends records directly, bypassing failure injection
func (m *MockDB) Seed(records ...models.LoanRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, records...)
}

// Calls returns how many storage operations were invoked
func (m *MockDB) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.calls
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

func (m *MockDB) insertLocked(record models.LoanRecord) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.records = append(m.records, record)
	return nil
}

func (m *MockDB) closeLocked(holderName string, closure models.Closure) (int64, error) {
	if m.CloseErr != nil {
		return 0, m.CloseErr
	}

	var n int64
	for i := range m.records {
		r := &m.records[i]
		if r.HolderName != holderName || r.Status != models.StatusCheckedOut {
			continue
		}
		r.Status = closure.Status
		r.ReturnTime = closure.ReturnTime
		r.TransferredTo = closure.TransferredTo
		n++
	}
	return n, nil
}

package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyName is returned when a holder or recipient name is blank
	ErrEmptyName = errors.New("name must not be empty")

	// ErrNotCheckedOut is returned when an operation needs an active loan and there is none
	ErrNotCheckedOut = errors.New("asset is not checked out")
)

// StoreError wraps a failure of the remote store
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// AlreadyCheckedOutError is returned when a checkout finds the asset already held
type AlreadyCheckedOutError struct {
	Holder string
}

func (e *AlreadyCheckedOutError) Error() string {
	return fmt.Sprintf("asset is already checked out by %s", e.Holder)
}

// IsStoreError reports whether err came from the remote store
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

package models

import (
	"strings"
	"time"
)

// TimeLayout is the local-time format used for checkout and return times
const TimeLayout = "2006-01-02 15:04"

// NoValue marks an unset return time or transfer recipient
const NoValue = "-"

// DefaultAssetName is the asset tracked when none is configured
const DefaultAssetName = "iPhone 13"

// Status is the lifecycle state of a loan record
type Status string

const (
	StatusCheckedOut  Status = "CheckedOut"
	StatusReturned    Status = "Returned"
	StatusTransferred Status = "Transferred"
)

// IsTerminal reports whether no further transition is allowed from s
func (s Status) IsTerminal() bool {
	return s == StatusReturned || s == StatusTransferred
}

// LoanRecord represents one checkout event of the tracked asset
type LoanRecord struct {
	ID            string    `json:"id"`
	HolderName    string    `json:"holder_name"`
	AssetName     string    `json:"asset_name"`
	CheckoutTime  string    `json:"checkout_time"`
	ReturnTime    string    `json:"return_time"`
	Status        Status    `json:"status"`
	TransferredTo string    `json:"transferred_to"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsActive reports whether the record is the current loan
func (r LoanRecord) IsActive() bool {
	return r.Status == StatusCheckedOut
}

// Closure is the set of columns written when an active record is closed
type Closure struct {
	Status        Status
	ReturnTime    string
	TransferredTo string
}

// FormatTime renders t in the record time layout
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// FindActive returns the active record from a full record set.
//
// The store makes no ordering promise, so when more than one record is active
// the earliest checkout time wins, then the earliest creation instant, then the
// smallest ID.
func FindActive(records []LoanRecord) (LoanRecord, bool) {
	var best LoanRecord
	found := false
	for _, r := range records {
		if !r.IsActive() {
			continue
		}
		if !found || activeLess(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

// CountActive returns how many records are active
func CountActive(records []LoanRecord) int {
	n := 0
	for _, r := range records {
		if r.IsActive() {
			n++
		}
	}
	return n
}

func activeLess(a, b LoanRecord) bool {
	if c := strings.Compare(a.CheckoutTime, b.CheckoutTime); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Package usage tracks monthly mention counts per account against plan
// quotas.
package usage

import (
	"time"

	"github.com/khabarwatch/khabarwatch/internal/models"
)

// MonthKey formats the calendar bucket for a point in time, e.g. "2026-08".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Store is the slice of persistence the ledger needs.
type Store interface {
	GetOrCreateUsage(accountID, month string) (*models.UsageRecord, error)
	IncrementUsage(accountID, month string, n int64) error
}

// Ledger reads and advances monthly usage records. Records are created
// lazily on first use in a month and never decremented.
type Ledger struct {
	store Store
}

// NewLedger creates a usage ledger.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Current returns the account's usage record for the month containing now.
func (l *Ledger) Current(accountID string, now time.Time) (*models.UsageRecord, error) {
	return l.store.GetOrCreateUsage(accountID, MonthKey(now))
}

// Add atomically increments the account's counter for the month
// containing now.
func (l *Ledger) Add(accountID string, now time.Time, n int64) error {
	return l.store.IncrementUsage(accountID, MonthKey(now), n)
}

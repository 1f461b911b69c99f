package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LockRecord is one locked-funds position as reported by the ledger.
// Records are replaced wholesale on refresh and never edited field by field.
type LockRecord struct {
	ID              string          `json:"id"`
	Owner           string          `json:"owner"`
	Amount          decimal.Decimal `json:"amount"`
	Asset           Asset           `json:"asset"`
	UnlockTimestamp int64           `json:"unlock_timestamp"`
	IsWithdrawn     bool            `json:"is_withdrawn"`
	Signature       string          `json:"signature,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// LockStatus is the badge shown for a record.
type LockStatus string

const (
	LockStatusLocked    LockStatus = "locked"
	LockStatusUnlocked  LockStatus = "unlocked"
	LockStatusWithdrawn LockStatus = "withdrawn"
)

// UnlockTime returns the unlock instant as a time.Time.
func (l LockRecord) UnlockTime() time.Time {
	return time.Unix(l.UnlockTimestamp, 0).UTC()
}

// IsUnlocked returns true once now has reached the unlock instant.
func (l LockRecord) IsUnlocked(now time.Time) bool {
	return now.Unix() >= l.UnlockTimestamp
}

// Remaining returns the whole seconds left until unlock, never negative.
func (l LockRecord) Remaining(now time.Time) int64 {
	if r := l.UnlockTimestamp - now.Unix(); r > 0 {
		return r
	}
	return 0
}

// Pending is true for records the countdown still has to track.
func (l LockRecord) Pending(now time.Time) bool {
	return !l.IsWithdrawn && !l.IsUnlocked(now)
}

// Anomalous reports a record the ledger marks withdrawn before its unlock
// instant. Such records are surfaced, never corrected.
func (l LockRecord) Anomalous(now time.Time) bool {
	return l.IsWithdrawn && !l.IsUnlocked(now)
}

// Status returns the display badge for the record at now.
func (l LockRecord) Status(now time.Time) LockStatus {
	switch {
	case l.IsWithdrawn:
		return LockStatusWithdrawn
	case l.IsUnlocked(now):
		return LockStatusUnlocked
	default:
		return LockStatusLocked
	}
}

// Withdrawable is true when a withdraw may be submitted for the record.
func (l LockRecord) Withdrawable(now time.Time) bool {
	return l.IsUnlocked(now) && !l.IsWithdrawn
}

// OperationKind distinguishes tracked in-flight operations.
type OperationKind string

const (
	OperationCreate   OperationKind = "create"
	OperationWithdraw OperationKind = "withdraw"
)

// PendingOperation is a create or withdraw that has been submitted and not
// yet resolved. Target is the asset for creates and the lock ID for withdrawals.
type PendingOperation struct {
	Kind      OperationKind `json:"kind"`
	Target    string        `json:"target"`
	StartedAt time.Time     `json:"started_at"`
}

// OperationState is the lifecycle position of one requested operation.
type OperationState string

const (
	StateIdle       OperationState = "idle"
	StateValidating OperationState = "validating"
	StateSubmitting OperationState = "submitting"
	StateSucceeded  OperationState = "succeeded"
	StateFailed     OperationState = "failed"
)

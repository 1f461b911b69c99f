// Package ledger defines the system-of-record contract for locks and ships
// the drivers tlw can run against.
//
// A ledger is authoritative: it assigns lock identifiers, enforces that a
// lock is withdrawn only once, only by its owner and only after unlock, and
// returns the owner's locks in creation order.
package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/timelock-wallet/tlw/pkg/model"
)

// CreateRequest asks the ledger to lock funds until UnlockTimestamp.
type CreateRequest struct {
	Owner           string
	Amount          decimal.Decimal
	Asset           model.Asset
	UnlockTimestamp int64
}

// CreateReceipt identifies a newly created lock.
type CreateReceipt struct {
	LockID    string `json:"lock_id"`
	Signature string `json:"signature"`
}

// WithdrawReceipt confirms a withdrawal.
type WithdrawReceipt struct {
	Signature string `json:"signature"`
}

// Ledger is the system of record for lock records.
//
// Errors from Withdraw are classified as E_LOCK_NOT_FOUND, E_LOCKED or
// E_ALREADY_WITHDRAWN when the request itself is refused.
type Ledger interface {
	CreateLock(ctx context.Context, req CreateRequest) (CreateReceipt, error)
	Withdraw(ctx context.Context, owner, lockID string) (WithdrawReceipt, error)
	FetchLocks(ctx context.Context, owner string) ([]model.LockRecord, error)
	Close() error
}

// newLockID returns a fresh lock identifier.
func newLockID() string {
	return "lock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newSignature returns a fresh submission signature.
func newSignature() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

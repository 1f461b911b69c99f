package ledger

import (
	"time"

	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// book is the in-process lock table shared by the memory and file drivers.
// Callers serialize access.
type book struct {
	FormatVersion int                `json:"format_version"`
	Locks         []model.LockRecord `json:"locks"`
}

const bookFormatVersion = 1

func (b *book) create(req CreateRequest, now time.Time) CreateReceipt {
	rec := model.LockRecord{
		ID:              newLockID(),
		Owner:           req.Owner,
		Amount:          req.Amount,
		Asset:           req.Asset,
		UnlockTimestamp: req.UnlockTimestamp,
		Signature:       newSignature(),
		CreatedAt:       now.UTC(),
	}
	b.Locks = append(b.Locks, rec)
	return CreateReceipt{LockID: rec.ID, Signature: rec.Signature}
}

func (b *book) withdraw(owner, lockID string, now time.Time) (WithdrawReceipt, error) {
	for i := range b.Locks {
		rec := &b.Locks[i]
		if rec.ID != lockID || rec.Owner != owner {
			continue
		}
		if rec.IsWithdrawn {
			return WithdrawReceipt{}, errclass.ErrWithdrawn.WithMessagef("lock %s was already withdrawn", lockID)
		}
		if !rec.IsUnlocked(now) {
			return WithdrawReceipt{}, errclass.ErrLocked.WithMessagef("lock %s unlocks at %s", lockID, rec.UnlockTime().Format(time.RFC3339))
		}
		rec.IsWithdrawn = true
		return WithdrawReceipt{Signature: newSignature()}, nil
	}
	return WithdrawReceipt{}, errclass.ErrLockNotFound.WithMessagef("lock %s not found", lockID)
}

func (b *book) fetch(owner string) []model.LockRecord {
	out := []model.LockRecord{}
	for _, rec := range b.Locks {
		if rec.Owner == owner {
			out = append(out, rec)
		}
	}
	return out
}

// Package ledgertest provides a scriptable ledger for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/internal/ledger"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// Op names a ledger entry point.
type Op int

const (
	OpCreate Op = iota
	OpWithdraw
	OpFetch
	numOps
)

// Fake is an in-memory ledger with call counters, injectable failures and
// gates that hold calls in flight until released.
type Fake struct {
	mu    sync.Mutex
	clock clock.PassiveClock
	locks []model.LockRecord
	seq   int
	errs  [numOps]error
	gates [numOps]chan struct{}
	// fetches read the records, then wait here
	resultGate chan struct{}

	calls       [numOps]atomic.Int32
	inFlight    [numOps]atomic.Int32
	maxInFlight [numOps]atomic.Int32
}

var _ ledger.Ledger = (*Fake)(nil)

// New creates an empty fake ledger that judges unlock against clk.
func New(clk clock.PassiveClock) *Fake {
	return &Fake{clock: clk}
}

// Seed appends records verbatim, including ones a real ledger would refuse.
func (f *Fake) Seed(records ...model.LockRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append(f.locks, records...)
}

// Reset replaces every stored record.
func (f *Fake) Reset(records ...model.LockRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append([]model.LockRecord(nil), records...)
}

// FailWith makes every subsequent call to op return err. A nil err clears it.
func (f *Fake) FailWith(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

// Hold blocks every subsequent call to op until the returned release func is
// called or the call's context ends.
func (f *Fake) Hold(op Op) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[op] == gate {
				f.gates[op] = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// HoldFetchResult makes every subsequent fetch read the stored records and
// then block until release, so it returns what was stored when it began.
func (f *Fake) HoldFetchResult() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.resultGate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.resultGate == gate {
				f.resultGate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op Op) int { return int(f.calls[op].Load()) }

// InFlight returns how many calls to op are currently running.
func (f *Fake) InFlight(op Op) int { return int(f.inFlight[op].Load()) }

// MaxInFlight returns the highest concurrency ever observed for op.
func (f *Fake) MaxInFlight(op Op) int { return int(f.maxInFlight[op].Load()) }

func (f *Fake) enter(ctx context.Context, op Op) (func(), error) {
	f.calls[op].Add(1)
	n := f.inFlight[op].Add(1)
	for {
		m := f.maxInFlight[op].Load()
		if n <= m || f.maxInFlight[op].CompareAndSwap(m, n) {
			break
		}
	}
	leave := func() { f.inFlight[op].Add(-1) }

	f.mu.Lock()
	gate, err := f.gates[op], f.errs[op]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			leave()
			return nil, ctx.Err()
		}
	}
	if err != nil {
		leave()
		return nil, err
	}
	return leave, nil
}

// CreateLock implements ledger.Ledger.
func (f *Fake) CreateLock(ctx context.Context, req ledger.CreateRequest) (ledger.CreateReceipt, error) {
	leave, err := f.enter(ctx, OpCreate)
	if err != nil {
		return ledger.CreateReceipt{}, err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	rec := model.LockRecord{
		ID:              fmt.Sprintf("lock-%d", f.seq),
		Owner:           req.Owner,
		Amount:          req.Amount,
		Asset:           req.Asset,
		UnlockTimestamp: req.UnlockTimestamp,
		Signature:       fmt.Sprintf("sig-create-%d", f.seq),
		CreatedAt:       f.clock.Now().UTC(),
	}
	f.locks = append(f.locks, rec)
	return ledger.CreateReceipt{LockID: rec.ID, Signature: rec.Signature}, nil
}

// Withdraw implements ledger.Ledger.
func (f *Fake) Withdraw(ctx context.Context, owner, lockID string) (ledger.WithdrawReceipt, error) {
	leave, err := f.enter(ctx, OpWithdraw)
	if err != nil {
		return ledger.WithdrawReceipt{}, err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.locks {
		rec := &f.locks[i]
		if rec.ID != lockID || rec.Owner != owner {
			continue
		}
		if rec.IsWithdrawn {
			return ledger.WithdrawReceipt{}, errclass.ErrWithdrawn.WithMessagef("lock %s was already withdrawn", lockID)
		}
		if !rec.IsUnlocked(f.clock.Now()) {
			return ledger.WithdrawReceipt{}, errclass.ErrLocked.WithMessagef("lock %s is still locked", lockID)
		}
		rec.IsWithdrawn = true
		f.seq++
		return ledger.WithdrawReceipt{Signature: fmt.Sprintf("sig-withdraw-%d", f.seq)}, nil
	}
	return ledger.WithdrawReceipt{}, errclass.ErrLockNotFound.WithMessagef("lock %s not found", lockID)
}

// FetchLocks implements ledger.Ledger.
func (f *Fake) FetchLocks(ctx context.Context, owner string) ([]model.LockRecord, error) {
	leave, err := f.enter(ctx, OpFetch)
	if err != nil {
		return nil, err
	}
	defer leave()

	f.mu.Lock()
	out := []model.LockRecord{}
	for _, rec := range f.locks {
		if rec.Owner == owner {
			out = append(out, rec)
		}
	}
	gate := f.resultGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

// Close implements ledger.Ledger.
func (f *Fake) Close() error { return nil }

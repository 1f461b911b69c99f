package ledger

import (
	"context"
	"sync"

	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/pkg/model"
)

// Memory is a process-local ledger. State is lost on exit.
type Memory struct {
	mu    sync.Mutex
	clock clock.PassiveClock
	book  book
}

// NewMemory creates an empty in-memory ledger.
func NewMemory(clk clock.PassiveClock) *Memory {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Memory{clock: clk, book: book{FormatVersion: bookFormatVersion}}
}

// CreateLock implements Ledger.
func (m *Memory) CreateLock(ctx context.Context, req CreateRequest) (CreateReceipt, error) {
	if err := ctx.Err(); err != nil {
		return CreateReceipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.create(req, m.clock.Now()), nil
}

// Withdraw implements Ledger.
func (m *Memory) Withdraw(ctx context.Context, owner, lockID string) (WithdrawReceipt, error) {
	if err := ctx.Err(); err != nil {
		return WithdrawReceipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.withdraw(owner, lockID, m.clock.Now())
}

// FetchLocks implements Ledger.
func (m *Memory) FetchLocks(ctx context.Context, owner string) ([]model.LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.fetch(owner), nil
}

// Close implements Ledger.
func (m *Memory) Close() error { return nil }

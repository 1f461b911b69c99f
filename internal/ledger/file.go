package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/fsutil"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// File is a ledger persisted as a JSON document. Every mutation rewrites the
// document atomically, so a crash leaves either the old or the new book.
type File struct {
	mu    sync.Mutex
	path  string
	clock clock.PassiveClock
}

// NewFile opens (lazily) the ledger stored at path.
func NewFile(path string, clk clock.PassiveClock) *File {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &File{path: path, clock: clk}
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) load() (*book, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &book{FormatVersion: bookFormatVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var b book
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", f.path, err)
	}
	if b.FormatVersion > bookFormatVersion {
		return nil, errclass.ErrFormatUnsupported.WithMessagef("ledger format %d is newer than supported %d", b.FormatVersion, bookFormatVersion)
	}
	return &b, nil
}

func (f *File) save(b *book) error {
	b.FormatVersion = bookFormatVersion
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := fsutil.AtomicWrite(f.path, data, 0600); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// CreateLock implements Ledger.
func (f *File) CreateLock(ctx context.Context, req CreateRequest) (CreateReceipt, error) {
	if err := ctx.Err(); err != nil {
		return CreateReceipt{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := f.load()
	if err != nil {
		return CreateReceipt{}, err
	}
	receipt := b.create(req, f.clock.Now())
	if err := f.save(b); err != nil {
		return CreateReceipt{}, err
	}
	return receipt, nil
}

// Withdraw implements Ledger.
func (f *File) Withdraw(ctx context.Context, owner, lockID string) (WithdrawReceipt, error) {
	if err := ctx.Err(); err != nil {
		return WithdrawReceipt{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := f.load()
	if err != nil {
		return WithdrawReceipt{}, err
	}
	receipt, err := b.withdraw(owner, lockID, f.clock.Now())
	if err != nil {
		return WithdrawReceipt{}, err
	}
	if err := f.save(b); err != nil {
		return WithdrawReceipt{}, err
	}
	return receipt, nil
}

// FetchLocks implements Ledger.
func (f *File) FetchLocks(ctx context.Context, owner string) ([]model.LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := f.load()
	if err != nil {
		return nil, err
	}
	return b.fetch(owner), nil
}

// Close implements Ledger.
func (f *File) Close() error { return nil }

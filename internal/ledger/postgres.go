package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS tlw_locks (
    seq                BIGSERIAL PRIMARY KEY,
    id                 TEXT        NOT NULL UNIQUE,
    owner              TEXT        NOT NULL,
    amount             NUMERIC     NOT NULL CHECK (amount > 0),
    asset              TEXT        NOT NULL,
    unlock_ts          BIGINT      NOT NULL,
    is_withdrawn       BOOLEAN     NOT NULL DEFAULT FALSE,
    signature          TEXT        NOT NULL,
    withdraw_signature TEXT,
    created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS tlw_locks_owner_seq_idx ON tlw_locks (owner, seq);
`

// Postgres is a ledger backed by a PostgreSQL table.
type Postgres struct {
	pool  *pgxpool.Pool
	clock clock.PassiveClock
}

// NewPostgres connects to dsn. Call Migrate before first use on a fresh
// database.
func NewPostgres(ctx context.Context, dsn string, clk clock.PassiveClock) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect ledger database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Postgres{pool: pool, clock: clk}, nil
}

// Migrate creates the lock table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// CreateLock implements Ledger.
func (p *Postgres) CreateLock(ctx context.Context, req CreateRequest) (CreateReceipt, error) {
	receipt := CreateReceipt{LockID: newLockID(), Signature: newSignature()}
	_, err := p.pool.Exec(ctx, `
        INSERT INTO tlw_locks (id, owner, amount, asset, unlock_ts, signature, created_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
    `, receipt.LockID, req.Owner, req.Amount.String(), string(req.Asset), req.UnlockTimestamp, receipt.Signature, p.clock.Now().UTC())
	if err != nil {
		return CreateReceipt{}, fmt.Errorf("insert lock: %w", err)
	}
	return receipt, nil
}

// Withdraw implements Ledger. The row is locked for the duration of the
// check-and-set so concurrent withdrawals of one lock cannot both succeed.
func (p *Postgres) Withdraw(ctx context.Context, owner, lockID string) (WithdrawReceipt, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return WithdrawReceipt{}, fmt.Errorf("begin withdraw: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		unlockTS  int64
		withdrawn bool
	)
	err = tx.QueryRow(ctx, `
        SELECT unlock_ts, is_withdrawn FROM tlw_locks
        WHERE id = $1 AND owner = $2
        FOR UPDATE
    `, lockID, owner).Scan(&unlockTS, &withdrawn)
	if errors.Is(err, pgx.ErrNoRows) {
		return WithdrawReceipt{}, errclass.ErrLockNotFound.WithMessagef("lock %s not found", lockID)
	}
	if err != nil {
		return WithdrawReceipt{}, fmt.Errorf("select lock: %w", err)
	}

	rec := model.LockRecord{UnlockTimestamp: unlockTS, IsWithdrawn: withdrawn}
	if rec.IsWithdrawn {
		return WithdrawReceipt{}, errclass.ErrWithdrawn.WithMessagef("lock %s was already withdrawn", lockID)
	}
	if !rec.IsUnlocked(p.clock.Now()) {
		return WithdrawReceipt{}, errclass.ErrLocked.WithMessagef("lock %s unlocks at %s", lockID, rec.UnlockTime().Format(time.RFC3339))
	}

	receipt := WithdrawReceipt{Signature: newSignature()}
	if _, err := tx.Exec(ctx, `
        UPDATE tlw_locks SET is_withdrawn = TRUE, withdraw_signature = $2 WHERE id = $1
    `, lockID, receipt.Signature); err != nil {
		return WithdrawReceipt{}, fmt.Errorf("update lock: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return WithdrawReceipt{}, fmt.Errorf("commit withdraw: %w", err)
	}
	return receipt, nil
}

// FetchLocks implements Ledger.
func (p *Postgres) FetchLocks(ctx context.Context, owner string) ([]model.LockRecord, error) {
	rows, err := p.pool.Query(ctx, `
        SELECT id, owner, amount::text, asset, unlock_ts, is_withdrawn, signature, created_at
        FROM tlw_locks WHERE owner = $1 ORDER BY seq
    `, owner)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}
	defer rows.Close()

	out := []model.LockRecord{}
	for rows.Next() {
		var (
			rec    model.LockRecord
			amount string
			asset  string
		)
		if err := rows.Scan(&rec.ID, &rec.Owner, &amount, &asset, &rec.UnlockTimestamp, &rec.IsWithdrawn, &rec.Signature, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("lock %s amount %q: %w", rec.ID, amount, err)
		}
		rec.Asset = model.Asset(asset)
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locks: %w", err)
	}
	return out, nil
}

// Close implements Ledger.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Package coordinator runs create and withdraw intents for one owner
// session: local validation, one ledger call, then a full cache refresh.
//
// Nothing is written to the cache directly. A created or withdrawn lock only
// becomes visible through the refresh that follows a confirmed ledger call.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/internal/ledger"
	"github.com/timelock-wallet/tlw/internal/normalize"
	"github.com/timelock-wallet/tlw/internal/notify"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/metrics"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// Submitter is the part of the ledger the coordinator writes through.
type Submitter interface {
	CreateLock(ctx context.Context, req ledger.CreateRequest) (ledger.CreateReceipt, error)
	Withdraw(ctx context.Context, owner, lockID string) (ledger.WithdrawReceipt, error)
}

// View is the lock cache as seen by the coordinator.
type View interface {
	Lookup(id string) (model.LockRecord, bool)
	RefreshAfterWrite(ctx context.Context) ([]model.LockRecord, error)
}

// Options configures a Coordinator.
type Options struct {
	Clock   clock.PassiveClock
	Policy  normalize.Policy
	Surface *notify.Surface
	Metrics *metrics.Registry
	Log     *logging.Logger
}

// CreateResult identifies a lock the ledger accepted.
type CreateResult struct {
	LockID          string `json:"lock_id"`
	Signature       string `json:"signature"`
	UnlockTimestamp int64  `json:"unlock_timestamp"`
}

// WithdrawResult confirms a withdrawal.
type WithdrawResult struct {
	LockID    string `json:"lock_id"`
	Signature string `json:"signature"`
}

const createKey = "create"

func withdrawKey(id string) string { return "withdraw:" + id }

// Coordinator serializes intents per target: one create at a time, and one
// withdraw per lock at a time. Intents on different targets run concurrently.
type Coordinator struct {
	owner   string
	ledger  Submitter
	view    View
	clock   clock.PassiveClock
	policy  normalize.Policy
	surface *notify.Surface
	metrics *metrics.Registry
	log     *logging.Logger

	mu      sync.Mutex
	pending map[string]model.PendingOperation
	states  map[string]model.OperationState
	closed  bool
}

// New creates a coordinator acting for owner.
func New(owner string, l Submitter, view View, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Policy == nil {
		opts.Policy = normalize.StaticPolicy{}
	}
	if opts.Surface == nil {
		opts.Surface = notify.New(opts.Clock)
	}
	if opts.Log == nil {
		opts.Log = logging.Global()
	}
	return &Coordinator{
		owner:   owner,
		ledger:  l,
		view:    view,
		clock:   opts.Clock,
		policy:  opts.Policy,
		surface: opts.Surface,
		metrics: opts.Metrics,
		log:     opts.Log.WithFields(map[string]any{"component": "coordinator", "owner": owner}),
		pending: map[string]model.PendingOperation{},
		states:  map[string]model.OperationState{},
	}
}

// CreateLock validates req, submits it and refreshes the cache on success.
func (c *Coordinator) CreateLock(ctx context.Context, req normalize.Request) (CreateResult, error) {
	symbol := req.Asset.Symbol()
	failure := model.Notification{
		Topic: model.TopicCreateFailed,
		Title: fmt.Sprintf("Failed to create %s timelock", symbol),
		Owner: c.owner,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return CreateResult{}, c.reject(model.OperationCreate, failure, errclass.ErrNotConnected.WithMessage("wallet not connected"))
	}
	if _, busy := c.pending[createKey]; busy {
		c.mu.Unlock()
		return CreateResult{}, c.reject(model.OperationCreate, failure, errclass.ErrOperationInProgress.WithMessage("a lock is already being created"))
	}
	c.states[createKey] = model.StateValidating
	now := c.clock.Now()
	unlockTS, err := normalize.Normalize(req, c.policy, now)
	if err != nil {
		c.states[createKey] = model.StateFailed
		c.mu.Unlock()
		failure.Topic = model.TopicInvalidInput
		failure.Title = "Invalid lock request"
		return CreateResult{}, c.reject(model.OperationCreate, failure, err)
	}
	c.beginLocked(createKey, model.PendingOperation{Kind: model.OperationCreate, Target: string(req.Asset), StartedAt: now})
	c.mu.Unlock()

	c.log.Info("submitting lock", map[string]any{
		"asset":     string(req.Asset),
		"amount":    req.Amount.String(),
		"unlock_ts": unlockTS,
	})
	receipt, err := c.ledger.CreateLock(ctx, ledger.CreateRequest{
		Owner:           c.owner,
		Amount:          req.Amount,
		Asset:           req.Asset,
		UnlockTimestamp: unlockTS,
	})
	c.finish(createKey, model.OperationCreate, now, err)

	if err != nil {
		lerr := errclass.ErrLedger.Wrap(err)
		c.log.ErrorErr("create lock failed", err, map[string]any{"asset": string(req.Asset)})
		c.surface.SetError(lerr)
		c.surface.Failure(failure, lerr)
		return CreateResult{}, lerr
	}

	c.surface.Success(model.Notification{
		Topic:       model.TopicLockCreated,
		Title:       fmt.Sprintf("%s timelock created", symbol),
		Description: fmt.Sprintf("account %s, signature %s", receipt.LockID, receipt.Signature),
		Owner:       c.owner,
		LockID:      receipt.LockID,
	})
	c.refresh(ctx, createKey)
	return CreateResult{LockID: receipt.LockID, Signature: receipt.Signature, UnlockTimestamp: unlockTS}, nil
}

// Withdraw submits a withdrawal for a cached, unlocked, not yet withdrawn
// lock and refreshes the cache on success.
func (c *Coordinator) Withdraw(ctx context.Context, lockID string) (WithdrawResult, error) {
	key := withdrawKey(lockID)
	failure := model.Notification{
		Topic:  model.TopicWithdrawFailed,
		Title:  "Failed to withdraw",
		Owner:  c.owner,
		LockID: lockID,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return WithdrawResult{}, c.reject(model.OperationWithdraw, failure, errclass.ErrNotConnected.WithMessage("wallet not connected"))
	}
	now := c.clock.Now()
	if err := withdrawable(c.view, lockID, now); err != nil {
		if _, busy := c.pending[key]; !busy {
			c.states[key] = model.StateFailed
		}
		c.mu.Unlock()
		return WithdrawResult{}, c.reject(model.OperationWithdraw, failure, err)
	}
	if _, busy := c.pending[key]; busy {
		c.mu.Unlock()
		return WithdrawResult{}, c.reject(model.OperationWithdraw, failure, errclass.ErrOperationInProgress.WithMessagef("withdrawal of %s already in progress", lockID))
	}
	c.beginLocked(key, model.PendingOperation{Kind: model.OperationWithdraw, Target: lockID, StartedAt: now})
	c.mu.Unlock()

	c.log.Info("submitting withdrawal", map[string]any{"lock_id": lockID})
	receipt, err := c.ledger.Withdraw(ctx, c.owner, lockID)
	c.finish(key, model.OperationWithdraw, now, err)

	if err != nil {
		lerr := errclass.ErrLedger.Wrap(err)
		c.log.ErrorErr("withdraw failed", err, map[string]any{"lock_id": lockID})
		c.surface.SetError(lerr)
		c.surface.Failure(failure, lerr)
		return WithdrawResult{}, lerr
	}

	c.surface.Success(model.Notification{
		Topic:       model.TopicLockWithdrawn,
		Title:       "Withdrawal complete",
		Description: fmt.Sprintf("lock %s, signature %s", lockID, receipt.Signature),
		Owner:       c.owner,
		LockID:      lockID,
	})
	c.refresh(ctx, key)
	return WithdrawResult{LockID: lockID, Signature: receipt.Signature}, nil
}

func withdrawable(view View, lockID string, now time.Time) error {
	rec, ok := view.Lookup(lockID)
	switch {
	case !ok:
		return errclass.ErrNotWithdrawable.WithMessagef("lock %s is not in the current view", lockID)
	case rec.IsWithdrawn:
		return errclass.ErrNotWithdrawable.WithMessagef("lock %s was already withdrawn", lockID)
	case !rec.IsUnlocked(now):
		return errclass.ErrNotWithdrawable.WithMessagef("lock %s unlocks at %s", lockID, rec.UnlockTime().Format(time.RFC3339))
	}
	return nil
}

// Pending returns the operations awaiting a ledger response or the refresh
// that follows a confirmed one, oldest first.
func (c *Coordinator) Pending() []model.PendingOperation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.PendingOperation, 0, len(c.pending))
	for _, op := range c.pending {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// State returns where the latest intent for a target stands. The target is
// ignored for creates.
func (c *Coordinator) State(kind model.OperationKind, target string) model.OperationState {
	key := createKey
	if kind == model.OperationWithdraw {
		key = withdrawKey(target)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[key]; ok {
		return st
	}
	return model.StateIdle
}

// Close rejects every later intent with E_NOT_CONNECTED. Calls already at
// the ledger run to completion.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Coordinator) beginLocked(key string, op model.PendingOperation) {
	c.pending[key] = op
	c.states[key] = model.StateSubmitting
	if c.metrics != nil {
		c.metrics.SetPendingOperations(len(c.pending))
	}
}

// finish records the ledger outcome. A failed intent is released at once; a
// confirmed one stays pending until refresh has loaded its effect.
func (c *Coordinator) finish(key string, kind model.OperationKind, started time.Time, err error) {
	c.mu.Lock()
	if err != nil {
		delete(c.pending, key)
		c.states[key] = model.StateFailed
	} else {
		c.states[key] = model.StateSucceeded
	}
	n := len(c.pending)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetPendingOperations(n)
		c.metrics.RecordOperation(string(kind), err == nil, c.clock.Since(started))
	}
}

func (c *Coordinator) release(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	n := len(c.pending)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetPendingOperations(n)
	}
}

// reject reports a locally detected failure. It never reaches the ledger and
// does not touch the retained error.
func (c *Coordinator) reject(kind model.OperationKind, n model.Notification, err error) error {
	c.log.Warn("intent rejected", map[string]any{"op": string(kind), "code": errclass.CodeOf(err), "reason": errclass.ReasonOf(err)})
	if c.metrics != nil {
		c.metrics.RecordRejected(string(kind))
	}
	c.surface.Failure(n, err)
	return err
}

// refresh reloads the cache after a confirmed ledger call and then releases
// key. A refresh failure is reported by the cache itself and does not fail
// the intent.
func (c *Coordinator) refresh(ctx context.Context, key string) {
	defer c.release(key)
	if _, err := c.view.RefreshAfterWrite(ctx); err != nil {
		c.log.Warn("refresh after operation failed", map[string]any{"error": err.Error()})
	}
}

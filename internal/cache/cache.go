// Package cache holds the per-owner snapshot of lock records read from the
// ledger.
//
// The snapshot is only ever replaced wholesale by a successful fetch.
// Concurrent refreshes share one in-flight fetch, a failed fetch keeps the
// previous snapshot, and a fetch that completes after Close is discarded.
// A refresh requested after a ledger write only settles for a fetch that
// began after the request.
package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/internal/notify"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/metrics"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// Fetcher reads an owner's locks from the system of record.
type Fetcher interface {
	FetchLocks(ctx context.Context, owner string) ([]model.LockRecord, error)
}

// Options configures a Cache. Zero values are usable.
type Options struct {
	Clock   clock.PassiveClock
	Surface *notify.Surface
	Metrics *metrics.Registry
	Log     *logging.Logger
}

// Cache is the lock snapshot for one owner session.
type Cache struct {
	owner   string
	fetcher Fetcher
	clock   clock.PassiveClock
	surface *notify.Surface
	metrics *metrics.Registry
	log     *logging.Logger

	group    singleflight.Group
	inflight atomic.Int32

	// fetches run on this context so a caller giving up does not abort the
	// shared fetch; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	records []model.LockRecord
	index   map[string]int
	lastErr error
	gen     uint64 // fetches started so far
	closed  bool
	subs    []func([]model.LockRecord)
}

// New creates an empty cache for owner. Nothing is fetched until Refresh.
func New(owner string, fetcher Fetcher, opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Log == nil {
		opts.Log = logging.Global()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		owner:   owner,
		fetcher: fetcher,
		clock:   opts.Clock,
		surface: opts.Surface,
		metrics: opts.Metrics,
		log:     opts.Log.WithFields(map[string]any{"component": "cache", "owner": owner}),
		ctx:     ctx,
		cancel:  cancel,
		index:   map[string]int{},
	}
}

// Owner returns the identity this cache is scoped to.
func (c *Cache) Owner() string { return c.owner }

// OnChange registers fn to run after every successful replace. fn receives
// its own copy of the new snapshot.
func (c *Cache) OnChange(fn func([]model.LockRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Refresh fetches the owner's locks and replaces the snapshot. If a fetch is
// already running the call waits for that one instead of starting another.
// ctx only bounds how long this caller waits.
func (c *Cache) Refresh(ctx context.Context) ([]model.LockRecord, error) {
	return c.refresh(ctx, 0)
}

// RefreshAfterWrite is Refresh for a caller that just changed the ledger. A
// fetch that started before the call may predate the write, so it is waited
// out and a newer one is joined or started instead.
func (c *Cache) RefreshAfterWrite(ctx context.Context) ([]model.LockRecord, error) {
	c.mu.RLock()
	minGen := c.gen + 1
	c.mu.RUnlock()
	return c.refresh(ctx, minGen)
}

type fetchResult struct {
	gen     uint64
	records []model.LockRecord
}

func (c *Cache) refresh(ctx context.Context, minGen uint64) ([]model.LockRecord, error) {
	for {
		if c.isClosed() {
			return nil, errclass.ErrNotConnected.WithMessage("no active session")
		}
		if c.inflight.Load() > 0 && c.metrics != nil {
			c.metrics.RecordCoalesced()
		}

		ch := c.group.DoChan(c.owner, func() (any, error) {
			c.inflight.Add(1)
			defer c.inflight.Add(-1)
			c.mu.Lock()
			c.gen++
			gen := c.gen
			c.mu.Unlock()
			recs, err := c.fetch()
			return fetchResult{gen: gen, records: recs}, err
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if fr, _ := res.Val.(fetchResult); fr.gen < minGen {
			continue
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.(fetchResult).records), nil
	}
}

func (c *Cache) fetch() ([]model.LockRecord, error) {
	start := c.clock.Now()
	recs, err := c.fetcher.FetchLocks(c.ctx, c.owner)
	now := c.clock.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.log.Debug("discarding refresh result after session end")
		return nil, errclass.ErrNotConnected.WithMessage("session ended during refresh")
	}
	if err != nil {
		ferr := errclass.ErrFetch.Wrap(err)
		c.lastErr = ferr
		c.mu.Unlock()

		c.log.ErrorErr("fetch locks failed", err)
		if c.metrics != nil {
			c.metrics.RecordRefresh(false, now.Sub(start))
		}
		if c.surface != nil {
			c.surface.SetError(ferr)
			c.surface.Failure(model.Notification{
				Topic: model.TopicRefreshFailed,
				Title: "Failed to fetch locks",
				Owner: c.owner,
			}, ferr)
		}
		return nil, ferr
	}

	c.records = clone(recs)
	c.index = make(map[string]int, len(c.records))
	for i, r := range c.records {
		c.index[r.ID] = i
	}
	c.lastErr = nil
	snapshot := clone(c.records)
	subs := slices.Clone(c.subs)
	c.mu.Unlock()

	c.log.Debug("locks refreshed", map[string]any{"count": len(snapshot)})
	if c.metrics != nil {
		c.metrics.RecordRefresh(true, now.Sub(start))
		c.metrics.SetLocks(countByStatus(snapshot, now))
	}
	c.reportAnomalies(snapshot, now)

	for _, fn := range subs {
		fn(clone(snapshot))
	}
	return snapshot, nil
}

// reportAnomalies surfaces records marked withdrawn before their unlock
// instant. The records are kept exactly as fetched.
func (c *Cache) reportAnomalies(records []model.LockRecord, now time.Time) {
	var ids []string
	for _, r := range records {
		if r.Anomalous(now) {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	err := errclass.ErrLockAnomaly.WithMessagef("ledger reports withdrawn before unlock: %s", strings.Join(ids, ", "))
	c.log.Warn("lock anomaly", map[string]any{"lock_ids": ids})
	if c.surface == nil {
		return
	}
	c.surface.SetError(err)
	n := model.Notification{
		Topic: model.TopicLockAnomaly,
		Title: "Inconsistent lock state",
		Owner: c.owner,
	}
	if len(ids) == 1 {
		n.LockID = ids[0]
	}
	c.surface.Failure(n, err)
}

// Snapshot returns a copy of the current records in ledger order.
func (c *Cache) Snapshot() []model.LockRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.records)
}

// Lookup returns the cached record with id.
func (c *Cache) Lookup(id string) (model.LockRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return model.LockRecord{}, false
	}
	return c.records[i], true
}

// LastError returns the error of the most recent fetch, or nil if it
// succeeded.
func (c *Cache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Close empties the cache and makes any in-flight fetch result be dropped.
// Further refreshes fail with E_NOT_CONNECTED.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.records = nil
	c.index = map[string]int{}
	c.subs = nil
	c.mu.Unlock()
	c.cancel()
}

func (c *Cache) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func clone(recs []model.LockRecord) []model.LockRecord {
	out := make([]model.LockRecord, len(recs))
	copy(out, recs)
	return out
}

func countByStatus(recs []model.LockRecord, now time.Time) map[string]int {
	counts := map[string]int{}
	for _, r := range recs {
		counts[string(r.Status(now))]++
	}
	return counts
}

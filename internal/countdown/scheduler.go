package countdown

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/metrics"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// Default cadence.
const (
	DefaultTickInterval = time.Second
	DefaultRefreshDelay = 2 * time.Second
)

// Source supplies the records to count down.
type Source interface {
	Snapshot() []model.LockRecord
}

// RefreshFunc reloads the source. It is called at most once per expiry cycle.
type RefreshFunc func(ctx context.Context) error

// Options configures a Scheduler. A zero TickInterval means
// DefaultTickInterval; a zero RefreshDelay refreshes immediately.
type Options struct {
	Clock        clock.WithTickerAndDelayedExecution
	TickInterval time.Duration
	RefreshDelay time.Duration
	Metrics      *metrics.Registry
	Log          *logging.Logger
	// OnTick runs after every tick outside the scheduler's lock. It must not
	// call Stop.
	OnTick func(Result)
}

// Scheduler runs a ticker while any record is still counting down and
// schedules one delayed refresh per batch of expirations.
//
// The ticker only exists while there is something to count; Sync starts or
// stops it after the source changes. After Stop no tick callback runs and no
// new refresh is started.
type Scheduler struct {
	clock    clock.WithTickerAndDelayedExecution
	source   Source
	refresh  RefreshFunc
	interval time.Duration
	delay    time.Duration
	metrics  *metrics.Registry
	log      *logging.Logger
	onTick   func(Result)

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	remaining    map[string]int64
	ticker       clock.Ticker
	tickStop     chan struct{}
	tickDone     chan struct{}
	tickGen      int
	refreshTimer clock.Timer
	stopped      bool
}

// New creates a stopped-ticker scheduler. Call Sync to evaluate the source.
func New(source Source, refresh RefreshFunc, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.RefreshDelay < 0 {
		opts.RefreshDelay = 0
	}
	if opts.Log == nil {
		opts.Log = logging.Global()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:     opts.Clock,
		source:    source,
		refresh:   refresh,
		interval:  opts.TickInterval,
		delay:     opts.RefreshDelay,
		metrics:   opts.Metrics,
		log:       opts.Log.WithFields(map[string]any{"component": "countdown"}),
		onTick:    opts.OnTick,
		ctx:       ctx,
		cancel:    cancel,
		remaining: map[string]int64{},
	}
}

// Sync re-evaluates the source, usually right after it was refreshed.
func (s *Scheduler) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.advanceLocked()
}

// Remaining returns the last computed seconds left for id, 0 if unknown.
func (s *Scheduler) Remaining(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining[id]
}

// Snapshot returns a copy of every computed remaining value.
func (s *Scheduler) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.remaining))
	for k, v := range s.remaining {
		out[k] = v
	}
	return out
}

// Running reports whether the ticker is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticker != nil
}

// RefreshPending reports whether an expiry refresh is scheduled.
func (s *Scheduler) RefreshPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshTimer != nil
}

// Stop tears the scheduler down. It returns once the tick loop has exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	done := s.stopTickerLocked()
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	s.remaining = map[string]int64{}
	s.cancel()
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	if s.metrics != nil {
		s.metrics.SetPendingCountdowns(0)
	}
}

func (s *Scheduler) advanceLocked() Result {
	res := Tick(s.source.Snapshot(), s.remaining, s.clock.Now())
	s.remaining = res.Remaining

	if n := res.Expired.Len(); n > 0 {
		s.log.Info("countdown expired", map[string]any{"lock_ids": sortedIDs(res)})
		if s.metrics != nil {
			s.metrics.RecordExpirations(n)
		}
		s.scheduleRefreshLocked()
	}
	switch {
	case res.Pending > 0 && s.ticker == nil:
		s.startTickerLocked()
	case res.Pending == 0 && s.ticker != nil:
		s.stopTickerLocked()
	}
	if s.metrics != nil {
		s.metrics.SetPendingCountdowns(res.Pending)
	}
	return res
}

func (s *Scheduler) startTickerLocked() {
	s.tickGen++
	t := s.clock.NewTicker(s.interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.ticker, s.tickStop, s.tickDone = t, stop, done
	go s.loop(s.tickGen, t, stop, done)
}

// stopTickerLocked returns the channel closed when the loop exits.
func (s *Scheduler) stopTickerLocked() chan struct{} {
	if s.ticker == nil {
		return nil
	}
	s.ticker.Stop()
	close(s.tickStop)
	done := s.tickDone
	s.ticker, s.tickStop, s.tickDone = nil, nil, nil
	s.tickGen++
	return done
}

func (s *Scheduler) loop(gen int, t clock.Ticker, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			s.tick(gen)
		}
	}
}

func (s *Scheduler) tick(gen int) {
	s.mu.Lock()
	if s.stopped || gen != s.tickGen {
		s.mu.Unlock()
		return
	}
	res := s.advanceLocked()
	onTick := s.onTick
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordTick()
	}
	if onTick != nil {
		onTick(res)
	}
}

// scheduleRefreshLocked arms the single expiry refresh. Expirations seen
// while it is armed join it.
func (s *Scheduler) scheduleRefreshLocked() {
	if s.refreshTimer != nil {
		return
	}
	// Fake clocks run AfterFunc callbacks inline, so hand off to a goroutine.
	s.refreshTimer = s.clock.AfterFunc(s.delay, func() { go s.fireRefresh() })
}

func (s *Scheduler) fireRefresh() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.refreshTimer = nil
	ctx := s.ctx
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordExpiryRefresh()
	}
	if err := s.refresh(ctx); err != nil {
		s.log.ErrorErr("expiry refresh failed", err)
	}
}

func sortedIDs(res Result) []string {
	return sets.List(res.Expired)
}

package timelock

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/internal/cache"
	"github.com/timelock-wallet/tlw/internal/coordinator"
	"github.com/timelock-wallet/tlw/internal/countdown"
	"github.com/timelock-wallet/tlw/internal/ledger"
	"github.com/timelock-wallet/tlw/internal/normalize"
	"github.com/timelock-wallet/tlw/internal/notify"
	"github.com/timelock-wallet/tlw/internal/session"
	"github.com/timelock-wallet/tlw/pkg/config"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/metrics"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// Options configures a Client.
type Options struct {
	Ledger       ledger.Ledger    // required
	Policy       normalize.Policy // minimum amounts; defaults to the config defaults
	Clock        clock.WithTickerAndDelayedExecution
	TickInterval time.Duration
	RefreshDelay time.Duration
	Metrics      *metrics.Registry
	Log          *logging.Logger
	Sinks        []notify.Sink
	// OnTick runs after every countdown tick. It must not call Disconnect.
	OnTick func(countdown.Result)
}

// OptionsFromConfig fills the policy and cadence from cfg.
func OptionsFromConfig(cfg *config.Config, l ledger.Ledger) (Options, error) {
	mins, err := cfg.MinimumAmounts()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Ledger:       l,
		Policy:       normalize.StaticPolicy(mins),
		TickInterval: cfg.TickInterval(),
		RefreshDelay: cfg.RefreshDelay(),
	}, nil
}

// Client is the lock-lifecycle API for one process. At most one owner
// session is active at a time; its cache, countdown and coordinator are
// built on Connect and torn down on Disconnect.
type Client struct {
	opts     Options
	clock    clock.WithTickerAndDelayedExecution
	log      *logging.Logger
	sessions *session.Manager
	surface  *notify.Surface
	unsub    func()

	mu     sync.RWMutex
	active *sessionState
}

type sessionState struct {
	session session.Session
	cache   *cache.Cache
	sched   *countdown.Scheduler
	coord   *coordinator.Coordinator
}

// New creates a client with no session.
func New(opts Options) (*Client, error) {
	if opts.Ledger == nil {
		return nil, errclass.ErrConfigInvalid.WithMessage("ledger is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Log == nil {
		opts.Log = logging.Global()
	}
	if opts.Policy == nil {
		mins, err := config.Default().MinimumAmounts()
		if err != nil {
			return nil, err
		}
		opts.Policy = normalize.StaticPolicy(mins)
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = countdown.DefaultTickInterval
	}

	c := &Client{
		opts:     opts,
		clock:    opts.Clock,
		log:      opts.Log,
		sessions: session.NewManager(opts.Clock),
		surface:  notify.New(opts.Clock),
	}
	for _, s := range opts.Sinks {
		c.surface.AddSink(s)
	}
	if opts.Metrics != nil {
		reg := opts.Metrics
		c.surface.AddSink(notify.SinkFunc(func(n model.Notification) {
			reg.RecordNotification(string(n.Kind))
		}))
	}
	c.unsub = c.sessions.Subscribe(c.onSession)
	return c, nil
}

// AddSink registers an extra notification sink.
func (c *Client) AddSink(s notify.Sink) {
	c.surface.AddSink(s)
}

// Connect starts a session for identity and loads its locks. A failed
// initial load leaves the session connected with an empty cache and the
// failure surfaced as the current error.
func (c *Client) Connect(ctx context.Context, identity string) (session.Session, error) {
	s, err := c.sessions.Connect(identity)
	if err != nil {
		c.surface.Failure(model.Notification{
			Topic: model.TopicInvalidInput,
			Title: "Invalid wallet identity",
		}, err)
		return session.Session{}, err
	}
	if st := c.current(); st != nil {
		if _, err := st.cache.Refresh(ctx); err != nil {
			c.log.Warn("initial refresh failed", map[string]any{"owner": s.Owner, "error": err.Error()})
		}
	}
	return s, nil
}

// Disconnect ends the session. The cache is empty and the countdown stopped
// by the time it returns.
func (c *Client) Disconnect() {
	c.sessions.Disconnect()
}

// Session returns the active session.
func (c *Client) Session() (session.Session, bool) {
	return c.sessions.Current()
}

func (c *Client) onSession(ev session.Event) {
	switch ev.Kind {
	case session.Connected:
		st := c.build(ev.Session)
		c.mu.Lock()
		c.active = st
		c.mu.Unlock()
		c.log.Info("session connected", map[string]any{"owner": ev.Session.Owner})
	case session.Disconnected:
		c.mu.Lock()
		st := c.active
		c.active = nil
		c.mu.Unlock()
		if st != nil {
			st.sched.Stop()
			st.coord.Close()
			st.cache.Close()
		}
		c.log.Info("session disconnected", map[string]any{"owner": ev.Session.Owner})
	}
}

func (c *Client) build(s session.Session) *sessionState {
	log := c.log.WithFields(map[string]any{"session_id": s.ID})
	lc := cache.New(s.Owner, c.opts.Ledger, cache.Options{
		Clock:   c.clock,
		Surface: c.surface,
		Metrics: c.opts.Metrics,
		Log:     log,
	})
	sched := countdown.New(lc, func(ctx context.Context) error {
		_, err := lc.Refresh(ctx)
		return err
	}, countdown.Options{
		Clock:        c.clock,
		TickInterval: c.opts.TickInterval,
		RefreshDelay: c.opts.RefreshDelay,
		Metrics:      c.opts.Metrics,
		Log:          log,
		OnTick:       c.opts.OnTick,
	})
	lc.OnChange(func([]model.LockRecord) { sched.Sync() })
	coord := coordinator.New(s.Owner, c.opts.Ledger, lc, coordinator.Options{
		Clock:   c.clock,
		Policy:  c.opts.Policy,
		Surface: c.surface,
		Metrics: c.opts.Metrics,
		Log:     log,
	})
	return &sessionState{session: s, cache: lc, sched: sched, coord: coord}
}

func (c *Client) current() *sessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Client) notConnected(n model.Notification) error {
	err := errclass.ErrNotConnected.WithMessage("wallet not connected")
	c.surface.Failure(n, err)
	return err
}

// CreateLock locks req.Amount of req.Asset for the requested duration.
func (c *Client) CreateLock(ctx context.Context, req normalize.Request) (coordinator.CreateResult, error) {
	st := c.current()
	if st == nil {
		return coordinator.CreateResult{}, c.notConnected(model.Notification{
			Topic: model.TopicCreateFailed,
			Title: "Failed to create " + req.Asset.Symbol() + " timelock",
		})
	}
	return st.coord.CreateLock(ctx, req)
}

// CreateLockFromForm parses raw form fields and creates the lock. Malformed
// fields fail with E_INVALID_INPUT before anything else happens.
func (c *Client) CreateLockFromForm(ctx context.Context, amount, asset, magnitude, unit string) (coordinator.CreateResult, error) {
	req, err := normalize.ParseRequest(amount, asset, magnitude, unit)
	if err != nil {
		c.surface.Failure(model.Notification{
			Topic: model.TopicInvalidInput,
			Title: "Invalid lock request",
		}, err)
		return coordinator.CreateResult{}, err
	}
	return c.CreateLock(ctx, req)
}

// Withdraw releases an unlocked lock.
func (c *Client) Withdraw(ctx context.Context, lockID string) (coordinator.WithdrawResult, error) {
	st := c.current()
	if st == nil {
		return coordinator.WithdrawResult{}, c.notConnected(model.Notification{
			Topic:  model.TopicWithdrawFailed,
			Title:  "Failed to withdraw",
			LockID: lockID,
		})
	}
	return st.coord.Withdraw(ctx, lockID)
}

// Refresh reloads the session's locks from the ledger.
func (c *Client) Refresh(ctx context.Context) ([]model.LockRecord, error) {
	st := c.current()
	if st == nil {
		return nil, c.notConnected(model.Notification{
			Topic: model.TopicRefreshFailed,
			Title: "Failed to fetch locks",
		})
	}
	return st.cache.Refresh(ctx)
}

// CurrentLocks returns the cached locks in ledger order. It is empty without
// a session.
func (c *Client) CurrentLocks() []model.LockRecord {
	st := c.current()
	if st == nil {
		return []model.LockRecord{}
	}
	return st.cache.Snapshot()
}

// RemainingSeconds returns the countdown for id, 0 once unlocked or unknown.
func (c *Client) RemainingSeconds(id string) int64 {
	st := c.current()
	if st == nil {
		return 0
	}
	return st.sched.Remaining(id)
}

// Countdown returns every computed countdown value.
func (c *Client) Countdown() map[string]int64 {
	st := c.current()
	if st == nil {
		return map[string]int64{}
	}
	return st.sched.Snapshot()
}

// Ticking reports whether the countdown ticker is running.
func (c *Client) Ticking() bool {
	st := c.current()
	return st != nil && st.sched.Running()
}

// Pending returns in-flight create and withdraw operations.
func (c *Client) Pending() []model.PendingOperation {
	st := c.current()
	if st == nil {
		return nil
	}
	return st.coord.Pending()
}

// State returns the latest state of an operation target.
func (c *Client) State(kind model.OperationKind, target string) model.OperationState {
	st := c.current()
	if st == nil {
		return model.StateIdle
	}
	return st.coord.State(kind, target)
}

// CurrentError returns the retained error, or nil.
func (c *Client) CurrentError() error {
	return c.surface.CurrentError()
}

// CurrentMessage returns the retained error's reason text.
func (c *Client) CurrentMessage() (string, bool) {
	return c.surface.CurrentMessage()
}

// ClearError drops the retained error.
func (c *Client) ClearError() {
	c.surface.ClearError()
}

// Close disconnects. The ledger stays open; its owner closes it.
func (c *Client) Close() error {
	c.Disconnect()
	c.unsub()
	return nil
}

package timelock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/timelock-wallet/tlw/internal/ledger/ledgertest"
	"github.com/timelock-wallet/tlw/internal/notify"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/metrics"
	"github.com/timelock-wallet/tlw/pkg/model"
	"github.com/timelock-wallet/tlw/pkg/timelock"
)

var epoch = time.Unix(1_700_000_000, 0)

type env struct {
	clock  *testclock.FakeClock
	ledger *ledgertest.Fake
	rec    *notify.Recorder
	client *timelock.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{clock: testclock.NewFakeClock(epoch), rec: &notify.Recorder{}}
	e.ledger = ledgertest.New(e.clock)
	c, err := timelock.New(timelock.Options{
		Ledger:  e.ledger,
		Clock:   e.clock,
		Metrics: metrics.NewRegistry(),
		Sinks:   []notify.Sink{e.rec},
	})
	require.NoError(t, err)
	e.client = c
	t.Cleanup(func() { _ = c.Close() })
	return e
}

func (e *env) connect(t *testing.T, owner string) {
	t.Helper()
	_, err := e.client.Connect(context.Background(), owner)
	require.NoError(t, err)
	e.rec.Reset()
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

func TestNew_RequiresLedger(t *testing.T) {
	_, err := timelock.New(timelock.Options{})
	assert.ErrorIs(t, err, errclass.ErrConfigInvalid)
}

func TestClient_CreateThenCountDownThenWithdraw(t *testing.T) {
	e := newEnv(t)
	e.connect(t, "alice")
	ctx := context.Background()

	res, err := e.client.CreateLockFromForm(ctx, "0.5", "sol", "1", "day")
	require.NoError(t, err)
	assert.Equal(t, epoch.Unix()+86400, res.UnlockTimestamp)

	locks := e.client.CurrentLocks()
	require.Len(t, locks, 1)
	assert.Equal(t, res.LockID, locks[0].ID)
	assert.Equal(t, int64(86400), e.client.RemainingSeconds(res.LockID))
	assert.True(t, e.client.Ticking())

	_, err = e.client.Withdraw(ctx, res.LockID)
	require.ErrorIs(t, err, errclass.ErrNotWithdrawable)
	assert.Equal(t, 0, e.ledger.Calls(ledgertest.OpWithdraw))

	e.clock.Step(86400 * time.Second)
	eventually(t, func() bool { return e.client.RemainingSeconds(res.LockID) == 0 }, "countdown should reach zero")
	eventually(t, func() bool { return !e.client.Ticking() }, "ticker should stop with nothing pending")

	e.rec.Reset()
	w, err := e.client.Withdraw(ctx, res.LockID)
	require.NoError(t, err)
	assert.NotEmpty(t, w.Signature)

	rec, ok := findLock(e.client.CurrentLocks(), res.LockID)
	require.True(t, ok)
	assert.True(t, rec.IsWithdrawn)

	succ := e.rec.Kind(model.NotificationSuccess)
	require.Len(t, succ, 1)
	assert.Equal(t, "Withdrawal complete", succ[0].Title)
}

func TestClient_BelowMinimumNeverReachesLedger(t *testing.T) {
	e := newEnv(t)
	e.connect(t, "alice")

	_, err := e.client.CreateLockFromForm(context.Background(), "0.0001", "sol", "1", "day")
	require.ErrorIs(t, err, errclass.ErrInvalidInput)
	assert.Contains(t, errclass.ReasonOf(err), "minimum amount is 0.001 SOL")
	assert.Equal(t, 0, e.ledger.Calls(ledgertest.OpCreate))

	got := e.rec.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, model.NotificationFailure, got[0].Kind)
	assert.Empty(t, e.client.CurrentLocks())
}

func TestClient_MalformedForm(t *testing.T) {
	e := newEnv(t)
	e.connect(t, "alice")

	_, err := e.client.CreateLockFromForm(context.Background(), "lots", "sol", "1", "day")
	require.ErrorIs(t, err, errclass.ErrInvalidInput)
	assert.Len(t, e.rec.Notifications(), 1)
	assert.Equal(t, 0, e.ledger.Calls(ledgertest.OpCreate))
}

func TestClient_NotConnected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.client.CreateLockFromForm(ctx, "1", "usdc", "1", "hour")
	assert.ErrorIs(t, err, errclass.ErrNotConnected)
	_, err = e.client.Withdraw(ctx, "lock-1")
	assert.ErrorIs(t, err, errclass.ErrNotConnected)
	_, err = e.client.Refresh(ctx)
	assert.ErrorIs(t, err, errclass.ErrNotConnected)

	assert.Len(t, e.rec.Kind(model.NotificationFailure), 3)
	assert.Equal(t, 0, e.ledger.Calls(ledgertest.OpCreate))
	assert.Equal(t, 0, e.ledger.Calls(ledgertest.OpWithdraw))
	assert.Equal(t, 0, e.ledger.Calls(ledgertest.OpFetch))
	assert.Empty(t, e.client.CurrentLocks())
	assert.Zero(t, e.client.RemainingSeconds("lock-1"))
	assert.Equal(t, model.StateIdle, e.client.State(model.OperationCreate, ""))
}

func TestClient_ConnectInvalidIdentity(t *testing.T) {
	e := newEnv(t)

	_, err := e.client.Connect(context.Background(), "  ")
	require.ErrorIs(t, err, errclass.ErrIdentityInvalid)
	_, ok := e.client.Session()
	assert.False(t, ok)
	assert.Len(t, e.rec.Notifications(), 1)
}

func TestClient_DisconnectClearsEverything(t *testing.T) {
	e := newEnv(t)
	e.ledger.Seed(
		model.LockRecord{ID: "a", Owner: "alice", Amount: decimal.NewFromInt(1), Asset: model.AssetNative, UnlockTimestamp: epoch.Unix() + 60},
	)
	e.connect(t, "alice")
	require.Len(t, e.client.CurrentLocks(), 1)
	require.True(t, e.client.Ticking())

	e.client.Disconnect()

	assert.Empty(t, e.client.CurrentLocks())
	assert.Empty(t, e.client.Countdown())
	assert.False(t, e.client.Ticking())

	// Nothing fires after teardown.
	e.clock.Step(2 * time.Minute)
	assert.Never(t, func() bool { return e.ledger.Calls(ledgertest.OpFetch) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestClient_SimultaneousExpiryRefreshesOnce(t *testing.T) {
	e := newEnv(t)
	e.ledger.Seed(
		model.LockRecord{ID: "a", Owner: "alice", Amount: decimal.NewFromInt(1), Asset: model.AssetNative, UnlockTimestamp: epoch.Unix() + 10},
		model.LockRecord{ID: "b", Owner: "alice", Amount: decimal.NewFromInt(2), Asset: model.AssetToken, UnlockTimestamp: epoch.Unix() + 10},
	)
	e.connect(t, "alice")
	require.Equal(t, 1, e.ledger.Calls(ledgertest.OpFetch))

	e.clock.Step(10 * time.Second)
	eventually(t, func() bool {
		return e.client.RemainingSeconds("a") == 0 && e.client.RemainingSeconds("b") == 0
	}, "both countdowns should reach zero")

	e.clock.Step(2 * time.Second)
	eventually(t, func() bool { return e.ledger.Calls(ledgertest.OpFetch) == 2 }, "expiry refresh should run")
	assert.Never(t, func() bool { return e.ledger.Calls(ledgertest.OpFetch) > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestClient_SwitchOwner(t *testing.T) {
	e := newEnv(t)
	e.ledger.Seed(
		model.LockRecord{ID: "a", Owner: "alice", Amount: decimal.NewFromInt(1), Asset: model.AssetNative, UnlockTimestamp: epoch.Unix() + 60},
		model.LockRecord{ID: "b", Owner: "bob", Amount: decimal.NewFromInt(1), Asset: model.AssetNative, UnlockTimestamp: epoch.Unix() + 60},
	)
	e.connect(t, "alice")
	require.Len(t, e.client.CurrentLocks(), 1)
	assert.Equal(t, "a", e.client.CurrentLocks()[0].ID)

	e.connect(t, "bob")
	locks := e.client.CurrentLocks()
	require.Len(t, locks, 1)
	assert.Equal(t, "b", locks[0].ID)
	assert.Zero(t, e.client.RemainingSeconds("a"))

	s, ok := e.client.Session()
	require.True(t, ok)
	assert.Equal(t, "bob", s.Owner)
}

func TestClient_LedgerFailureSetsCurrentError(t *testing.T) {
	e := newEnv(t)
	e.connect(t, "alice")
	e.ledger.FailWith(ledgertest.OpCreate, errors.New("insufficient funds"))

	_, err := e.client.CreateLockFromForm(context.Background(), "5", "usdc", "2", "weeks")
	require.ErrorIs(t, err, errclass.ErrLedger)

	cur := e.client.CurrentError()
	require.Error(t, cur)
	assert.Contains(t, errclass.ReasonOf(cur), "insufficient funds")
	fail := e.rec.Kind(model.NotificationFailure)
	require.Len(t, fail, 1)
	assert.Contains(t, fail[0].Description, "insufficient funds")
	assert.Empty(t, e.client.CurrentLocks())

	e.client.ClearError()
	assert.NoError(t, e.client.CurrentError())
}

func TestClient_InitialFetchFailureKeepsSession(t *testing.T) {
	e := newEnv(t)
	e.ledger.FailWith(ledgertest.OpFetch, errors.New("rpc down"))

	_, err := e.client.Connect(context.Background(), "alice")
	require.NoError(t, err)
	_, ok := e.client.Session()
	assert.True(t, ok)
	assert.Empty(t, e.client.CurrentLocks())
	assert.ErrorIs(t, e.client.CurrentError(), errclass.ErrFetch)
}

func findLock(recs []model.LockRecord, id string) (model.LockRecord, bool) {
	for _, r := range recs {
		if r.ID == id {
			return r, true
		}
	}
	return model.LockRecord{}, false
}

func TestClient_CreateSeenAfterConcurrentRefresh(t *testing.T) {
	e := newEnv(t)
	e.connect(t, "alice")
	ctx := context.Background()
	release := e.ledger.HoldFetchResult()

	go func() { _, _ = e.client.Refresh(ctx) }()
	eventually(t, func() bool { return e.ledger.InFlight(ledgertest.OpFetch) == 1 }, "refresh not started")

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := e.client.CreateLockFromForm(ctx, "0.5", "sol", "1", "day")
		done <- result{res.LockID, err}
	}()
	eventually(t, func() bool { return e.ledger.Calls(ledgertest.OpCreate) == 1 }, "create not submitted")
	time.Sleep(20 * time.Millisecond)
	release()

	got := <-done
	require.NoError(t, got.err)
	locks := e.client.CurrentLocks()
	require.Len(t, locks, 1)
	assert.Equal(t, got.id, locks[0].ID)
	assert.Equal(t, int64(86400), e.client.RemainingSeconds(got.id))
	assert.True(t, e.client.Ticking())
}

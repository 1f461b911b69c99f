package countdown_test

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/timelock-wallet/tlw/internal/countdown"
	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/model"
)

type source struct {
	mu   sync.Mutex
	recs []model.LockRecord
}

func (s *source) Snapshot() []model.LockRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LockRecord(nil), s.recs...)
}

func (s *source) set(recs ...model.LockRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = recs
}

type harness struct {
	clock    *testclock.FakeClock
	src      *source
	sched    *countdown.Scheduler
	refresh  atomic.Int32
	ticks    atomic.Int32
	onChange func()
}

func newHarness(t *testing.T, recs ...model.LockRecord) *harness {
	t.Helper()
	h := &harness{clock: testclock.NewFakeClock(epoch), src: &source{}}
	h.src.set(recs...)
	h.sched = countdown.New(h.src, func(context.Context) error {
		h.refresh.Add(1)
		return nil
	}, countdown.Options{
		Clock:        h.clock,
		TickInterval: time.Second,
		RefreshDelay: 2 * time.Second,
		OnTick:       func(countdown.Result) { h.ticks.Add(1) },
	})
	t.Cleanup(h.sched.Stop)
	return h
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

func TestScheduler_NoPendingNoTicker(t *testing.T) {
	h := newHarness(t, rec("past", -1, false), rec("gone", 100, true))
	h.sched.Sync()
	assert.False(t, h.sched.Running())
	assert.Equal(t, int64(0), h.sched.Remaining("past"))
	assert.Equal(t, int64(0), h.sched.Remaining("unknown"))
}

func TestScheduler_CountsDown(t *testing.T) {
	h := newHarness(t, rec("a", 10, false))
	h.sched.Sync()
	require.True(t, h.sched.Running())
	assert.Equal(t, int64(10), h.sched.Remaining("a"))

	h.clock.Step(time.Second)
	eventually(t, func() bool { return h.sched.Remaining("a") == 9 }, "tick not applied")
	h.clock.Step(time.Second)
	eventually(t, func() bool { return h.sched.Remaining("a") == 8 }, "tick not applied")
	assert.Equal(t, int32(0), h.refresh.Load())
}

func TestScheduler_OneRefreshForSimultaneousExpiry(t *testing.T) {
	h := newHarness(t, rec("a", 3, false), rec("b", 3, false), rec("c", 3600, false))
	h.sched.Sync()

	h.clock.Step(3 * time.Second)
	eventually(t, h.sched.RefreshPending, "expiry refresh not scheduled")
	assert.Equal(t, int32(0), h.refresh.Load(), "refresh waits for the delay")
	assert.True(t, h.sched.Running(), "c still counts down")

	h.clock.Step(2 * time.Second)
	eventually(t, func() bool { return h.refresh.Load() == 1 }, "refresh not fired")
	eventually(t, func() bool { return !h.sched.RefreshPending() }, "timer not cleared")

	// Further ticks do not refresh again.
	for i := 0; i < 3; i++ {
		h.clock.Step(time.Second)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), h.refresh.Load())
}

func TestScheduler_TickerStopsWhenNothingPending(t *testing.T) {
	h := newHarness(t, rec("a", 1, false))
	h.sched.Sync()
	require.True(t, h.sched.Running())

	h.clock.Step(time.Second)
	eventually(t, func() bool { return !h.sched.Running() }, "ticker still running")

	// New pending entries bring it back.
	h.src.set(rec("a", 1, false), rec("b", 100, false))
	h.sched.Sync()
	assert.True(t, h.sched.Running())
}

func TestScheduler_StopIsFinal(t *testing.T) {
	h := newHarness(t, rec("a", 2, false), rec("b", 100, false))
	h.sched.Sync()

	h.clock.Step(2 * time.Second)
	eventually(t, h.sched.RefreshPending, "expiry refresh not scheduled")
	ticks := h.ticks.Load()

	h.sched.Stop()
	assert.False(t, h.sched.Running())
	assert.False(t, h.sched.RefreshPending())
	assert.Empty(t, h.sched.Snapshot())

	for i := 0; i < 5; i++ {
		h.clock.Step(time.Second)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ticks, h.ticks.Load(), "tick after stop")
	assert.Equal(t, int32(0), h.refresh.Load(), "refresh after stop")

	// Sync after Stop is a no-op.
	h.sched.Sync()
	assert.False(t, h.sched.Running())
	h.sched.Stop()
}

func TestScheduler_ZeroDelayRefreshesOnNextStep(t *testing.T) {
	clk := testclock.NewFakeClock(epoch)
	src := &source{}
	src.set(rec("a", 1, false))
	var refreshed atomic.Int32
	s := countdown.New(src, func(context.Context) error {
		refreshed.Add(1)
		return nil
	}, countdown.Options{Clock: clk})
	defer s.Stop()

	s.Sync()
	clk.Step(time.Second)
	eventually(t, func() bool { return refreshed.Load() == 1 || s.RefreshPending() }, "expiry not seen")
	clk.Step(0)
	eventually(t, func() bool { return refreshed.Load() == 1 }, "refresh not fired")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestScheduler_LogsExpiredIDsSorted(t *testing.T) {
	var out lockedBuffer
	log := logging.NewLogger(logging.LevelInfo)
	log.SetOutput(&out)

	clk := testclock.NewFakeClock(epoch)
	src := &source{}
	src.set(rec("b", 1, false), rec("a", 1, false))
	var expired sync.Map
	sched := countdown.New(src, func(context.Context) error { return nil }, countdown.Options{
		Clock:        clk,
		TickInterval: time.Second,
		Log:          log,
		OnTick: func(res countdown.Result) {
			for id := range res.Expired {
				expired.Store(id, true)
			}
		},
	})
	t.Cleanup(sched.Stop)
	sched.Sync()

	clk.Step(time.Second)
	eventually(t, func() bool {
		_, a := expired.Load("a")
		_, b := expired.Load("b")
		return a && b
	}, "expiry not observed")
	assert.Contains(t, out.String(), `"lock_ids":["a","b"]`)
}

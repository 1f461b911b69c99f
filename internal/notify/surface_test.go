package notify_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/timelock-wallet/tlw/internal/notify"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/model"
)

func TestSurface_CurrentError(t *testing.T) {
	s := notify.New(nil)
	assert.Nil(t, s.CurrentError())
	_, ok := s.CurrentMessage()
	assert.False(t, ok)

	s.SetError(errclass.ErrFetch.WithMessage("rpc unavailable"))
	assert.ErrorIs(t, s.CurrentError(), errclass.ErrFetch)
	msg, ok := s.CurrentMessage()
	require.True(t, ok)
	assert.Equal(t, "rpc unavailable", msg)

	// Only one error is held; the latest wins.
	s.SetError(errclass.ErrLedger.WithMessage("insufficient funds"))
	msg, _ = s.CurrentMessage()
	assert.Equal(t, "insufficient funds", msg)

	s.ClearError()
	assert.Nil(t, s.CurrentError())
}

func TestSurface_SingleStream(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := notify.New(testclock.NewFakeClock(at))
	rec := &notify.Recorder{}
	s.AddSink(rec)

	s.Success(model.Notification{Topic: model.TopicLockCreated, Title: "SOL timelock created", Description: "account L1"})
	s.Failure(model.Notification{Topic: model.TopicWithdrawFailed, Title: "Withdraw failed"}, errclass.ErrLedger.Wrap(errors.New("blockhash expired")))

	got := rec.Notifications()
	require.Len(t, got, 2)
	assert.Equal(t, model.NotificationSuccess, got[0].Kind)
	assert.Equal(t, at, got[0].At)
	assert.Equal(t, model.NotificationFailure, got[1].Kind)
	assert.Equal(t, "blockhash expired", got[1].Description)
	assert.Equal(t, "E_LEDGER", got[1].Code)

	assert.Len(t, rec.Kind(model.NotificationFailure), 1)
	// Notifications never touch the retained error.
	assert.Nil(t, s.CurrentError())

	rec.Reset()
	assert.Empty(t, rec.Notifications())
}

func TestSurface_MultipleSinks(t *testing.T) {
	s := notify.New(nil)
	var seen []model.Topic
	s.AddSink(notify.SinkFunc(func(n model.Notification) { seen = append(seen, n.Topic) }))
	rec := &notify.Recorder{}
	s.AddSink(rec)

	s.Notify(model.Notification{Kind: model.NotificationSuccess, Topic: model.TopicLockWithdrawn})
	assert.Equal(t, []model.Topic{model.TopicLockWithdrawn}, seen)
	assert.Len(t, rec.Notifications(), 1)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.LevelInfo)
	log.SetOutput(&buf)

	s := notify.New(nil)
	s.AddSink(notify.NewLogSink(log))
	s.Failure(model.Notification{Topic: model.TopicRefreshFailed, Title: "Refresh failed", Owner: "alice"}, errclass.ErrFetch.WithMessage("timeout"))

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"message":"Refresh failed"`)
	assert.Contains(t, out, `"code":"E_FETCH"`)
	assert.Contains(t, out, `"owner":"alice"`)
}

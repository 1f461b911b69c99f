// Package notify holds the retained "current error" and fans one-shot
// success and failure notifications out to sinks.
package notify

import (
	"sync"

	"k8s.io/utils/clock"

	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// Sink receives every emitted notification in order.
type Sink interface {
	Deliver(n model.Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n model.Notification)

// Deliver implements Sink.
func (f SinkFunc) Deliver(n model.Notification) { f(n) }

// Surface records at most one current error and publishes notifications.
//
// The current error is retained until ClearError. Notifications are not
// retained; sinks that need history keep their own.
type Surface struct {
	clock clock.PassiveClock

	mu      sync.Mutex
	current error
	sinks   []Sink

	// serializes delivery so sinks observe one ordered stream
	deliverMu sync.Mutex
}

// New creates a surface stamping notifications with clk.
func New(clk clock.PassiveClock) *Surface {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Surface{clock: clk}
}

// AddSink registers a sink for subsequent notifications.
func (s *Surface) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// SetError replaces the current error. A nil err clears it.
func (s *Surface) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = err
}

// CurrentError returns the retained error, or nil.
func (s *Surface) CurrentError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentMessage returns the retained error's reason text.
func (s *Surface) CurrentMessage() (string, bool) {
	err := s.CurrentError()
	if err == nil {
		return "", false
	}
	return errclass.ReasonOf(err), true
}

// ClearError drops the retained error.
func (s *Surface) ClearError() {
	s.SetError(nil)
}

// Notify stamps n and delivers it to every sink.
func (s *Surface) Notify(n model.Notification) {
	if n.At.IsZero() {
		n.At = s.clock.Now().UTC()
	}

	s.mu.Lock()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	for _, sink := range sinks {
		sink.Deliver(n)
	}
}

// Success emits a success notification.
func (s *Surface) Success(n model.Notification) {
	n.Kind = model.NotificationSuccess
	s.Notify(n)
}

// Failure emits a failure notification for err. The description defaults to
// the error's reason text and the code to its class.
func (s *Surface) Failure(n model.Notification, err error) {
	n.Kind = model.NotificationFailure
	if n.Description == "" {
		n.Description = errclass.ReasonOf(err)
	}
	if n.Code == "" {
		n.Code = errclass.CodeOf(err)
	}
	s.Notify(n)
}

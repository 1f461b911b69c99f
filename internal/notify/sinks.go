package notify

import (
	"sync"

	"github.com/timelock-wallet/tlw/pkg/logging"
	"github.com/timelock-wallet/tlw/pkg/model"
)

// Recorder keeps every notification it receives.
type Recorder struct {
	mu    sync.Mutex
	items []model.Notification
}

// Deliver implements Sink.
func (r *Recorder) Deliver(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// Notifications returns a copy of everything recorded.
func (r *Recorder) Notifications() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.items...)
}

// Kind returns the recorded notifications of one kind.
func (r *Recorder) Kind(kind model.NotificationKind) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.items {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

// LogSink writes notifications to a logger.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink returns a sink logging to log, or the global logger when nil.
func NewLogSink(log *logging.Logger) *LogSink {
	if log == nil {
		log = logging.Global()
	}
	return &LogSink{log: log.WithFields(map[string]any{"component": "notify"})}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(n model.Notification) {
	fields := map[string]any{
		"topic":       string(n.Topic),
		"description": n.Description,
	}
	if n.Owner != "" {
		fields["owner"] = n.Owner
	}
	if n.LockID != "" {
		fields["lock_id"] = n.LockID
	}
	if n.Kind == model.NotificationFailure {
		fields["code"] = n.Code
		s.log.Warn(n.Title, fields)
		return
	}
	s.log.Info(n.Title, fields)
}

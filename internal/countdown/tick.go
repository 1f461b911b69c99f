// Package countdown computes per-lock remaining time and drives the ticker
// that refreshes the cache when a countdown reaches zero.
package countdown

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/timelock-wallet/tlw/pkg/model"
)

// ReadyLabel replaces the duration once a lock can be withdrawn.
const ReadyLabel = "ready"

// Result is the outcome of one tick.
type Result struct {
	// Remaining holds whole seconds left for every non-withdrawn record;
	// unlocked records map to 0.
	Remaining map[string]int64
	// Expired holds records whose countdown reached zero on this tick.
	Expired sets.Set[string]
	// Pending counts records still counting down.
	Pending int
}

// Tick computes remaining time for records at now. A record is expired on
// this tick only if previous showed it with time left; records first seen
// already unlocked are not.
func Tick(records []model.LockRecord, previous map[string]int64, now time.Time) Result {
	res := Result{
		Remaining: make(map[string]int64, len(records)),
		Expired:   sets.New[string](),
	}
	for _, r := range records {
		if r.IsWithdrawn {
			continue
		}
		rem := r.Remaining(now)
		res.Remaining[r.ID] = rem
		if rem > 0 {
			res.Pending++
			continue
		}
		if prev, ok := previous[r.ID]; ok && prev > 0 {
			res.Expired.Insert(r.ID)
		}
	}
	return res
}

// Format renders remaining seconds starting at the largest non-zero unit:
// "1d 2h 3m 4s", "2h 3m 4s", "3m 4s" or "4s". Zero renders ReadyLabel.
func Format(remaining int64) string {
	if remaining <= 0 {
		return ReadyLabel
	}
	d := remaining / model.SecondsPerDay
	h := remaining % model.SecondsPerDay / model.SecondsPerHour
	m := remaining % model.SecondsPerHour / model.SecondsPerMinute
	s := remaining % model.SecondsPerMinute
	switch {
	case d > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", d, h, m, s)
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

package pipeline

import (
	"time"

	"podcast-digest/internal/models"
)

// Period is the delivery window of a cadence. Immediate has none.
func Period(c models.Cadence) time.Duration {
	switch c {
	case models.CadenceDaily:
		return 24 * time.Hour
	case models.CadenceWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Delivery boundaries of a cadence sit at start + k*Period for k >= 1,
// where start is when the subscription was created.

// LastTrigger returns the latest boundary at or before now, or the zero time
// when the first boundary is still ahead.
func LastTrigger(start time.Time, c models.Cadence, now time.Time) time.Time {
	p := Period(c)
	if p == 0 || now.Before(start.Add(p)) {
		return time.Time{}
	}
	k := now.Sub(start) / p
	return start.Add(k * p)
}

// NextTrigger returns the first boundary strictly after t.
func NextTrigger(start time.Time, c models.Cadence, t time.Time) time.Time {
	p := Period(c)
	if p == 0 {
		return t
	}
	if t.Before(start.Add(p)) {
		return start.Add(p)
	}
	k := t.Sub(start)/p + 1
	return start.Add(k * p)
}

// IsDue reports whether a batch goes out at now. The latest boundary must
// fall after the last delivery (zero when there was none) and no earlier
// than ready, the moment the oldest pending episode became deliverable.
func IsDue(start time.Time, c models.Cadence, last, ready, now time.Time) bool {
	if c == models.CadenceImmediate {
		return true
	}
	b := LastTrigger(start, c, now)
	if b.IsZero() {
		return false
	}
	return b.After(last) && !b.Before(ready)
}

// DueAt is the next boundary at which a batch could go out.
func DueAt(start time.Time, c models.Cadence, last, ready time.Time) time.Time {
	after := last
	if ready.After(after) {
		after = ready.Add(-time.Nanosecond)
	}
	return NextTrigger(start, c, after)
}

package swt

import "time"

// DefaultRefreshRate is the process-tree rate-limit window used when
// configuration does not override it.
const DefaultRefreshRate = 500 * time.Millisecond

// MinRefreshRate and MaxRefreshRate bound the configurable refresh rate.
const (
	MinRefreshRate = 10 * time.Millisecond
	MaxRefreshRate = 20000 * time.Millisecond
)

// ClampRefreshRate clamps d to [MinRefreshRate, MaxRefreshRate].
func ClampRefreshRate(d time.Duration) time.Duration {
	if d < MinRefreshRate {
		return MinRefreshRate
	}
	if d > MaxRefreshRate {
		return MaxRefreshRate
	}
	return d
}

// procRateFilter decides whether a newly-opened Proc frame should be
// accepted or silently ignored, to keep bulky process-tree snapshots from
// flooding downstream consumers.
//
// It is the one piece of time-awareness the decoder needs; the scheduler
// owns the clock and injects "now" on every byte, keeping the decoder
// itself a pure function of the byte stream.
type procRateFilter struct {
	rate         time.Duration
	lastAccepted time.Time
	haveLast     bool
}

func newProcRateFilter(rate time.Duration) *procRateFilter {
	return &procRateFilter{rate: ClampRefreshRate(rate)}
}

// setRate updates the configured refresh window, clamped to its bounds.
func (f *procRateFilter) setRate(rate time.Duration) {
	f.rate = ClampRefreshRate(rate)
}

// accept reports whether a Proc frame starting at now should be accepted.
// When accepted, it records now as the new baseline.
func (f *procRateFilter) accept(now time.Time) bool {
	if f.haveLast && now.Sub(f.lastAccepted) < f.rate {
		return false
	}
	f.lastAccepted = now
	f.haveLast = true
	return true
}

// Package progress counts successful stars against the run's expected maximum
// and renders the count while the run is in flight.
package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var progressSucceeded = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "starfan_progress_succeeded",
	Help: "Successful stars in the current run",
})

// Tracker counts successes. Increment is the only mutator and is safe for
// concurrent use; the count never exceeds the expected maximum.
type Tracker struct {
	succeeded   atomic.Int64
	expectedMax int64
	start       time.Time
}

// NewTracker creates a tracker for expectedMax successes (pageCount × pageSize).
func NewTracker(expectedMax int) *Tracker {
	if expectedMax < 0 {
		expectedMax = 0
	}
	progressSucceeded.Set(0)
	return &Tracker{
		expectedMax: int64(expectedMax),
		start:       time.Now(),
	}
}

// Increment records one success. It returns false, leaving the count
// unchanged, once the expected maximum has been reached.
func (t *Tracker) Increment() bool {
	for {
		cur := t.succeeded.Load()
		if cur >= t.expectedMax {
			return false
		}
		if t.succeeded.CompareAndSwap(cur, cur+1) {
			progressSucceeded.Set(float64(cur + 1))
			return true
		}
	}
}

// Succeeded returns the current count.
func (t *Tracker) Succeeded() int {
	return int(t.succeeded.Load())
}

// ExpectedMax returns the upper bound of the count.
func (t *Tracker) ExpectedMax() int {
	return int(t.expectedMax)
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Elapsed:     time.Since(t.start),
		Succeeded:   t.Succeeded(),
		ExpectedMax: t.ExpectedMax(),
	}
}

// Snapshot is a point-in-time view of a Tracker.
type Snapshot struct {
	Elapsed     time.Duration
	Succeeded   int
	ExpectedMax int
}

// Ratio returns Succeeded/ExpectedMax in [0, 1].
func (s Snapshot) Ratio() float64 {
	if s.ExpectedMax <= 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.ExpectedMax)
}

// String renders "[hh:mm:ss] succeeded/max".
func (s Snapshot) String() string {
	return fmt.Sprintf("[%s] %d/%d", formatElapsed(s.Elapsed), s.Succeeded, s.ExpectedMax)
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}

package star

import "github.com/Sternrassler/starfan/pkg/diagnostic"

// Counter receives one Increment per successful star.
// *progress.Tracker implements it.
type Counter interface {
	Increment() bool
}

// Summary counts the outcomes handled by Aggregate.
type Summary struct {
	Succeeded int
	Failed    int
}

// Aggregate drains outcomes in arrival order until the channel is closed.
// Every Success increments counter; every Failure produces exactly one
// mark_failed diagnostic carrying the status and cause.
func Aggregate(outcomes <-chan Outcome, counter Counter, sink diagnostic.Sink) Summary {
	var sum Summary
	for o := range outcomes {
		switch o.Status {
		case Success:
			sum.Succeeded++
			counter.Increment()
		default:
			sum.Failed++
			sink.Report(o.Diagnostic())
		}
	}
	return sum
}

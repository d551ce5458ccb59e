// Package star dispatches one star request per search item and aggregates
// the outcomes in completion order.
//
// Dispatcher is the fan-out half: every item with an owner that has not been
// seen before gets its own goroutine issuing exactly one PUT. Aggregate is the
// fan-in half: a single loop reading outcomes as they arrive, feeding
// successes to the progress counter and failures to the diagnostic sink.
package star

import (
	"github.com/Sternrassler/starfan/pkg/client"
	"github.com/Sternrassler/starfan/pkg/diagnostic"
)

// Status is the result of one star request.
type Status int

const (
	// Success is a 204 No Content reply.
	Success Status = iota
	// Failure is any other status or a transport error.
	Failure
)

// String returns the metric label for s.
func (s Status) String() string {
	if s == Success {
		return "success"
	}
	return "failure"
}

// Outcome is produced once per dispatched task and consumed once by Aggregate.
type Outcome struct {
	Ref  client.ItemRef
	Page int
	// Status is Success or Failure.
	Status Status
	// Cause is the response body for non-204 replies, or the error text.
	Cause string
	// Err is the underlying error for failures.
	Err error
}

// Classify turns the result of a star request into an Outcome.
func Classify(ref client.ItemRef, page int, err error) Outcome {
	if err == nil {
		return Outcome{Ref: ref, Page: page, Status: Success}
	}
	return Outcome{
		Ref:    ref,
		Page:   page,
		Status: Failure,
		Cause:  client.Cause(err),
		Err:    err,
	}
}

// Diagnostic returns the mark_failed diagnostic for a failed outcome.
func (o Outcome) Diagnostic() diagnostic.Diagnostic {
	d := diagnostic.Diagnostic{
		Kind:   diagnostic.KindMarkFailed,
		Page:   o.Page,
		Name:   o.Ref.Name,
		Status: client.StatusCode(o.Err),
		Cause:  o.Cause,
	}
	if o.Ref.Owner != nil {
		d.Owner = o.Ref.Owner.Login
	}
	return d
}

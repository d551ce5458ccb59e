// Package diagnostic records per-task failures of a run.
//
// Every page that fails, every item without an owner and every star that is
// not a 204 produces exactly one Diagnostic. Sinks must be safe for
// concurrent use.
package diagnostic

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "starfan_diagnostics_total",
	Help: "Diagnostics emitted by kind",
}, []string{"kind"})

// Kind identifies what went wrong.
type Kind string

const (
	// KindPageFailed is a search page that yielded no items because its
	// fetch failed (transport, decode or non-2xx status).
	KindPageFailed Kind = "page_failed"

	// KindOwnerMissing is a search item without an owner; it is never starred.
	KindOwnerMissing Kind = "owner_missing"

	// KindMarkFailed is a star request that did not return 204.
	KindMarkFailed Kind = "mark_failed"
)

// NoPage marks a diagnostic that is not tied to a page.
const NoPage = -1

// Diagnostic is one failure line.
type Diagnostic struct {
	Kind  Kind
	Page  int
	Owner string
	Name  string
	// Status is the HTTP status, 0 for transport failures.
	Status int
	// Cause is the response body or the error text.
	Cause string
}

// Message returns the fixed summary for the diagnostic's kind.
func (d Diagnostic) Message() string {
	switch d.Kind {
	case KindPageFailed:
		return "page fetch failed"
	case KindOwnerMissing:
		return "owner missing, skipped"
	case KindMarkFailed:
		return "star failed"
	default:
		return string(d.Kind)
	}
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	s := d.Message()
	switch {
	case d.Owner != "":
		s += ": " + d.Owner + "/" + d.Name
	case d.Name != "":
		s += ": " + d.Name
	case d.Page != NoPage:
		s += fmt.Sprintf(": page %d", d.Page)
	}
	if d.Status != 0 {
		s += fmt.Sprintf(" (status %d)", d.Status)
	}
	if d.Cause != "" {
		s += ": " + d.Cause
	}
	return s
}

// Sink receives diagnostics.
type Sink interface {
	Report(d Diagnostic)
}

// LogSink writes each diagnostic as one zerolog warning.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink writing to logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Report implements Sink.
func (s *LogSink) Report(d Diagnostic) {
	diagnosticsTotal.WithLabelValues(string(d.Kind)).Inc()

	event := s.logger.Warn().Str("kind", string(d.Kind))
	if d.Page != NoPage {
		event = event.Int("page", d.Page)
	}
	if d.Owner != "" {
		event = event.Str("owner", d.Owner)
	}
	if d.Name != "" {
		event = event.Str("name", d.Name)
	}
	if d.Status != 0 {
		event = event.Int("status", d.Status)
	}
	if d.Cause != "" {
		event = event.Str("cause", d.Cause)
	}
	event.Msg(d.Message())
}

// Recorder keeps diagnostics in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Report implements Sink.
func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, d)
}

// All returns a copy of every recorded diagnostic, in report order.
func (r *Recorder) All() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many diagnostics of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.items {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Len returns the number of recorded diagnostics.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Tee forwards every diagnostic to each of its sinks.
type Tee []Sink

// Report implements Sink.
func (t Tee) Report(d Diagnostic) {
	for _, s := range t {
		s.Report(d)
	}
}

package star

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/starfan/pkg/client"
	"github.com/Sternrassler/starfan/pkg/diagnostic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for star dispatch.
var (
	marksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "starfan_marks_in_flight",
		Help: "Star requests currently in flight",
	})

	markOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starfan_mark_outcomes_total",
		Help: "Star outcomes by status (success, failure)",
	}, []string{"status"})

	itemsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starfan_items_skipped_total",
		Help: "Search items not dispatched by reason (owner_missing, duplicate)",
	}, []string{"reason"})
)

// Marker stars one repository. *client.Client implements it.
type Marker interface {
	Star(ctx context.Context, owner, name string) error
}

// Config holds dispatcher configuration.
type Config struct {
	// MaxInFlight bounds concurrent star requests. 0 means unbounded.
	MaxInFlight int
	// Timeout per star request. 0 leaves the client's own timeout in charge.
	Timeout time.Duration
	// OutcomeBuffer sizes the outcome channel.
	OutcomeBuffer int
}

// DefaultConfig returns the default configuration: unbounded fan-out.
func DefaultConfig() Config {
	return Config{
		MaxInFlight:   0,
		OutcomeBuffer: 64,
	}
}

// Stats counts what the dispatcher did with the items it was given.
type Stats struct {
	Dispatched   int
	OwnerMissing int
	Duplicates   int
}

type repoKey struct {
	owner string
	name  string
}

// Dispatcher issues exactly one star task per (owner, name) pair.
//
// Dispatch may be called from several goroutines. Outcomes are delivered on
// the channel returned by Outcomes, which must be drained concurrently (see
// Aggregate). Wait closes that channel once every task has reported.
type Dispatcher struct {
	marker  Marker
	sink    diagnostic.Sink
	config  Config
	logger  zerolog.Logger
	group   errgroup.Group
	results chan Outcome

	mu   sync.Mutex
	seen map[repoKey]struct{}

	dispatched   atomic.Int64
	ownerMissing atomic.Int64
	duplicates   atomic.Int64

	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher starring through marker and reporting
// skipped items to sink.
func NewDispatcher(marker Marker, sink diagnostic.Sink, cfg Config) *Dispatcher {
	if cfg.OutcomeBuffer < 0 {
		cfg.OutcomeBuffer = 0
	}

	d := &Dispatcher{
		marker:  marker,
		sink:    sink,
		config:  cfg,
		logger:  log.With().Str("component", "star").Logger(),
		results: make(chan Outcome, cfg.OutcomeBuffer),
		seen:    make(map[repoKey]struct{}),
	}

	if cfg.MaxInFlight > 0 {
		d.group.SetLimit(cfg.MaxInFlight)
	}

	return d
}

// SetLogger replaces the dispatcher's logger.
func (d *Dispatcher) SetLogger(logger zerolog.Logger) {
	d.logger = logger
}

// Outcomes returns the channel every task reports on.
func (d *Dispatcher) Outcomes() <-chan Outcome {
	return d.results
}

// Dispatch schedules a star for ref. It reports whether a task was created.
//
// A ref without an owner yields one owner_missing diagnostic and no task. A
// ref whose (owner, name) was already dispatched is counted as a duplicate.
// With MaxInFlight set, Dispatch blocks until a slot is free.
func (d *Dispatcher) Dispatch(ctx context.Context, ref client.ItemRef) bool {
	return d.dispatch(ctx, diagnostic.NoPage, ref)
}

// DispatchPage dispatches every item of one search page.
// It returns the number of tasks created.
func (d *Dispatcher) DispatchPage(ctx context.Context, page int, refs []client.ItemRef) int {
	n := 0
	for _, ref := range refs {
		if d.dispatch(ctx, page, ref) {
			n++
		}
	}
	return n
}

func (d *Dispatcher) dispatch(ctx context.Context, page int, ref client.ItemRef) bool {
	if ref.Owner == nil || ref.Owner.Login == "" {
		d.ownerMissing.Add(1)
		itemsSkippedTotal.WithLabelValues("owner_missing").Inc()
		d.sink.Report(diagnostic.Diagnostic{
			Kind: diagnostic.KindOwnerMissing,
			Page: page,
			Name: ref.Name,
		})
		return false
	}

	key := repoKey{owner: ref.Owner.Login, name: ref.Name}
	d.mu.Lock()
	_, dup := d.seen[key]
	if !dup {
		d.seen[key] = struct{}{}
	}
	d.mu.Unlock()

	if dup {
		d.duplicates.Add(1)
		itemsSkippedTotal.WithLabelValues("duplicate").Inc()
		d.logger.Debug().
			Str("owner", key.owner).
			Str("name", key.name).
			Int("page", page).
			Msg("Duplicate item - already dispatched")
		return false
	}

	d.dispatched.Add(1)
	d.group.Go(func() error {
		marksInFlight.Inc()
		defer marksInFlight.Dec()

		markCtx := ctx
		if d.config.Timeout > 0 {
			var cancel context.CancelFunc
			markCtx, cancel = context.WithTimeout(ctx, d.config.Timeout)
			defer cancel()
		}

		outcome := Classify(ref, page, d.marker.Star(markCtx, key.owner, key.name))
		markOutcomesTotal.WithLabelValues(outcome.Status.String()).Inc()
		d.results <- outcome
		// Failures become outcomes; the group never cancels siblings.
		return nil
	})
	return true
}

// Wait blocks until every dispatched task has delivered its outcome, then
// closes the outcome channel. Dispatch must not be called after Wait.
func (d *Dispatcher) Wait() {
	_ = d.group.Wait()
	d.closeOnce.Do(func() {
		close(d.results)
	})
}

// Stats returns the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched:   int(d.dispatched.Load()),
		OwnerMissing: int(d.ownerMissing.Load()),
		Duplicates:   int(d.duplicates.Load()),
	}
}

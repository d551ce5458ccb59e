// Package pipeline runs a starfan batch: plan the search pages, fetch them,
// star every item found and drain the outcomes.
//
// The runner uses global fan-out. All pages are fetched concurrently through
// the pagination worker pool, and the items of each page are dispatched as
// soon as that page arrives, so star requests of early pages run while later
// pages are still being fetched. Peak in-flight stars are bounded only by
// Config.MaxInFlight (0 = unbounded).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/starfan/pkg/client"
	"github.com/Sternrassler/starfan/pkg/diagnostic"
	"github.com/Sternrassler/starfan/pkg/logging"
	"github.com/Sternrassler/starfan/pkg/pagination"
	"github.com/Sternrassler/starfan/pkg/progress"
	"github.com/Sternrassler/starfan/pkg/star"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("runner already used")

// GitHub is the part of the GitHub client a run needs.
// *client.Client implements it.
type GitHub interface {
	pagination.Searcher
	star.Marker
}

// Config describes one run.
type Config struct {
	PageCount int
	PageSize  int
	Filter    string
	Language  string

	PageWorkers int
	PageTimeout time.Duration

	// MaxInFlight bounds concurrent star requests; 0 means unbounded.
	MaxInFlight int
	MarkTimeout time.Duration
}

// DefaultConfig returns the default run: 10 pages of 100 Rust repositories.
func DefaultConfig() Config {
	return Config{
		PageCount:   10,
		PageSize:    100,
		Filter:      "Rust language",
		Language:    "Rust",
		PageWorkers: pagination.DefaultConfig().MaxConcurrency,
		PageTimeout: pagination.DefaultConfig().Timeout,
	}
}

// Validate checks the run configuration.
func (c Config) Validate() error {
	if c.PageCount < 1 {
		return fmt.Errorf("page count must be at least 1 (got %d)", c.PageCount)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page size must be at least 1 (got %d)", c.PageSize)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("max in flight must not be negative (got %d)", c.MaxInFlight)
	}
	return nil
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink sends diagnostics to sink instead of the log.
func WithSink(sink diagnostic.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithStateObserver calls fn on every state transition, from the goroutine
// calling Run.
func WithStateObserver(fn func(State)) Option {
	return func(r *Runner) { r.observer = fn }
}

// WithProgress renders progress while the run is in flight.
func WithProgress(cfg progress.RendererConfig) Option {
	return func(r *Runner) {
		r.renderCfg = &cfg
	}
}

// Runner executes one run. It is single use.
type Runner struct {
	github    GitHub
	config    Config
	sink      diagnostic.Sink
	tracker   *progress.Tracker
	runID     string
	observer  func(State)
	renderCfg *progress.RendererConfig
	logger    zerolog.Logger

	state atomic.Int32
}

// NewRunner creates a runner. The progress tracker is sized to
// PageCount × PageSize before anything is dispatched.
func NewRunner(github GitHub, cfg Config, opts ...Option) (*Runner, error) {
	if github == nil {
		return nil, errors.New("github client is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		github:  github,
		config:  cfg,
		tracker: progress.NewTracker(cfg.PageCount * cfg.PageSize),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.logger = logging.NewRunLogger("pipeline", r.runID)
	if r.sink == nil {
		r.sink = diagnostic.NewLogSink(logging.NewRunLogger("diagnostic", r.runID))
	}

	return r, nil
}

// RunID returns the id attached to every log line of this run.
func (r *Runner) RunID() string {
	return r.runID
}

// State returns the current state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Tracker returns the progress tracker.
func (r *Runner) Tracker() *progress.Tracker {
	return r.tracker
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
	r.logger.Debug().Str("state", s.String()).Msg("State transition")
	if r.observer != nil {
		r.observer(s)
	}
}

// Run plans, fetches and stars, and returns once the run is drained.
//
// Per-page and per-item failures never abort the run; they become
// diagnostics and show up in the report. The returned error is non-nil only
// when the runner was already used.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.state.CompareAndSwap(int32(NotStarted), int32(FetchingPages)) {
		return nil, ErrAlreadyRun
	}
	start := time.Now()
	r.setState(FetchingPages)

	queries := pagination.Plan(r.config.PageCount, r.config.PageSize, r.config.Filter, r.config.Language)
	report := &Report{
		RunID:        r.runID,
		PagesPlanned: len(queries),
		ExpectedMax:  r.tracker.ExpectedMax(),
	}

	r.logger.Info().
		Int("pages", report.PagesPlanned).
		Int("page_size", r.config.PageSize).
		Str("filter", r.config.Filter).
		Str("language", r.config.Language).
		Int("max_in_flight", r.config.MaxInFlight).
		Msg("Starting run")

	var renderer *progress.Renderer
	if r.renderCfg != nil {
		cfg := *r.renderCfg
		cfg.Logger = logging.NewRunLogger("progress", r.runID)
		renderer = progress.NewRenderer(r.tracker, cfg)
		renderer.Start()
	}

	fetcher := pagination.NewBatchFetcher(r.github, pagination.Config{
		MaxConcurrency: r.config.PageWorkers,
		Timeout:        r.config.PageTimeout,
	})
	fetcher.SetLogger(logging.NewRunLogger("pagination", r.runID))

	dispatcher := star.NewDispatcher(r.github, r.sink, star.Config{
		MaxInFlight:   r.config.MaxInFlight,
		Timeout:       r.config.MarkTimeout,
		OutcomeBuffer: r.config.PageSize,
	})
	dispatcher.SetLogger(logging.NewRunLogger("star", r.runID))

	// Fan-in runs for the whole run so that finished stars are handled while
	// pages are still arriving.
	summaries := make(chan star.Summary, 1)
	go func() {
		summaries <- star.Aggregate(dispatcher.Outcomes(), r.tracker, r.sink)
	}()

	for page := range fetcher.FetchPages(ctx, queries) {
		if page.Err != nil {
			report.PagesFailed++
			r.sink.Report(diagnostic.Diagnostic{
				Kind:   diagnostic.KindPageFailed,
				Page:   page.Query.PageIndex,
				Status: client.StatusCode(page.Err),
				Cause:  client.Cause(page.Err),
			})
			continue
		}

		report.ItemsSeen += len(page.Items)
		n := dispatcher.DispatchPage(ctx, page.Query.PageIndex, page.Items)
		r.logger.Debug().
			Int("page", page.Query.PageIndex).
			Int("items", len(page.Items)).
			Int("dispatched", n).
			Dur("duration", page.Duration).
			Msg("Page dispatched")
	}

	r.setState(DispatchingMarks)
	dispatcher.Wait()
	summary := <-summaries

	if renderer != nil {
		renderer.Stop()
	}

	stats := dispatcher.Stats()
	report.OwnerMissing = stats.OwnerMissing
	report.Duplicates = stats.Duplicates
	report.Dispatched = stats.Dispatched
	report.Succeeded = r.tracker.Succeeded()
	report.Failed = summary.Failed
	report.Duration = time.Since(start)

	r.setState(Drained)
	r.logger.Info().
		Int("pages_failed", report.PagesFailed).
		Int("items", report.ItemsSeen).
		Int("dispatched", report.Dispatched).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Run drained")

	return report, nil
}

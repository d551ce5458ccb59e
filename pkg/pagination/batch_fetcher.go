package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/starfan/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for page fetching.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starfan_pages_fetched_total",
		Help: "Search pages fetched by result (ok, failed)",
	}, []string{"result"})

	pageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "starfan_page_fetch_duration_seconds",
		Help:    "Duration of a single search page fetch",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page fetches.
	// GitHub allows 30 search requests per minute, so more than 10 buys nothing.
	MaxConcurrency int
	// Timeout per page fetch.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// Searcher fetches a single page of repository search results.
// *client.Client implements it.
type Searcher interface {
	SearchRepositories(ctx context.Context, q client.SearchQuery) ([]client.ItemRef, error)
}

// PageResult is the outcome of fetching a single page.
// Exactly one of Items and Err is meaningful.
type PageResult struct {
	Query    client.SearchQuery
	Items    []client.ItemRef
	Err      error
	Duration time.Duration
}

// BatchFetcher fetches planned pages in parallel using a worker pool.
type BatchFetcher struct {
	searcher Searcher
	config   Config
	logger   zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(searcher Searcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &BatchFetcher{
		searcher: searcher,
		config:   config,
		logger:   log.With().Str("component", "pagination").Logger(),
	}
}

// SetLogger replaces the fetcher's logger.
func (bf *BatchFetcher) SetLogger(logger zerolog.Logger) {
	bf.logger = logger
}

// FetchPages fetches every query and returns a channel that yields exactly one
// PageResult per query, in completion order. The channel is closed once every
// page has been fetched or has failed.
//
// A failed page never stops its siblings. When ctx is done, pages that were
// not started yet are reported with ctx.Err().
func (bf *BatchFetcher) FetchPages(ctx context.Context, queries []client.SearchQuery) <-chan PageResult {
	// Buffered for every page so workers never block on a slow consumer.
	results := make(chan PageResult, len(queries))
	if len(queries) == 0 {
		close(results)
		return results
	}

	workers := bf.config.MaxConcurrency
	if workers > len(queries) {
		workers = len(queries)
	}

	bf.logger.Info().
		Int("pages", len(queries)).
		Int("workers", workers).
		Msg("Starting parallel page fetch")

	pageQueue := make(chan client.SearchQuery, len(queries))
	for _, q := range queries {
		pageQueue <- q
	}
	close(pageQueue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, pageQueue, results, &wg, i)
	}

	// Close results channel when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// worker processes pages from the queue.
func (bf *BatchFetcher) worker(ctx context.Context, pageQueue <-chan client.SearchQuery, results chan<- PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for q := range pageQueue {
		if err := ctx.Err(); err != nil {
			results <- PageResult{Query: q, Err: err}
			pagesFetchedTotal.WithLabelValues("failed").Inc()
			continue
		}

		start := time.Now()
		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		items, err := bf.searcher.SearchRepositories(pageCtx, q)
		cancel()
		elapsed := time.Since(start)
		pageFetchDuration.Observe(elapsed.Seconds())

		if err != nil {
			pagesFetchedTotal.WithLabelValues("failed").Inc()
			bf.logger.Debug().
				Err(err).
				Int("worker_id", workerID).
				Int("page", q.PageIndex).
				Msg("Page fetch failed")
			results <- PageResult{Query: q, Err: err, Duration: elapsed}
			continue
		}

		pagesFetchedTotal.WithLabelValues("ok").Inc()
		results <- PageResult{Query: q, Items: items, Duration: elapsed}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		bf.logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

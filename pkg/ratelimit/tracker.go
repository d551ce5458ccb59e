package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	ghRateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gh_rate_limit_remaining",
		Help: "Requests remaining in the current GitHub rate limit window by resource",
	}, []string{"resource"})

	ghRateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_rate_limit_blocks_total",
		Help: "Total number of requests refused locally because the quota was exhausted",
	}, []string{"resource"})
)

// Tracker keeps the rate limit state of one account in Redis and gates its
// requests. Trackers of different accounts sharing a Redis never see each
// other's quota.
type Tracker struct {
	redis   *redis.Client
	account string
	logger  zerolog.Logger
}

// NewTracker creates a rate limit tracker for account, the fingerprint of
// the token the requests are sent with (see cache.AccountFingerprint).
func NewTracker(redisClient *redis.Client, account string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:   redisClient,
		account: account,
		logger:  logger,
	}
}

// GetState retrieves the state of resource from Redis.
// Returns a healthy state if nothing has been recorded yet.
func (t *Tracker) GetState(ctx context.Context, resource string) (*RateLimitState, error) {
	fields, err := t.redis.HGetAll(ctx, RedisKey(resource, t.account)).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if len(fields) == 0 {
		t.logger.Debug().Str("resource", resource).Msg("No rate limit state in Redis, assuming healthy")
		return &RateLimitState{
			Resource:   resource,
			Remaining:  1,
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}

	state := &RateLimitState{Resource: resource}
	if state.Limit, err = strconv.Atoi(fields[fieldLimit]); err != nil {
		return nil, fmt.Errorf("parse limit: %w", err)
	}
	if state.Remaining, err = strconv.Atoi(fields[fieldRemaining]); err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}
	reset, err := strconv.ParseInt(fields[fieldReset], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse reset: %w", err)
	}
	state.ResetAt = time.Unix(reset, 0)
	if last, err := strconv.ParseInt(fields[fieldLastUpdate], 10, 64); err == nil {
		state.LastUpdate = time.Unix(0, last)
	}
	state.UpdateHealth()

	return state, nil
}

// ParseHeaders builds a state from GitHub rate limit headers.
// Returns nil, nil when the response carries no rate limit headers.
func ParseHeaders(headers http.Header, fallbackResource string) (*RateLimitState, error) {
	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		return nil, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
	}

	resetStr := headers.Get("X-RateLimit-Reset")
	if resetStr == "" {
		return nil, fmt.Errorf("X-RateLimit-Reset header missing")
	}
	reset, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
	}

	limit := 0
	if limitStr := headers.Get("X-RateLimit-Limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return nil, fmt.Errorf("parse X-RateLimit-Limit header: %w", err)
		}
	}

	resource := headers.Get("X-RateLimit-Resource")
	if resource == "" {
		resource = fallbackResource
	}

	state := &RateLimitState{
		Resource:   resource,
		Limit:      limit,
		Remaining:  remain,
		ResetAt:    time.Unix(reset, 0),
		LastUpdate: time.Now(),
	}
	state.UpdateHealth()
	return state, nil
}

// UpdateFromHeaders parses rate limit headers and stores the state in Redis.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header, fallbackResource string) error {
	state, err := ParseHeaders(headers, fallbackResource)
	if err != nil || state == nil {
		return err
	}

	key := RedisKey(state.Resource, t.account)
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, key,
		fieldLimit, state.Limit,
		fieldRemaining, state.Remaining,
		fieldReset, state.ResetAt.Unix(),
		fieldLastUpdate, state.LastUpdate.UnixNano(),
	)
	// The state is meaningless after the window resets.
	pipe.ExpireAt(ctx, key, state.ResetAt.Add(time.Minute))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	ghRateLimitRemaining.WithLabelValues(state.Resource).Set(float64(state.Remaining))

	switch {
	case state.IsExhausted():
		t.logger.Error().
			Str("resource", state.Resource).
			Time("reset_at", state.ResetAt).
			Msg("GitHub rate limit exhausted - further requests will be refused")
	case state.NeedsWarning():
		t.logger.Warn().
			Str("resource", state.Resource).
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Msg("GitHub rate limit low")
	default:
		t.logger.Debug().
			Str("resource", state.Resource).
			Int("remaining", state.Remaining).
			Msg("GitHub rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request against resource may be sent.
// It never sleeps: an exhausted quota refuses the request immediately.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, resource string) (bool, error) {
	state, err := t.GetState(ctx, resource)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.IsExhausted() {
		t.logger.Warn().
			Str("resource", resource).
			Dur("reset_in", state.TimeUntilReset()).
			Msg("GitHub rate limit exhausted - refusing request")
		ghRateLimitBlocksTotal.WithLabelValues(resource).Inc()
		return false, nil
	}

	return true, nil
}

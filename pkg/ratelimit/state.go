// Package ratelimit tracks GitHub's primary rate limit per resource and gates
// requests once a resource's quota is exhausted.
// It reads the X-RateLimit-Remaining, X-RateLimit-Reset and
// X-RateLimit-Resource headers and keeps the latest state in Redis, per
// resource and token, so that runs of the same token share one view of its
// quota.
package ratelimit

import (
	"strings"
	"time"
)

// Redis key layout: one hash per resource and account.
const (
	RedisKeyPrefix = "gh:rate_limit"

	fieldLimit      = "limit"
	fieldRemaining  = "remaining"
	fieldReset      = "reset"
	fieldLastUpdate = "last_update"
)

// Resources reported by GitHub in X-RateLimit-Resource.
const (
	ResourceCore   = "core"
	ResourceSearch = "search"
)

// WarningFraction marks a resource as unhealthy when less than this share of
// its limit remains.
const WarningFraction = 0.1

// RedisKey returns the hash key holding the state of resource for account
// (a token fingerprint). GitHub quotas are per token, so each account has
// its own hash; an empty account yields the unscoped key.
//
// Format: gh:rate_limit:core:acct=3f2a9c1b0d4e
func RedisKey(resource, account string) string {
	key := RedisKeyPrefix + ":" + resource
	if account != "" {
		key += ":acct=" + account
	}
	return key
}

// ResourceForPath maps an API path to the rate limit resource it consumes.
func ResourceForPath(path string) string {
	if strings.HasPrefix(path, "/search/") {
		return ResourceSearch
	}
	return ResourceCore
}

// RateLimitState is the last observed quota for one resource.
type RateLimitState struct {
	// Resource is the GitHub quota bucket ("core", "search", ...).
	Resource string `json:"resource"`

	// Limit is the request budget per window (X-RateLimit-Limit).
	Limit int `json:"limit"`

	// Remaining is the request budget left in this window (X-RateLimit-Remaining).
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (X-RateLimit-Reset, epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was observed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is false once Remaining drops under WarningFraction of Limit.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsExhausted is true when no requests remain and the window has not reset yet.
func (s *RateLimitState) IsExhausted() bool {
	return s.Remaining <= 0 && s.TimeUntilReset() > 0
}

// NeedsWarning is true when the quota is low but not exhausted.
func (s *RateLimitState) NeedsWarning() bool {
	return !s.IsHealthy && !s.IsExhausted()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth recomputes IsHealthy from Remaining and Limit.
func (s *RateLimitState) UpdateHealth() {
	if s.Limit <= 0 {
		s.IsHealthy = s.Remaining > 0
		return
	}
	s.IsHealthy = float64(s.Remaining) >= float64(s.Limit)*WarningFraction
}

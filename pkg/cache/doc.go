// Package cache stores GitHub listing responses in Redis so repeated runs can
// send conditional requests (If-None-Match) for search pages.
//
// The cache never replaces a request: a cached page only adds validators to
// the next request for the same query, and a 304 Not Modified reply is
// answered from the stored body. GitHub does not charge conditional requests
// that return 304 against the primary rate limit.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/search/repositories",
//		QueryParams: url.Values{"q": []string{"Rust language language:Rust"}, "page": []string{"1"}},
//		Account:     cache.AccountFingerprint(token),
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// plain request
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//	// on 304: decode entry.Data and refresh the expiry
//	manager.UpdateTTL(ctx, key, cache.ExpiresFromHeaders(resp.Header))
//
// # Stale Entries
//
// A page whose Expires has passed is still returned by Get, marked stale:
// its ETag keeps revalidating it. Redis drops an entry Retention after it
// expires (DefaultRetention unless SetRetention is called).
//
// # Metrics
//
//   - gh_cache_hits_total{state="fresh|stale"} - Cache hits
//   - gh_cache_misses_total - Cache misses
//   - gh_cache_entry_bytes - Size of stored pages
//   - gh_304_responses_total - Conditional request successes
//   - gh_conditional_requests_total - Conditional requests sent
//   - gh_cache_errors_total{operation} - Cache operation errors
package cache

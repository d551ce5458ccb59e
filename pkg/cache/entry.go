package cache

import (
	"net/http"
	"time"
)

// CacheEntry is a stored search page: the raw body plus its validators.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag"`

	// Expires ends the freshness lifetime (Cache-Control max-age or Expires)
	Expires time.Time `json:"expires"`

	// LastModified is the Last-Modified header, if any
	LastModified time.Time `json:"last_modified"`

	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	CachedAt   time.Time   `json:"cached_at"`
}

// IsExpired reports whether the page is past its freshness lifetime. An
// expired page is stale, not gone: its ETag still revalidates it.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the remaining freshness lifetime, or 0 once stale.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

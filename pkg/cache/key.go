package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "gh:cache"

// CacheKey identifies one cached GitHub response.
type CacheKey struct {
	// Endpoint is the API path (e.g. "/search/repositories")
	Endpoint string

	// QueryParams are the request query parameters
	QueryParams url.Values

	// Account separates entries of different credentials; see AccountFingerprint.
	Account string
}

// String generates a deterministic cache key string.
// Format: gh:cache:endpoint:query1=val1:query2=val2:acct=fingerprint
//
// Example:
//
//	gh:cache:search/repositories:page=1:per_page=100:q=Rust language language:Rust:acct=3f2a9c1b0d4e
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	if k.Account != "" {
		parts = append(parts, "acct="+k.Account)
	}

	return strings.Join(parts, ":")
}

// AccountFingerprint derives a short, non-reversible id from a token so that
// the token itself never ends up in Redis.
func AccountFingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}

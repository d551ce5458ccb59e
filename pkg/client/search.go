package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Sternrassler/starfan/pkg/cache"
)

const searchRepositoriesPath = "/search/repositories"

// SearchRepositories fetches one page of repository search results.
//
// With caching enabled, a stored page adds If-None-Match to the request and a
// 304 reply is decoded from the stored body. The request is always sent.
func (c *Client) SearchRepositories(ctx context.Context, q SearchQuery) ([]ItemRef, error) {
	query := q.Values()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(searchRepositoriesPath, query), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	cacheKey := cache.CacheKey{
		Endpoint:    searchRepositoriesPath,
		QueryParams: query,
		Account:     c.account,
	}

	var cached *cache.CacheEntry
	if c.cache != nil {
		cached, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Int("page", q.PageIndex).Msg("Cache get error")
		}
		if cache.ShouldMakeConditionalRequest(cached) {
			cache.AddConditionalHeaders(req, cached)
			cache.ConditionalRequestsSent.Inc()
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body []byte
	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Int("page", q.PageIndex).Msg("304 Not Modified - using cached page")
		body = cached.Data
		if err := c.cache.UpdateTTL(ctx, cacheKey, cache.ExpiresFromHeaders(resp.Header)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cached search page")
		}

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		resp.Body = io.NopCloser(io.LimitReader(resp.Body, maxBodyBytes))
		if c.cache != nil && resp.StatusCode == http.StatusOK {
			entry, err := cache.ResponseToEntry(resp)
			if err != nil {
				return nil, fmt.Errorf("%w: read search page: %w", ErrTransport, err)
			}
			body = entry.Data
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache search page")
			}
		} else {
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: read search page: %w", ErrTransport, err)
			}
		}

	default:
		return nil, c.apiError(resp)
	}

	items, err := decodeSearchPage(body)
	if err != nil {
		ghErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, err
	}
	return items, nil
}

// decodeSearchPage extracts item references from a search response body.
func decodeSearchPage(body []byte) ([]ItemRef, error) {
	var page searchResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: search response: %v", ErrDecode, err)
	}
	if page.Items == nil {
		return nil, fmt.Errorf("%w: search response has no items field", ErrDecode)
	}
	return *page.Items, nil
}

// apiError drains a non-success response into an *APIError.
func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: c.classifyError(resp, nil),
		Message:    resp.Status,
		Body:       string(body),
	}
}

// Package client provides the GitHub REST client used by starfan: default
// headers, optional rate limit gating and response caching, and the two
// operations the pipeline needs (repository search and starring).
package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Sternrassler/starfan/pkg/cache"
	"github.com/Sternrassler/starfan/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the public GitHub REST API.
	DefaultBaseURL = "https://api.github.com"

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "starfan"

	// APIVersion pins the REST API version (X-GitHub-Api-Version).
	APIVersion = "2022-11-28"

	maxBodyBytes      = 10 << 20
	maxErrorBodyBytes = 64 << 10
)

// Prometheus metrics for GitHub client operations.
var (
	ghRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_requests_total",
		Help: "Total GitHub requests by endpoint and status",
	}, []string{"endpoint", "status"})

	ghRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gh_request_duration_seconds",
		Help:    "GitHub request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	ghErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_errors_total",
		Help: "Total GitHub errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429, and 403 with an exhausted quota.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents bodies that do not match the expected shape.
	ErrorClassDecode ErrorClass = "decode"
)

// Client is a GitHub REST client. It is immutable after New and safe for
// concurrent use; every pipeline task shares one instance.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	account     string
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the REST API (DefaultBaseURL unless testing or GHES).
	BaseURL string

	// Token is sent as a bearer credential on every request (REQUIRED).
	Token string

	// UserAgent header (REQUIRED by GitHub).
	UserAgent string

	// Timeout bounds each request including reading the body.
	Timeout time.Duration

	// MaxIdleConnsPerHost sizes the shared connection pool for fan-out.
	MaxIdleConnsPerHost int

	// Redis enables rate limit tracking and, with CacheSearch, the search
	// response cache. Nil disables both.
	Redis *redis.Client

	// CacheSearch stores search pages in Redis for conditional requests.
	CacheSearch bool

	// CacheRetention keeps expired pages as validators (cache.DefaultRetention
	// when zero).
	CacheRetention time.Duration
}

// DefaultConfig returns a default configuration for token.
func DefaultConfig(token string) Config {
	return Config{
		BaseURL:             DefaultBaseURL,
		Token:               token,
		UserAgent:           DefaultUserAgent,
		Timeout:             30 * time.Second,
		MaxIdleConnsPerHost: 100,
		CacheSearch:         true,
	}
}

// ValidateToken rejects tokens that cannot be sent in an Authorization header.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	for _, r := range token {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r > unicode.MaxASCII {
			return fmt.Errorf("token contains invalid characters")
		}
	}
	return nil
}

// New creates a new GitHub client.
func New(cfg Config) (*Client, error) {
	if err := ValidateToken(cfg.Token); err != nil {
		return nil, err
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	logger := log.With().Str("component", "github-client").Logger()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL: base,
		account: cache.AccountFingerprint(cfg.Token),
		config:  cfg,
		logger:  logger,
	}

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, c.account, logger)
		if cfg.CacheSearch {
			c.cache = cache.NewManager(cfg.Redis)
			if cfg.CacheRetention > 0 {
				c.cache.SetRetention(cfg.CacheRetention)
			}
		}
	}

	return c, nil
}

// Do sends req with the default headers, gated by the rate limit tracker.
// Any HTTP status is returned to the caller; the error is non-nil only for
// local refusals (ErrRateLimited) and transport failures (ErrTransport).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	path := strings.TrimPrefix(req.URL.Path, c.baseURL.Path)
	endpoint := endpointLabel(path)
	resource := ratelimit.ResourceForPath(path)

	startTime := time.Now()
	defer func() {
		ghRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx, resource)
		if err != nil {
			// Redis trouble must not stop the run.
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		} else if !allowed {
			ghRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, resource)
		}
	}

	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-GitHub-Api-Version", APIVersion)

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("path", path).
		Msg("Executing GitHub request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errClass := c.classifyError(nil, err)
		ghErrorsTotal.WithLabelValues(string(errClass)).Inc()
		ghRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, path, err)
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header, resource); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	ghRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		errClass := c.classifyError(resp, nil)
		ghErrorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("GitHub request error")
	}

	return resp, nil
}

// classifyError categorizes a failed request for metrics and diagnostics.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// resolve joins an escaped API path and query onto the base URL.
func (c *Client) resolve(path string, query url.Values) string {
	s := c.baseURL.String() + path
	if len(query) > 0 {
		s += "?" + query.Encode()
	}
	return s
}

// endpointLabel keeps metric cardinality bounded.
func endpointLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/search/"):
		return "search"
	case strings.HasPrefix(path, "/user/starred/"):
		return "star"
	default:
		return "other"
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the cache manager, nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

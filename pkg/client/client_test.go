package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/starfan/internal/testutil"
	"github.com/Sternrassler/starfan/pkg/cache"
	"github.com/Sternrassler/starfan/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

const testToken = "ghp_testtoken123"

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// newTestClient creates a client pointed at mock without Redis.
func newTestClient(t *testing.T, mock *testutil.MockGitHub) *Client {
	t.Helper()

	cfg := DefaultConfig(testToken)
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 5 * time.Second

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig(testToken),
		},
		{
			name: "missing token",
			config: Config{
				UserAgent: "starfan-test",
			},
			expectError: true,
			errorMsg:    "token is required",
		},
		{
			name: "token with whitespace",
			config: Config{
				Token:     "ghp_abc def",
				UserAgent: "starfan-test",
			},
			expectError: true,
			errorMsg:    "token contains invalid characters",
		},
		{
			name: "token with newline",
			config: Config{
				Token:     "ghp_abc\n",
				UserAgent: "starfan-test",
			},
			expectError: true,
			errorMsg:    "token contains invalid characters",
		},
		{
			name: "missing user agent",
			config: Config{
				Token: testToken,
			},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name: "relative base url",
			config: Config{
				Token:     testToken,
				UserAgent: "starfan-test",
				BaseURL:   "api.github.com",
			},
			expectError: true,
			errorMsg:    `base url must be absolute (got "api.github.com")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("Expected client but got nil")
			}
			if client.rateLimiter != nil || client.cache != nil {
				t.Error("Expected no rate limiter and no cache without Redis")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testToken)

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.Token != testToken {
		t.Errorf("Token = %q, want %q", cfg.Token, testToken)
	}
	if cfg.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, DefaultUserAgent)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if !cfg.CacheSearch {
		t.Error("CacheSearch should default to true")
	}
}

func TestClassifyError(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name       string
		statusCode int
		remaining  string
		err        error
		expected   ErrorClass
	}{
		{name: "network error", err: errors.New("connection refused"), expected: ErrorClassNetwork},
		{name: "client error 404", statusCode: 404, expected: ErrorClassClient},
		{name: "validation 422", statusCode: 422, expected: ErrorClassClient},
		{name: "forbidden with quota left", statusCode: 403, remaining: "10", expected: ErrorClassClient},
		{name: "forbidden with exhausted quota", statusCode: 403, remaining: "0", expected: ErrorClassRateLimit},
		{name: "too many requests", statusCode: 429, expected: ErrorClassRateLimit},
		{name: "server error 502", statusCode: 502, expected: ErrorClassServer},
		{name: "no content 204", statusCode: 204, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.statusCode > 0 {
				resp = &http.Response{StatusCode: tt.statusCode, Header: http.Header{}}
				if tt.remaining != "" {
					resp.Header.Set("X-RateLimit-Remaining", tt.remaining)
				}
			}

			result := client.classifyError(resp, tt.err)
			if result != tt.expected {
				t.Errorf("classifyError() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"/search/repositories":         "search",
		"/user/starred/rust-lang/rust": "star",
		"/rate_limit":                  "other",
	}
	for path, want := range tests {
		if got := endpointLabel(path); got != want {
			t.Errorf("endpointLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDo_DefaultHeaders(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()

	client := newTestClient(t, mock)

	if err := client.Star(context.Background(), "rust-lang", "rust"); err != nil {
		t.Fatalf("Star() failed: %v", err)
	}

	h := mock.LastRequestHeader()
	want := map[string]string{
		"Authorization":        "Bearer " + testToken,
		"Accept":               "application/vnd.github+json",
		"User-Agent":           DefaultUserAgent,
		"X-GitHub-Api-Version": APIVersion,
	}
	for key, value := range want {
		if got := h.Get(key); got != value {
			t.Errorf("%s = %q, want %q", key, got, value)
		}
	}
}

func TestDo_TransportError(t *testing.T) {
	mock := testutil.NewMockGitHub()
	client := newTestClient(t, mock)
	mock.Close()

	_, err := client.SearchRepositories(context.Background(), SearchQuery{FilterTerm: "x", PageSize: 1})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestSearchRepositories(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()

	mock.SetPage(1,
		testutil.Repo{Owner: "rust-lang", Name: "rust"},
		testutil.Repo{Owner: "tokio-rs", Name: "tokio"},
		testutil.Repo{Name: "orphan"},
	)

	client := newTestClient(t, mock)

	items, err := client.SearchRepositories(context.Background(), SearchQuery{
		FilterTerm:     "Rust language",
		LanguageFilter: "Rust",
		PageSize:       3,
		PageIndex:      0,
	})
	if err != nil {
		t.Fatalf("SearchRepositories() failed: %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	if items[0].FullName() != "rust-lang/rust" {
		t.Errorf("items[0] = %q, want rust-lang/rust", items[0].FullName())
	}
	if items[2].Owner != nil {
		t.Errorf("items[2].Owner = %+v, want nil", items[2].Owner)
	}

	queries := mock.SearchQueries()
	if len(queries) != 1 {
		t.Fatalf("search requests = %d, want 1", len(queries))
	}
	q := queries[0]
	if q.Get("page") != "1" {
		t.Errorf("page = %q, want 1 (PageIndex 0 is the first page)", q.Get("page"))
	}
	if q.Get("per_page") != "3" {
		t.Errorf("per_page = %q, want 3", q.Get("per_page"))
	}
	if q.Get("q") != "Rust language language:Rust" {
		t.Errorf("q = %q, want %q", q.Get("q"), "Rust language language:Rust")
	}
}

func TestSearchRepositories_Errors(t *testing.T) {
	tests := []struct {
		name     string
		resp     testutil.MockResponse
		target   error
		wantCode int
	}{
		{
			name:   "malformed body",
			resp:   testutil.MockResponse{StatusCode: 200, Body: `{"items": [`},
			target: ErrDecode,
		},
		{
			name:   "missing items",
			resp:   testutil.MockResponse{StatusCode: 200, Body: `{"total_count": 0}`},
			target: ErrDecode,
		},
		{
			name:     "server error",
			resp:     testutil.NewServerErrorResponse(),
			target:   ErrApplication,
			wantCode: 500,
		},
		{
			name:     "validation failed",
			resp:     testutil.NewValidationFailedResponse(`{"message":"Validation Failed"}`),
			target:   ErrApplication,
			wantCode: 422,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockGitHub()
			defer mock.Close()
			mock.SetPageResponse(1, tt.resp)

			client := newTestClient(t, mock)

			items, err := client.SearchRepositories(context.Background(), SearchQuery{FilterTerm: "x", PageSize: 3})
			if !errors.Is(err, tt.target) {
				t.Fatalf("error = %v, want %v", err, tt.target)
			}
			if items != nil {
				t.Errorf("items = %v, want nil", items)
			}
			if got := StatusCode(err); got != tt.wantCode {
				t.Errorf("StatusCode(err) = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestSearchRepositories_BrokenConnection(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()
	mock.BreakPage(1)

	client := newTestClient(t, mock)

	_, err := client.SearchRepositories(context.Background(), SearchQuery{FilterTerm: "x", PageSize: 3})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestStar(t *testing.T) {
	tests := []struct {
		name      string
		resp      *testutil.MockResponse
		wantErr   bool
		wantCause string
		wantCode  int
	}{
		{
			name: "no content is success",
		},
		{
			name:      "validation failed",
			resp:      ptr(testutil.NewValidationFailedResponse(`"validation failed"`)),
			wantErr:   true,
			wantCause: `"validation failed"`,
			wantCode:  422,
		},
		{
			name:      "not found",
			resp:      ptr(testutil.NewNotFoundResponse()),
			wantErr:   true,
			wantCause: `{"message":"Not Found"}`,
			wantCode:  404,
		},
		{
			name:      "ok with body is not success",
			resp:      &testutil.MockResponse{StatusCode: 200, Body: "unexpected"},
			wantErr:   true,
			wantCause: "unexpected",
			wantCode:  200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockGitHub()
			defer mock.Close()
			if tt.resp != nil {
				mock.SetStarResponse("rust-lang", "rust", *tt.resp)
			}

			client := newTestClient(t, mock)
			err := client.Star(context.Background(), "rust-lang", "rust")

			if mock.StarCount("rust-lang/rust") != 1 {
				t.Errorf("star requests = %d, want 1", mock.StarCount("rust-lang/rust"))
			}

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Star() error = %v", err)
				}
				return
			}

			if !errors.Is(err, ErrApplication) {
				t.Fatalf("error = %v, want ErrApplication", err)
			}
			if got := Cause(err); got != tt.wantCause {
				t.Errorf("Cause() = %q, want %q", got, tt.wantCause)
			}
			if got := StatusCode(err); got != tt.wantCode {
				t.Errorf("StatusCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestStarPath(t *testing.T) {
	if got := StarPath("rust-lang", "rust"); got != "/user/starred/rust-lang/rust" {
		t.Errorf("StarPath() = %q", got)
	}
	if got := StarPath("a b", "c/d"); !strings.Contains(got, "a%20b") || !strings.HasSuffix(got, "c%2Fd") {
		t.Errorf("StarPath() did not escape segments: %q", got)
	}
}

func TestDo_RateLimitGate(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockGitHub()
	defer mock.Close()

	ctx := context.Background()
	redisClient.HSet(ctx, ratelimit.RedisKey(ratelimit.ResourceCore, cache.AccountFingerprint(testToken)),
		"limit", 5000,
		"remaining", 0,
		"reset", time.Now().Add(time.Minute).Unix(),
		"last_update", time.Now().UnixNano(),
	)

	cfg := DefaultConfig(testToken)
	cfg.BaseURL = mock.URL()
	cfg.Redis = redisClient
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	err = client.Star(ctx, "rust-lang", "rust")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if len(mock.StarRequests()) != 0 {
		t.Error("Refused request must not reach the server")
	}

	// The search resource has its own quota.
	if _, err := client.SearchRepositories(ctx, SearchQuery{FilterTerm: "x", PageSize: 1}); err != nil {
		t.Errorf("SearchRepositories() error = %v", err)
	}
}

func TestDo_RateLimitGatePerToken(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockGitHub()
	defer mock.Close()

	ctx := context.Background()
	otherToken := "ghp_othertoken456"
	redisClient.HSet(ctx, ratelimit.RedisKey(ratelimit.ResourceCore, cache.AccountFingerprint(otherToken)),
		"limit", 5000,
		"remaining", 0,
		"reset", time.Now().Add(time.Hour).Unix(),
		"last_update", time.Now().UnixNano(),
	)

	cfg := DefaultConfig(testToken)
	cfg.BaseURL = mock.URL()
	cfg.Redis = redisClient
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := client.Star(ctx, "rust-lang", "rust"); err != nil {
		t.Fatalf("Star() error = %v, want nil (quota of another token)", err)
	}
	if got := mock.StarCount("rust-lang/rust"); got != 1 {
		t.Errorf("star requests = %d, want 1", got)
	}
}

func TestSearchRepositories_ConditionalReplay(t *testing.T) {
	redisClient := setupTestRedis(t)

	mock := testutil.NewMockGitHub()
	defer mock.Close()
	mock.EnableETags()
	mock.SetPage(1, testutil.Repo{Owner: "rust-lang", Name: "rust"})

	cfg := DefaultConfig(testToken)
	cfg.BaseURL = mock.URL()
	cfg.Redis = redisClient
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx := context.Background()
	q := SearchQuery{FilterTerm: "x", PageSize: 1}

	first, err := client.SearchRepositories(ctx, q)
	if err != nil {
		t.Fatalf("first search failed: %v", err)
	}
	second, err := client.SearchRepositories(ctx, q)
	if err != nil {
		t.Fatalf("second search failed: %v", err)
	}

	if len(mock.SearchQueries()) != 2 {
		t.Errorf("search requests = %d, want 2 (the cache never skips a request)", len(mock.SearchQueries()))
	}
	if mock.GetConditionalCount() != 1 {
		t.Errorf("conditional requests = %d, want 1", mock.GetConditionalCount())
	}
	if len(first) != 1 || len(second) != 1 || second[0].FullName() != first[0].FullName() {
		t.Errorf("replayed page = %v, want %v", second, first)
	}
}

func ptr[T any](v T) *T { return &v }

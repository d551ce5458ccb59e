// Package testutil provides testing utilities for the starfan packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	searchPath  = "/search/repositories"
	starPrefix  = "/user/starred/"
	defaultRate = 4999
)

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Repo is one search result. An empty Owner is served as "owner": null.
type Repo struct {
	Owner string
	Name  string
}

// MockGitHub is a configurable mock of the two GitHub endpoints starfan uses:
// GET /search/repositories and PUT /user/starred/{owner}/{repo}.
//
// Search pages are keyed by the wire page number (1-based). A page that was
// never configured is served as an empty result set.
//
// page < 1 (or a missing page) is rejected with 422. GitHub itself serves
// page=0 as page 1; the mock is stricter so that an off-by-one in the wire
// mapping fails loudly instead of silently fetching page 1 twice.
type MockGitHub struct {
	server *httptest.Server

	mu            sync.RWMutex
	pages         map[int][]Repo
	pageResponses map[int]MockResponse
	brokenPages   map[int]bool
	starResponses map[string]MockResponse
	starDelay     time.Duration
	etags         bool
	rateRemaining map[string]int

	searchQueries     []url.Values
	starRequests      []string
	conditionalCount  int
	lastRequestHeader http.Header
}

// NewMockGitHub starts a new mock GitHub server.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{
		pages:         make(map[int][]Repo),
		pageResponses: make(map[int]MockResponse),
		brokenPages:   make(map[int]bool),
		starResponses: make(map[string]MockResponse),
		rateRemaining: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.lastRequestHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" {
			mock.conditionalCount++
		}
		mock.mu.Unlock()

		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, `{"message":"Requires authentication"}`)
			return
		}

		switch {
		case r.URL.Path == searchPath:
			mock.handleSearch(w, r)
		case strings.HasPrefix(r.URL.Path, starPrefix):
			mock.handleStar(w, r)
		default:
			writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// SetPage serves repos on the given wire page.
func (m *MockGitHub) SetPage(page int, repos ...Repo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = repos
}

// SetPageResponse serves a fixed response on the given wire page.
func (m *MockGitHub) SetPageResponse(page int, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageResponses[page] = resp
}

// BreakPage makes the server drop the connection for the given wire page,
// which the client sees as a transport failure.
func (m *MockGitHub) BreakPage(page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brokenPages[page] = true
}

// SetStarResponse overrides the 204 reply for owner/name.
func (m *MockGitHub) SetStarResponse(owner, name string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starResponses[owner+"/"+name] = resp
}

// SetStarDelay delays every star reply.
func (m *MockGitHub) SetStarDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starDelay = d
}

// EnableETags makes search pages carry an ETag and honour If-None-Match.
func (m *MockGitHub) EnableETags() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etags = true
}

// SetRateRemaining sets the X-RateLimit-Remaining value reported for resource.
func (m *MockGitHub) SetRateRemaining(resource string, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateRemaining[resource] = remaining
}

// SearchQueries returns the query parameters of every search request received.
func (m *MockGitHub) SearchQueries() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]url.Values, len(m.searchQueries))
	copy(out, m.searchQueries)
	return out
}

// SearchPages returns the sorted wire page numbers of every search request.
func (m *MockGitHub) SearchPages() []int {
	queries := m.SearchQueries()
	pages := make([]int, 0, len(queries))
	for _, q := range queries {
		p, _ := strconv.Atoi(q.Get("page"))
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// StarRequests returns "owner/name" for every star request, in arrival order.
func (m *MockGitHub) StarRequests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.starRequests))
	copy(out, m.starRequests)
	return out
}

// StarCount returns how many star requests were received for owner/name.
func (m *MockGitHub) StarCount(fullName string) int {
	n := 0
	for _, r := range m.StarRequests() {
		if r == fullName {
			n++
		}
	}
	return n
}

// GetConditionalCount returns the number of requests carrying If-None-Match.
func (m *MockGitHub) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockGitHub) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

func (m *MockGitHub) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, `{"message":"Method Not Allowed"}`)
		return
	}

	query := r.URL.Query()
	m.mu.Lock()
	m.searchQueries = append(m.searchQueries, query)
	m.mu.Unlock()

	page, err := strconv.Atoi(query.Get("page"))
	// stricter than GitHub, see MockGitHub
	if err != nil || page < 1 {
		writeJSON(w, http.StatusUnprocessableEntity,
			`{"message":"Validation Failed","errors":[{"field":"page","code":"invalid"}]}`)
		return
	}

	m.mu.RLock()
	broken := m.brokenPages[page]
	resp, custom := m.pageResponses[page]
	repos := m.pages[page]
	etags := m.etags
	m.mu.RUnlock()

	if broken {
		dropConnection(w)
		return
	}

	m.setRateHeaders(w, "search", 30)

	if custom {
		writeResponse(w, resp)
		return
	}

	body := SearchBody(repos)
	if etags {
		etag := fmt.Sprintf(`"page-%d-%d"`, page, len(body))
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "private, max-age=60")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (m *MockGitHub) handleStar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeJSON(w, http.StatusMethodNotAllowed, `{"message":"Method Not Allowed"}`)
		return
	}

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, starPrefix), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
		return
	}
	fullName := parts[0] + "/" + parts[1]

	m.mu.Lock()
	m.starRequests = append(m.starRequests, fullName)
	resp, custom := m.starResponses[fullName]
	delay := m.starDelay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.setRateHeaders(w, "core", 5000)

	if custom {
		writeResponse(w, resp)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockGitHub) setRateHeaders(w http.ResponseWriter, resource string, limit int) {
	m.mu.RLock()
	remaining, ok := m.rateRemaining[resource]
	m.mu.RUnlock()
	if !ok {
		remaining = defaultRate
		if remaining > limit {
			remaining = limit - 1
		}
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
	w.Header().Set("X-RateLimit-Resource", resource)
}

// SearchBody renders repos as a /search/repositories response body.
func SearchBody(repos []Repo) string {
	type owner struct {
		Login string `json:"login"`
	}
	type item struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
		Owner    *owner `json:"owner"`
	}

	items := make([]item, 0, len(repos))
	for _, r := range repos {
		it := item{Name: r.Name, FullName: r.Name}
		if r.Owner != "" {
			it.Owner = &owner{Login: r.Owner}
			it.FullName = r.Owner + "/" + r.Name
		}
		items = append(items, it)
	}

	body, _ := json.Marshal(struct {
		TotalCount        int    `json:"total_count"`
		IncompleteResults bool   `json:"incomplete_results"`
		Items             []item `json:"items"`
	}{TotalCount: len(items), Items: items})
	return string(body)
}

// Repos builds n repos named <prefix>-0 .. <prefix>-(n-1) owned by owner.
func Repos(owner, prefix string, n int) []Repo {
	repos := make([]Repo, n)
	for i := range repos {
		repos[i] = Repo{Owner: owner, Name: fmt.Sprintf("%s-%d", prefix, i)}
	}
	return repos
}

// NewValidationFailedResponse creates a 422 Unprocessable Entity response.
func NewValidationFailedResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"message":"Not Found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message":"Server Error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// dropConnection closes the underlying connection without writing a response.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("testutil: response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

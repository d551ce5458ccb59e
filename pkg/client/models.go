package client

import (
	"net/url"
	"strconv"
	"strings"
)

// SearchQuery describes one page of a repository search.
type SearchQuery struct {
	// FilterTerm is the free-text part of the search (e.g. "Rust language").
	FilterTerm string

	// LanguageFilter restricts results to one primary language (e.g. "Rust").
	LanguageFilter string

	// PageSize is the number of items per page (GitHub caps this at 100).
	PageSize int

	// PageIndex is 0-based. The wire parameter is PageIndex+1 because
	// GitHub search pages start at 1.
	PageIndex int
}

// Values returns the URL query parameters for the search request.
func (q SearchQuery) Values() url.Values {
	terms := strings.TrimSpace(q.FilterTerm)
	if lang := strings.TrimSpace(q.LanguageFilter); lang != "" {
		terms = strings.TrimSpace(terms + " language:" + lang)
	}

	v := url.Values{}
	v.Set("q", terms)
	v.Set("per_page", strconv.Itoa(q.PageSize))
	v.Set("page", strconv.Itoa(q.PageIndex+1))
	return v
}

// OwnerRef identifies the account owning a repository.
type OwnerRef struct {
	Login string `json:"login"`
}

// ItemRef is the part of a search result needed to star a repository.
type ItemRef struct {
	Name  string    `json:"name"`
	Owner *OwnerRef `json:"owner"`
}

// FullName returns "owner/name", or just the name when the owner is missing.
func (r ItemRef) FullName() string {
	if r.Owner == nil {
		return r.Name
	}
	return r.Owner.Login + "/" + r.Name
}

// searchResponse is the subset of the /search/repositories body we decode.
type searchResponse struct {
	TotalCount        int        `json:"total_count"`
	IncompleteResults bool       `json:"incomplete_results"`
	Items             *[]ItemRef `json:"items"`
}

package pagination

import "github.com/Sternrassler/starfan/pkg/client"

// Plan returns one search query per page index in [0, pageCount).
// All queries share the same filter, language and page size.
func Plan(pageCount, pageSize int, filterTerm, languageFilter string) []client.SearchQuery {
	if pageCount <= 0 {
		return nil
	}

	queries := make([]client.SearchQuery, pageCount)
	for i := range queries {
		queries[i] = client.SearchQuery{
			FilterTerm:     filterTerm,
			LanguageFilter: languageFilter,
			PageSize:       pageSize,
			PageIndex:      i,
		}
	}
	return queries
}

// Package pagination plans and fetches the pages of a repository search.
//
// The page count is decided up front: Plan returns one query per page index
// in [0, pageCount) and no "next page" signal is ever followed. BatchFetcher
// then fetches those pages with a worker pool and delivers one PageResult per
// query, in completion order.
//
// Example usage:
//
//	queries := pagination.Plan(10, 100, "Rust language", "Rust")
//	fetcher := pagination.NewBatchFetcher(ghClient, pagination.DefaultConfig())
//	for result := range fetcher.FetchPages(ctx, queries) {
//		if result.Err != nil {
//			continue
//		}
//		// use result.Items
//	}
//
// The batch fetcher:
//   - Spawns a worker pool (default 10 workers, never more than pages)
//   - Bounds every page fetch with its own timeout
//   - Isolates failures: a failed page yields Err and zero items, siblings continue
//   - Never retries
package pagination

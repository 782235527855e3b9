// Package searcher answers semantic queries over the indexed sections.
//
// # Basic Usage
//
//	s, err := searcher.New(searcher.Config{Store: store, Embedder: emb})
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:         "skill extraction from job offers",
//	    ChapterFilter: "Background",
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%.3f %s\n", r.Score, r.Payload.Title)
//	}
//
// Queries are embedded with embedder.QueryPrefix, the counterpart of the
// passage prefix used at index time. Results below the score threshold
// (default 0.5) are dropped and at most Limit (default 5) are returned.
//
// Each search runs under Config.Timeout so a hung embedding or store call
// fails the request instead of blocking the caller.
//
// # Caching
//
// With SearchRequest.UseCache set, non-empty responses are kept in an LRU
// cache for Config.CacheTTL. InvalidateCache clears it after reindexing.
//
// # Catalog and Pagination
//
// BuildCatalog scans the whole collection page by page to list chapters and
// sources and count documents, chapters and sections. Paginate slices a
// ranked result list the way the HTTP API pages search results.
package searcher

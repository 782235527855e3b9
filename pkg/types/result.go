package types

// SearchResult represents a single search hit with its similarity score
type SearchResult struct {
	ID      uint64
	Score   float64 // Cosine similarity, higher is better
	Payload Payload
}

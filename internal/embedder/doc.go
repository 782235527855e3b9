// Package embedder turns section text into dense vectors.
//
// Hosted providers (DeepInfra, Jina AI, OpenAI) share one client for the
// OpenAI-compatible /embeddings endpoint. The local provider hashes words
// into buckets and needs no network, which makes it the fallback when no API
// key is configured and the default in tests.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: embedder.ProviderDeepInfra})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{embedder.PassagePrefix + section.Content},
//	})
//
// Embeddings come back in request order. Texts seen before are served from
// an LRU cache keyed by SHA-256 of the text, and only cache misses go to the
// API.
//
// # Retries and Rate Limits
//
// HTTPConfig.MaxAttempts bounds the number of API calls per batch. The
// default of 1 leaves retry policy to the caller; the indexer retries a
// failed file on its next run. RequestsPerSecond throttles calls with a
// token bucket. Client errors such as a rejected key end a batch at once;
// 408, 429 and 5xx responses use the remaining attempts.
package embedder

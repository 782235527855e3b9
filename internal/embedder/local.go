package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

const localModel = "feature-hashing-v1"

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// LocalProvider embeds text offline by hashing word unigrams and bigrams into
// a fixed number of buckets. Vectors are L2-normalized so cosine similarity
// reflects shared vocabulary. It needs no network and is deterministic.
type LocalProvider struct {
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a local embedder. dimension <= 0 selects LocalDimension.
func NewLocalProvider(dimension int, cache *Cache) (*LocalProvider, error) {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	var vec []float32
	if l.cache != nil {
		vec, _ = l.cache.Get(localModel, hash)
	}
	if vec == nil {
		vec = l.vectorize(req.Text)
		if l.cache != nil {
			l.cache.Set(localModel, hash, vec)
		}
	}

	return &Embedding{
		Vector:    vec,
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     localModel,
		Hash:      hash,
	}, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      localModel,
	}, nil
}

// vectorize applies the hashing trick: each feature adds +1 or -1 to one
// bucket, the sign taken from a second hash bit to reduce collision bias.
func (l *LocalProvider) vectorize(text string) []float32 {
	vector := make([]float32, l.dimension)
	tokens := tokenPattern.FindAllString(strings.ToLower(stripPrefix(text)), -1)

	add := func(feature string) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		if sum&(1<<63) != 0 {
			vector[idx]--
		} else {
			vector[idx]++
		}
	}

	for i, tok := range tokens {
		add(tok)
		if i > 0 {
			add(tokens[i-1] + " " + tok)
		}
	}

	return NormalizeVector(vector)
}

// stripPrefix drops the passage/query marker so both sides share a vocabulary.
func stripPrefix(text string) string {
	for _, p := range []string{PassagePrefix, QueryPrefix} {
		if strings.HasPrefix(text, p) {
			return text[len(p):]
		}
	}
	return text
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return localModel
}

func (l *LocalProvider) Close() error {
	return nil
}

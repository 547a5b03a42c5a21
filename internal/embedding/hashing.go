package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDimension is the embedding width used everywhere the engine does
// not override EMBED_DIM; it matches the MiniLM-L6 class of models so a
// persisted index built under the hashing backend stays dimension-compatible
// if an operator later swaps in the ONNX backend with the same EMBED_DIM.
const DefaultDimension = 384

// embedCacheSize bounds each HashingEmbedder's own LRU cache of
// normalized text -> vector entries.
const embedCacheSize = 4096

// HashingEmbedder is the default, always-available Embedder. It tokenizes
// normalized text and hashes each token into one of Dim signed buckets
// (the hashing trick / random projection), summing contributions and
// L2-normalizing. Two texts sharing vocabulary land closer in cosine space
// than two that don't, which is enough signal for the engine's identity and
// near-duplicate recall scenarios without any model file.
type HashingEmbedder struct {
	dim   int
	cache *lru.Cache[string, []float32]
	mu    sync.Mutex
}

// NewHashingEmbedder returns a HashingEmbedder producing vectors of width dim.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	cache, _ := lru.New[string, []float32](embedCacheSize)
	return &HashingEmbedder{dim: dim, cache: cache}
}

func (h *HashingEmbedder) Model() string   { return "hashing-v1" }
func (h *HashingEmbedder) Dimension() int  { return h.dim }
func (h *HashingEmbedder) ModelLoaded() bool { return false }

// Embed is pure CPU and never suspends, matching the engine's concurrency
// model for the embedder (non-suspending, semaphore-bounded by the caller).
func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := normalizeForHash(text)

	h.mu.Lock()
	if v, ok := h.cache.Get(key); ok {
		h.mu.Unlock()
		return v, nil
	}
	h.mu.Unlock()

	vec := h.hashEmbed(key)

	h.mu.Lock()
	h.cache.Add(key, vec)
	h.mu.Unlock()

	return vec, nil
}

func (h *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// hashEmbed implements the feature-hashing scheme. Each token contributes
// +1 or -1 (sign from a second hash) to one of Dim accumulator slots,
// chosen by the first hash. Bigram hashing on adjacent tokens gives a
// little local word-order signal without a real tokenizer.
func (h *HashingEmbedder) hashEmbed(normalized string) []float32 {
	vec := make([]float32, h.dim)
	tokens := strings.Fields(normalized)
	for i, tok := range tokens {
		addToken(vec, tok)
		if i > 0 {
			addToken(vec, tokens[i-1]+"_"+tok)
		}
	}
	l2Normalize(vec)
	return vec
}

func addToken(vec []float32, tok string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	bucketHash := h.Sum64()

	sgn := fnv.New32a()
	_, _ = sgn.Write([]byte("sign:" + tok))
	sign := float32(1)
	if sgn.Sum32()%2 == 0 {
		sign = -1
	}

	idx := int(bucketHash % uint64(len(vec)))
	vec[idx] += sign
}

func l2Normalize(vec []float32) {
	var sumSq float64
	for _, x := range vec {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}

// normalizeForHash trims, collapses whitespace, and lowercases, per the
// embedder contract's "lowercase only for hashing" clause.
func normalizeForHash(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

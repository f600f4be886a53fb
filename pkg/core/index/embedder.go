// Package index provides similarity search over document chunks with
// an on-disk per-filing index.
package index

import (
	"context"
	"math"
	"strings"

	"github.com/minio/highwayhash"
)

// Embedder turns text into fixed-dimension vectors. Implementations
// must be deterministic so a persisted index stays queryable.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

const hashDimension = 256

var hashKey = []byte("filinglens-chunk-index-hash-key!")

// HashEmbedder maps text to hashed term-frequency vectors. Tokens are
// bucketed by a keyed 64-bit hash, counted, and the resulting vector is
// L2-normalized so dot product equals cosine similarity. It needs no
// model weights and produces stable vectors across processes.
type HashEmbedder struct{}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

func (e *HashEmbedder) Dimension() int { return hashDimension }

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := embedOne(text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func embedOne(text string) ([]float32, error) {
	vec := make([]float32, hashDimension)
	for _, token := range tokenize(text) {
		h, err := highwayhash.New64(hashKey)
		if err != nil {
			return nil, err
		}
		if _, err := h.Write([]byte(token)); err != nil {
			return nil, err
		}
		vec[h.Sum64()%hashDimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// tokenize lowercases and splits on non-alphanumeric runs, dropping
// single-character tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

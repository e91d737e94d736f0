// Package vectortest provides a deterministic embedder for tests.
package vectortest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
)

const Dimensions = 32

// Embedder hashes lowercase words into a fixed number of buckets, so texts
// sharing words land close together.
type Embedder struct {
	// Err, when set, is returned by every call.
	Err error

	mu    sync.Mutex
	calls int
}

var _ embeddings.Embedder = (*Embedder)(nil)

func (e *Embedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = Vector(text)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func Vector(text string) []float32 {
	vec := make([]float32, Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%Dimensions]++
	}
	return vec
}

package vectorstore

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
)

type memoryEntry struct {
	doc    schema.Document
	vector []float32
}

// Memory is a brute-force cosine store for local runs and tests. Data lives
// only as long as the process.
type Memory struct {
	mu         sync.RWMutex
	dimensions int
	namespaces map[string][]memoryEntry
}

// NewMemory returns an empty store. dimensions <= 0 disables the length check.
func NewMemory(dimensions int) *Memory {
	return &Memory{dimensions: dimensions, namespaces: make(map[string][]memoryEntry)}
}

func (m *Memory) AddDocuments(ctx context.Context, emb embeddings.Embedder, namespace string, docs []schema.Document) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	vectors, err := embedContents(ctx, emb, docs)
	if err != nil {
		return err
	}

	entries := make([]memoryEntry, len(docs))
	for i, doc := range docs {
		if m.dimensions > 0 && len(vectors[i]) != m.dimensions {
			return fmt.Errorf("%w: got %d, store expects %d", ErrDimensionMismatch, len(vectors[i]), m.dimensions)
		}
		entries[i] = memoryEntry{
			doc: schema.Document{
				PageContent: doc.PageContent,
				Metadata:    maps.Clone(doc.Metadata),
			},
			vector: slices.Clone(vectors[i]),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces[namespace] = append(m.namespaces[namespace], entries...)
	return nil
}

func (m *Memory) SimilaritySearch(ctx context.Context, emb embeddings.Embedder, namespace, query string, k int) ([]schema.Document, error) {
	if err := checkNamespace(namespace); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	vector, err := emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	m.mu.RLock()
	entries := m.namespaces[namespace]
	scored := make([]schema.Document, 0, len(entries))
	for _, e := range entries {
		scored = append(scored, schema.Document{
			PageContent: e.doc.PageContent,
			Metadata:    maps.Clone(e.doc.Metadata),
			Score:       cosine(e.vector, vector),
		})
	}
	m.mu.RUnlock()

	slices.SortStableFunc(scored, func(a, b schema.Document) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (m *Memory) DeleteNamespace(_ context.Context, namespace string) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

// Count reports how many chunks a namespace holds.
func (m *Memory) Count(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace])
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

func cosine(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

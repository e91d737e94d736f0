// Package vectorstore stores embedded document chunks per namespace and runs
// nearest-neighbour queries over them.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"

	"pdfchat/internal/config"
)

var (
	ErrEmptyNamespace     = errors.New("vector store namespace is empty")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrMissingConfig      = errors.New("vector store config is incomplete")
	ErrUnsupportedBackend = config.ErrUnsupportedVectorBackend
)

// Store is implemented by every backend. Documents written under one
// namespace are never returned for another.
type Store interface {
	AddDocuments(ctx context.Context, emb embeddings.Embedder, namespace string, docs []schema.Document) error
	SimilaritySearch(ctx context.Context, emb embeddings.Embedder, namespace, query string, k int) ([]schema.Document, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	Ping(ctx context.Context) error
	Close()
}

func Open(ctx context.Context, cfg config.VectorStoreConfig) (Store, error) {
	backend, err := config.ParseVectorBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	switch backend {
	case config.VectorBackendPGVector:
		return NewPGVector(ctx, cfg)
	case config.VectorBackendMemory:
		return NewMemory(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}

// Retriever binds a store to one namespace and embedder.
type Retriever struct {
	store     Store
	embedder  embeddings.Embedder
	namespace string
	k         int
}

var _ schema.Retriever = (*Retriever)(nil)

func AsRetriever(store Store, emb embeddings.Embedder, namespace string, k int) *Retriever {
	return &Retriever{store: store, embedder: emb, namespace: namespace, k: k}
}

func (r *Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	return r.store.SimilaritySearch(ctx, r.embedder, r.namespace, query, r.k)
}

func checkNamespace(namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return ErrEmptyNamespace
	}
	return nil
}

func embedContents(ctx context.Context, emb embeddings.Embedder, docs []schema.Document) ([][]float32, error) {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}
	vectors, err := emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents failed: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}
	return vectors, nil
}

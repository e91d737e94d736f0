package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"

	"pdfchat/internal/config"
)

const (
	defaultTable      = "pdf_chunks"
	defaultDimensions = 1536
)

// PGVector keeps chunks in a single Postgres table with a namespace column and
// an ivfflat cosine index.
type PGVector struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
}

func NewPGVector(ctx context.Context, cfg config.VectorStoreConfig) (*PGVector, error) {
	name := strings.TrimSpace(cfg.IndexName)
	if name == "" {
		name = defaultTable
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultDimensions
	}

	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%w: dsn is required", ErrMissingConfig)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgvector failed: %w", err)
	}

	s := &PGVector{pool: pool, table: name, dimensions: dims}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVector) migrate(ctx context.Context) error {
	table := pgx.Identifier{s.table}.Sanitize()
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL
		)`, table, s.dimensions),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (namespace)",
			pgx.Identifier{s.table + "_namespace_idx"}.Sanitize(), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)",
			pgx.Identifier{s.table + "_embedding_idx"}.Sanitize(), table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate pgvector failed: %w", err)
		}
	}
	return nil
}

func (s *PGVector) AddDocuments(ctx context.Context, emb embeddings.Embedder, namespace string, docs []schema.Document) error {
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

	stmt := fmt.Sprintf(
		"INSERT INTO %s (id, namespace, content, metadata, embedding) VALUES ($1, $2, $3, $4, $5)",
		pgx.Identifier{s.table}.Sanitize(),
	)
	batch := &pgx.Batch{}
	for i, doc := range docs {
		if len(vectors[i]) != s.dimensions {
			return fmt.Errorf("%w: got %d, table expects %d", ErrDimensionMismatch, len(vectors[i]), s.dimensions)
		}
		meta := doc.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		rawMeta, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode chunk metadata failed: %w", err)
		}
		batch.Queue(stmt, uuid.NewString(), namespace, sanitizeUTF8(doc.PageContent), rawMeta, pgvector.NewVector(vectors[i]))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin pgvector tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert chunks failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks failed: %w", err)
	}
	return nil
}

func (s *PGVector) SimilaritySearch(ctx context.Context, emb embeddings.Embedder, namespace, query string, k int) ([]schema.Document, error) {
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

	sql := fmt.Sprintf(`SELECT content, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE namespace = $2
		ORDER BY embedding <=> $1
		LIMIT $3`, pgx.Identifier{s.table}.Sanitize())
	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(vector), namespace, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	docs := make([]schema.Document, 0, k)
	for rows.Next() {
		var (
			content string
			rawMeta []byte
			score   float64
		)
		if err := rows.Scan(&content, &rawMeta, &score); err != nil {
			return nil, fmt.Errorf("scan chunk failed: %w", err)
		}
		meta := map[string]any{}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &meta); err != nil {
				return nil, fmt.Errorf("decode chunk metadata failed: %w", err)
			}
		}
		docs = append(docs, schema.Document{PageContent: content, Metadata: meta, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	return docs, nil
}

func (s *PGVector) DeleteNamespace(ctx context.Context, namespace string) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1", pgx.Identifier{s.table}.Sanitize())
	if _, err := s.pool.Exec(ctx, sql, namespace); err != nil {
		return fmt.Errorf("delete namespace failed: %w", err)
	}
	return nil
}

func (s *PGVector) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGVector) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Postgres rejects invalid UTF-8 in TEXT columns; PDF extraction can produce it.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

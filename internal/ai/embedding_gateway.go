package ai

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"pdfchat/internal/config"
)

const (
	defaultEmbeddingModel = "text-embedding-ada-002"
	embeddingBatchSize    = 64
)

// EmbeddingGateway validates the embedding credentials and builds an
// embedder. It keeps no state, so every Load re-reads the configuration; the
// ingestor calls it once per attempt.
type EmbeddingGateway struct {
	cfg config.LLMConfig
}

func NewEmbeddingGateway(cfg config.LLMConfig) *EmbeddingGateway {
	return &EmbeddingGateway{cfg: cfg}
}

func (g *EmbeddingGateway) Validate() error {
	if g.cfg.EmbeddingAPIKey == "" {
		return fmt.Errorf("embedding model: %w (set LLM_EMBEDDING_API_KEY)", ErrMissingAPIKey)
	}
	key := strings.TrimSpace(g.cfg.EmbeddingAPIKey)
	if key == "" {
		return fmt.Errorf("embedding model: %w: key is blank", ErrInvalidAPIKey)
	}
	// Only OpenAI itself guarantees the sk- prefix.
	if strings.TrimSpace(g.cfg.EmbeddingBaseURL) == "" && !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("embedding model: %w: openai keys start with \"sk-\"", ErrInvalidAPIKey)
	}
	return nil
}

func (g *EmbeddingGateway) Load() (embeddings.Embedder, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	model := strings.TrimSpace(g.cfg.EmbeddingModel)
	if model == "" {
		model = defaultEmbeddingModel
	}
	opts := []openai.Option{
		openai.WithToken(strings.TrimSpace(g.cfg.EmbeddingAPIKey)),
		openai.WithEmbeddingModel(model),
	}
	if base := strings.TrimSpace(g.cfg.EmbeddingBaseURL); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init embedding client failed: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(embeddingBatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("init embedder failed: %w", err)
	}
	return embedder, nil
}

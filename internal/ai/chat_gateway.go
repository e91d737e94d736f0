package ai

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"pdfchat/internal/config"
)

// ChatGateway hands out the chat model client. The client is built on first
// use so a missing key only fails chat requests, not process startup.
type ChatGateway struct {
	cfg config.LLMConfig

	mu    sync.Mutex
	model llms.Model
}

func NewChatGateway(cfg config.LLMConfig) *ChatGateway {
	return &ChatGateway{cfg: cfg}
}

func (g *ChatGateway) Validate() error {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return fmt.Errorf("chat model: %w (set LLM_API_KEY)", ErrMissingAPIKey)
	}
	if strings.TrimSpace(g.cfg.BaseURL) == "" || strings.TrimSpace(g.cfg.Model) == "" {
		return fmt.Errorf("chat model: %w: base url and model are required", ErrLLMConfig)
	}
	return nil
}

func (g *ChatGateway) Model() (llms.Model, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model != nil {
		return g.model, nil
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithToken(strings.TrimSpace(g.cfg.APIKey)),
		openai.WithBaseURL(strings.TrimSpace(g.cfg.BaseURL)),
		openai.WithModel(strings.TrimSpace(g.cfg.Model)),
	)
	if err != nil {
		return nil, fmt.Errorf("init chat model failed: %w", err)
	}
	g.model = client
	return client, nil
}

// ModelName is reported in logs and the health endpoint.
func (g *ChatGateway) ModelName() string {
	return g.cfg.Model
}

// Package ragtest provides scripted model and retriever fakes.
package ragtest

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// FakeModel is a scripted llms.Model. Calls without a streaming func return
// Rewrite; streaming calls emit Tokens one by one.
type FakeModel struct {
	Rewrite string
	Tokens  []string
	Err     error

	mu    sync.Mutex
	calls [][]llms.MessageContent
}

var _ llms.Model = (*FakeModel)(nil)

func (m *FakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.mu.Unlock()

	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if opts.StreamingFunc == nil {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.Rewrite}}}, nil
	}

	full := ""
	for _, tok := range m.Tokens {
		if err := opts.StreamingFunc(ctx, []byte(tok)); err != nil {
			return nil, err
		}
		full += tok
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: full}}}, nil
}

func (m *FakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *FakeModel) Calls() [][]llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]llms.MessageContent(nil), m.calls...)
}

// FakeRetriever returns Docs (or Err) after Block is closed, when set.
type FakeRetriever struct {
	Docs  []schema.Document
	Err   error
	Block chan struct{}

	mu      sync.Mutex
	queries []string
}

var _ schema.Retriever = (*FakeRetriever)(nil)

func (r *FakeRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	if r.Block != nil {
		select {
		case <-r.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.Docs, r.Err
}

func (r *FakeRetriever) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

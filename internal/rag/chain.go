// Package rag answers questions about one document: it rewrites the question
// against the conversation, retrieves passages and streams a grounded answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	tokenBuffer = 32
)

var ErrEmptyInput = errors.New("chat input is empty")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Chain struct {
	model     llms.Model
	retriever schema.Retriever
}

func NewChain(model llms.Model, retriever schema.Retriever) *Chain {
	return &Chain{model: model, retriever: retriever}
}

// Stream is one in-flight answer. Tokens is closed when generation ends; Err
// is only meaningful after that.
type Stream struct {
	Tokens  <-chan string
	Sources *Future

	err error
}

func (s *Stream) Err() error {
	return s.err
}

// Stream starts the turn in the background and returns immediately. Failure
// to rewrite or retrieve rejects Sources and ends the stream without tokens.
func (c *Chain) Stream(ctx context.Context, history []Message, input string) (*Stream, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	tokens := make(chan string, tokenBuffer)
	s := &Stream{Tokens: tokens, Sources: newFuture()}
	prior := toMessageContents(history)

	go func() {
		defer close(tokens)

		query := input
		if len(prior) > 0 {
			rewritten, err := c.rewrite(ctx, prior, input)
			if err != nil {
				s.err = fmt.Errorf("rewrite question failed: %w", err)
				s.Sources.reject(s.err)
				return
			}
			query = rewritten
		}

		docs, err := c.retriever.GetRelevantDocuments(ctx, query)
		if err != nil {
			s.err = fmt.Errorf("retrieve passages failed: %w", err)
			s.Sources.reject(s.err)
			return
		}
		s.Sources.resolve(docs)

		messages := make([]llms.MessageContent, 0, len(prior)+2)
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(answerSystemTemplate, joinPassages(docs))))
		messages = append(messages, prior...)
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, input))

		_, err = c.model.GenerateContent(ctx, messages,
			llms.WithTemperature(0),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				select {
				case tokens <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		)
		if err != nil {
			s.err = fmt.Errorf("generate answer failed: %w", err)
		}
	}()

	return s, nil
}

func (c *Chain) rewrite(ctx context.Context, prior []llms.MessageContent, input string) (string, error) {
	messages := make([]llms.MessageContent, 0, len(prior)+2)
	messages = append(messages, prior...)
	messages = append(messages,
		llms.TextParts(llms.ChatMessageTypeHuman, input),
		llms.TextParts(llms.ChatMessageTypeHuman, rephraseInstruction),
	)

	resp, err := c.model.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return input, nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func toMessageContents(history []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleAssistant:
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeGeneric, m.Content))
		}
	}
	return out
}

func joinPassages(docs []schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.PageContent)
	}
	return strings.Join(parts, "\n\n")
}

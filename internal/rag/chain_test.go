package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"pdfchat/internal/rag/ragtest"
)

func drain(s *Stream) string {
	var b strings.Builder
	for tok := range s.Tokens {
		b.WriteString(tok)
	}
	return b.String()
}

func textOf(m llms.MessageContent) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func TestStreamWithoutHistorySkipsRewrite(t *testing.T) {
	model := &ragtest.FakeModel{Tokens: []string{"## Answer", "\n", "Five percent."}}
	retriever := &ragtest.FakeRetriever{Docs: []schema.Document{
		{PageContent: "The rate is five percent.", Metadata: map[string]any{"page": 2}},
	}}

	s, err := NewChain(model, retriever).Stream(context.Background(), nil, "What is the rate?")
	require.NoError(t, err)

	docs, err := s.Sources.Await(context.Background(), time.Second)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "## Answer\nFive percent.", drain(s))
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"What is the rate?"}, retriever.Queries())

	calls := model.Calls()
	require.Len(t, calls, 1)
	system := calls[0][0]
	assert.Equal(t, llms.ChatMessageTypeSystem, system.Role)
	assert.Contains(t, textOf(system), "<context>\nThe rate is five percent.\n</context>")
	assert.Equal(t, "What is the rate?", textOf(calls[0][len(calls[0])-1]))
}

func TestStreamRewritesQuestionWithHistory(t *testing.T) {
	model := &ragtest.FakeModel{Rewrite: "loan interest rate", Tokens: []string{"ok"}}
	retriever := &ragtest.FakeRetriever{}
	history := []Message{
		{Role: RoleUser, Content: "Tell me about the loan"},
		{Role: RoleAssistant, Content: "It is a mortgage."},
	}

	s, err := NewChain(model, retriever).Stream(context.Background(), history, "and its rate?")
	require.NoError(t, err)
	assert.Equal(t, "ok", drain(s))
	require.NoError(t, s.Err())

	assert.Equal(t, []string{"loan interest rate"}, retriever.Queries())
	calls := model.Calls()
	require.Len(t, calls, 2)
	rewrite := calls[0]
	require.Len(t, rewrite, 4)
	assert.Equal(t, llms.ChatMessageTypeAI, rewrite[1].Role)
	assert.Equal(t, rephraseInstruction, textOf(rewrite[3]))

	answer := calls[1]
	require.Len(t, answer, 4)
	assert.Equal(t, llms.ChatMessageTypeHuman, answer[1].Role)
	assert.Equal(t, "and its rate?", textOf(answer[3]))
}

func TestRetrievalErrorRejectsSourcesAndAbortsGeneration(t *testing.T) {
	boom := errors.New("index unavailable")
	model := &ragtest.FakeModel{Tokens: []string{"never"}}
	retriever := &ragtest.FakeRetriever{Err: boom}

	s, err := NewChain(model, retriever).Stream(context.Background(), nil, "q")
	require.NoError(t, err)

	_, err = s.Sources.Await(context.Background(), time.Second)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, drain(s))
	assert.ErrorIs(t, s.Err(), boom)
	assert.Empty(t, model.Calls())
}

func TestSourcesTimeoutDoesNotStopStream(t *testing.T) {
	block := make(chan struct{})
	model := &ragtest.FakeModel{Tokens: []string{"late"}}
	retriever := &ragtest.FakeRetriever{Block: block}

	s, err := NewChain(model, retriever).Stream(context.Background(), nil, "q")
	require.NoError(t, err)

	_, err = s.Sources.Await(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrSourcesTimeout)

	close(block)
	assert.Equal(t, "late", drain(s))
	assert.NoError(t, s.Err())
}

func TestGenerationErrorSurfacesAfterDrain(t *testing.T) {
	boom := errors.New("rate limited")
	s, err := NewChain(&ragtest.FakeModel{Err: boom}, &ragtest.FakeRetriever{}).Stream(context.Background(), nil, "q")
	require.NoError(t, err)

	assert.Empty(t, drain(s))
	assert.ErrorIs(t, s.Err(), boom)
}

func TestStreamRejectsEmptyInput(t *testing.T) {
	_, err := NewChain(&ragtest.FakeModel{}, &ragtest.FakeRetriever{}).Stream(context.Background(), nil, "  ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

package app

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"

	"pdfchat/internal/app/apptest"
	"pdfchat/internal/config"
	"pdfchat/internal/model"
	"pdfchat/internal/rag"
	"pdfchat/internal/rag/ragtest"
	"pdfchat/internal/vectorstore"
	"pdfchat/internal/vectorstore/vectortest"
)

type chatFixture struct {
	db        *apptest.DB
	messages  *apptest.Messages
	publisher *apptest.Publisher
	model     *ragtest.FakeModel
	vectors   vectorstore.Store
	svc       *ChatService
}

func newChatFixture(t *testing.T, vectors vectorstore.Store, cfg config.ChatConfig) *chatFixture {
	t.Helper()
	db := apptest.NewDB()
	f := &chatFixture{
		db:        db,
		messages:  db.Messages(),
		publisher: &apptest.Publisher{},
		model:     &ragtest.FakeModel{Rewrite: "rewritten", Tokens: []string{"# Rate", "\n", "Five percent."}},
		vectors:   vectors,
	}
	require.NoError(t, db.Documents().Create(context.Background(), &model.Document{ID: "doc-1", UserID: 7}))
	f.svc = NewChatService(db.Documents(), f.messages, f.publisher, nil, apptest.Models{LLM: f.model},
		&apptest.EmbedderLoader{Embedder: &vectortest.Embedder{}}, vectors, cfg, 20, discardLogger)
	return f
}

func indexedStore(t *testing.T) *vectorstore.Memory {
	t.Helper()
	store := vectorstore.NewMemory(0)
	require.NoError(t, store.AddDocuments(context.Background(), &vectortest.Embedder{}, "doc-1", []schema.Document{
		{PageContent: "The interest rate on the loan is five percent per year.", Metadata: map[string]any{model.MetadataPage: 2}},
		{PageContent: "Repayment of the interest happens monthly.", Metadata: map[string]any{model.MetadataPage: 2}},
	}))
	return store
}

func drainTurn(turn *ChatTurn) string {
	var b strings.Builder
	for tok := range turn.Stream.Tokens {
		b.WriteString(tok)
	}
	return b.String()
}

func TestChatTurnPersistsBothSidesWithSources(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, indexedStore(t), config.ChatConfig{TopK: 4, SourcesTimeoutSeconds: 5})

	turn, err := f.svc.Start(ctx, ChatInput{
		UserID:     7,
		DocumentID: "doc-1",
		Messages: []rag.Message{
			{Role: rag.RoleUser, Content: "hello"},
			{Role: rag.RoleAssistant, Content: "hi there"},
			{Role: rag.RoleUser, Content: "What is the interest rate?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, turn.MessageIndex)

	stored, err := f.messages.ListByDocumentID(ctx, "doc-1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.RoleUser, stored[0].Role)
	assert.Equal(t, "What is the interest rate?", stored[0].Content)

	sources, grounded, err := f.svc.AwaitSources(ctx, turn)
	require.NoError(t, err)
	assert.True(t, grounded)
	require.Len(t, sources, 2, "every retrieved passage is kept even when pages repeat")
	for _, src := range sources {
		page, ok := src.Page()
		require.True(t, ok)
		assert.Equal(t, 2, page)
	}

	answer := drainTurn(turn)
	require.NoError(t, turn.Stream.Err())
	assert.Equal(t, "# Rate\nFive percent.", answer)

	f.svc.SaveAnswer(ctx, turn, answer)
	require.Len(t, f.publisher.Published(), 1)
	msg := f.publisher.Published()[0]
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Equal(t, "doc-1", msg.DocumentID)
	assert.Equal(t, answer, msg.Content)
	assert.Len(t, msg.Sources, 2)
	require.NotNil(t, msg.Grounded)
	assert.True(t, *msg.Grounded)
}

func TestChatTurnWithoutPassagesHasNoSources(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, vectorstore.NewMemory(0), config.ChatConfig{TopK: 4, SourcesTimeoutSeconds: 5})

	turn, err := f.svc.Start(ctx, ChatInput{UserID: 7, DocumentID: "doc-1", Messages: []rag.Message{{Role: rag.RoleUser, Content: "anything?"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, turn.MessageIndex)

	sources, grounded, err := f.svc.AwaitSources(ctx, turn)
	require.NoError(t, err)
	assert.True(t, grounded)
	assert.Empty(t, sources)

	f.svc.SaveAnswer(ctx, turn, drainTurn(turn))
	require.Len(t, f.publisher.Published(), 1)
	assert.Nil(t, f.publisher.Published()[0].Sources)
}

func TestChatTurnTimeoutMarksAnswerUngrounded(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	f := newChatFixture(t, &blockingStore{Store: indexedStore(t), release: block}, config.ChatConfig{TopK: 4, SourcesTimeoutSeconds: 1})

	turn, err := f.svc.Start(ctx, ChatInput{UserID: 7, DocumentID: "doc-1", Messages: []rag.Message{{Role: rag.RoleUser, Content: "rate?"}}})
	require.NoError(t, err)

	sources, grounded, err := f.svc.AwaitSources(ctx, turn)
	require.NoError(t, err)
	assert.False(t, grounded)
	assert.Empty(t, sources)

	close(block)
	f.svc.SaveAnswer(ctx, turn, drainTurn(turn))
	require.Len(t, f.publisher.Published(), 1)
	msg := f.publisher.Published()[0]
	assert.Empty(t, msg.Sources)
	require.NotNil(t, msg.Grounded)
	assert.False(t, *msg.Grounded)
}

func TestChatRetrievalFailureIsReported(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, &failingStore{Store: vectorstore.NewMemory(0)}, config.ChatConfig{TopK: 4, SourcesTimeoutSeconds: 5})

	turn, err := f.svc.Start(ctx, ChatInput{UserID: 7, DocumentID: "doc-1", Messages: []rag.Message{{Role: rag.RoleUser, Content: "rate?"}}})
	require.NoError(t, err)

	_, _, err = f.svc.AwaitSources(ctx, turn)
	assert.ErrorIs(t, err, errSearchDown)
	assert.Empty(t, drainTurn(turn))
}

func TestChatStartRejectsWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, vectorstore.NewMemory(0), config.ChatConfig{TopK: 4})
	question := []rag.Message{{Role: rag.RoleUser, Content: "q"}}

	_, err := f.svc.Start(ctx, ChatInput{DocumentID: "doc-1", Messages: question})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Start(ctx, ChatInput{UserID: 8, DocumentID: "doc-1", Messages: question})
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = f.svc.Start(ctx, ChatInput{UserID: 7, DocumentID: "doc-1"})
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = f.svc.Start(ctx, ChatInput{UserID: 7, Messages: question})
	assert.ErrorIs(t, err, ErrInvalidInput)

	stored, err := f.messages.ListByDocumentID(ctx, "doc-1", 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, f.model.Calls())
}

func TestChatStartSurfacesPersistenceFailure(t *testing.T) {
	f := newChatFixture(t, vectorstore.NewMemory(0), config.ChatConfig{TopK: 4})
	f.db.MessageErr = errors.New("db down")

	_, err := f.svc.Start(context.Background(), ChatInput{UserID: 7, DocumentID: "doc-1", Messages: []rag.Message{{Role: rag.RoleUser, Content: "q"}}})
	assert.ErrorIs(t, err, ErrPersistMessage)
	assert.Empty(t, f.model.Calls())
}

func TestSaveAnswerSwallowsPublishError(t *testing.T) {
	f := newChatFixture(t, vectorstore.NewMemory(0), config.ChatConfig{TopK: 4})
	f.publisher.Err = errors.New("broker gone")

	assert.NotPanics(t, func() {
		f.svc.SaveAnswer(context.Background(), &ChatTurn{DocumentID: "doc-1"}, "answer")
	})
	assert.Empty(t, f.publisher.Published())
}

func TestHistoryIsOrderedAndOwnerScoped(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, vectorstore.NewMemory(0), config.ChatConfig{TopK: 4})
	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, f.messages.Create(ctx, &model.ChatMessage{DocumentID: "doc-1", Role: model.RoleUser, Content: content}))
	}

	history, err := f.svc.History(ctx, 7, "doc-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "third", history[2].Content)

	_, err = f.svc.History(ctx, 8, "doc-1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	_, err = f.svc.History(ctx, 7, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHistoryPastLimitKeepsLatestTurns(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, vectorstore.NewMemory(0), config.ChatConfig{TopK: 4})
	for i := 1; i <= historyLimit+1; i++ {
		require.NoError(t, f.messages.Create(ctx, &model.ChatMessage{DocumentID: "doc-1", Role: model.RoleUser, Content: strconv.Itoa(i)}))
	}

	history, err := f.svc.History(ctx, 7, "doc-1")
	require.NoError(t, err)
	require.Len(t, history, historyLimit)
	assert.Equal(t, "2", history[0].Content)
	assert.Equal(t, strconv.Itoa(historyLimit+1), history[len(history)-1].Content)
}

func TestHistoryRendersOneCitationPerPage(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, vectorstore.NewMemory(0), config.ChatConfig{TopK: 4})
	require.NoError(t, f.messages.Create(ctx, &model.ChatMessage{
		DocumentID: "doc-1",
		Role:       model.RoleAssistant,
		Content:    "answer",
		Sources: []model.Source{
			model.NewSource("rate chunk", map[string]any{model.MetadataPage: 2, model.MetadataChunk: 0}),
			model.NewSource("repayment chunk", map[string]any{model.MetadataPage: 2, model.MetadataChunk: 1}),
			model.NewSource("fees chunk", map[string]any{model.MetadataPage: 5, model.MetadataChunk: 0}),
		},
	}))

	history, err := f.svc.History(ctx, 7, "doc-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Len(t, history[0].Sources, 3)
	require.Len(t, history[0].Citations, 2)
	assert.Equal(t, "rate chunk...", history[0].Citations[0].PageContent)
	assert.Equal(t, "fees chunk...", history[0].Citations[1].PageContent)
}

func TestTrimHistoryKeepsMostRecent(t *testing.T) {
	msgs := []rag.Message{{Content: "1"}, {Content: "2"}, {Content: "3"}}
	assert.Equal(t, []rag.Message{{Content: "2"}, {Content: "3"}}, trimHistory(msgs, 2))
	assert.Equal(t, msgs, trimHistory(msgs, 5))
}

var errSearchDown = errors.New("vector search down")

type failingStore struct{ vectorstore.Store }

func (failingStore) SimilaritySearch(context.Context, embeddings.Embedder, string, string, int) ([]schema.Document, error) {
	return nil, errSearchDown
}

type blockingStore struct {
	vectorstore.Store
	release chan struct{}
}

func (s *blockingStore) SimilaritySearch(ctx context.Context, emb embeddings.Embedder, ns, query string, k int) ([]schema.Document, error) {
	<-s.release
	return s.Store.SimilaritySearch(ctx, emb, ns, query, k)
}

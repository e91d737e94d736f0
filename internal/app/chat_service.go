package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"pdfchat/internal/config"
	"pdfchat/internal/model"
	"pdfchat/internal/rag"
	"pdfchat/internal/vectorstore"
)

const (
	publishTimeout = 5 * time.Second
	historyLimit   = 500
)

type MessageStore interface {
	Create(ctx context.Context, message *model.ChatMessage) error
	ListByDocumentID(ctx context.Context, documentID string, limit int) ([]model.ChatMessage, error)
}

type DocumentLookup interface {
	GetByIDAndUserID(ctx context.Context, id string, userID uint) (*model.Document, error)
}

type MessagePublisher interface {
	Publish(ctx context.Context, msg model.ChatMessage) error
}

type ModelProvider interface {
	Model() (llms.Model, error)
}

type ChatInput struct {
	UserID     uint
	DocumentID string
	Messages   []rag.Message
}

// ChatTurn is one answer being streamed back to the caller.
type ChatTurn struct {
	Stream       *rag.Stream
	DocumentID   string
	MessageIndex int

	sources  []model.Source
	grounded bool
}

type ChatService struct {
	docs      DocumentLookup
	messages  MessageStore
	publisher MessagePublisher
	history   HistoryCache
	models    ModelProvider
	embedder  EmbedderLoader
	vectors   vectorstore.Store
	cfg       config.ChatConfig
	maxPrior  int
	log       *slog.Logger
}

func NewChatService(
	docs DocumentLookup,
	messages MessageStore,
	publisher MessagePublisher,
	history HistoryCache,
	models ModelProvider,
	embedder EmbedderLoader,
	vectors vectorstore.Store,
	cfg config.ChatConfig,
	maxPrior int,
	log *slog.Logger,
) *ChatService {
	if maxPrior <= 0 {
		maxPrior = 20
	}
	return &ChatService{
		docs:      docs,
		messages:  messages,
		publisher: publisher,
		history:   history,
		models:    models,
		embedder:  embedder,
		vectors:   vectors,
		cfg:       cfg,
		maxPrior:  maxPrior,
		log:       log,
	}
}

// Start persists the caller's latest message and begins answering it. The
// last element of input.Messages is the new question; earlier ones are the
// conversation so far.
func (s *ChatService) Start(ctx context.Context, input ChatInput) (*ChatTurn, error) {
	if input.UserID == 0 {
		return nil, ErrUnauthorized
	}
	documentID := strings.TrimSpace(input.DocumentID)
	if documentID == "" {
		return nil, fmt.Errorf("%w: chatId is required", ErrInvalidInput)
	}
	if len(input.Messages) == 0 {
		return nil, ErrMessageEmpty
	}
	last := input.Messages[len(input.Messages)-1]
	if strings.TrimSpace(last.Content) == "" {
		return nil, ErrMessageEmpty
	}

	doc, err := s.docs.GetByIDAndUserID(ctx, documentID, input.UserID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	role := last.Role
	if role == "" {
		role = model.RoleUser
	}
	s.markDirty(ctx, doc.ID)
	if err := s.messages.Create(ctx, &model.ChatMessage{DocumentID: doc.ID, Role: role, Content: last.Content}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistMessage, err)
	}
	s.invalidate(ctx, doc.ID)

	llm, err := s.models.Model()
	if err != nil {
		return nil, err
	}
	emb, err := s.embedder.Load()
	if err != nil {
		return nil, err
	}

	prior := input.Messages[:len(input.Messages)-1]
	chain := rag.NewChain(llm, vectorstore.AsRetriever(s.vectors, emb, doc.Namespace(), s.cfg.TopK))
	stream, err := chain.Stream(ctx, trimHistory(prior, s.maxPrior), last.Content)
	if err != nil {
		return nil, err
	}
	return &ChatTurn{
		Stream:       stream,
		DocumentID:   doc.ID,
		MessageIndex: len(prior) + 1,
	}, nil
}

// AwaitSources waits for retrieval up to the configured timeout. A timeout is
// not an error: the turn is then marked ungrounded and carries no sources.
func (s *ChatService) AwaitSources(ctx context.Context, turn *ChatTurn) ([]model.Source, bool, error) {
	docs, err := turn.Stream.Sources.Await(ctx, s.cfg.SourcesTimeout())
	if errors.Is(err, rag.ErrSourcesTimeout) {
		s.log.Warn("retrieval timed out, answering without sources", "document_id", turn.DocumentID)
		turn.sources, turn.grounded = []model.Source{}, false
		return turn.sources, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	sources := make([]model.Source, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, model.NewSource(d.PageContent, d.Metadata))
	}
	turn.sources, turn.grounded = sources, true
	return turn.sources, true, nil
}

// SaveAnswer hands the finished assistant message to the persistence queue.
// Failures are logged, never returned: the caller has already streamed the
// answer.
func (s *ChatService) SaveAnswer(ctx context.Context, turn *ChatTurn, answer string) {
	grounded := turn.grounded
	msg := model.ChatMessage{
		DocumentID: turn.DocumentID,
		Role:       model.RoleAssistant,
		Content:    answer,
		Grounded:   &grounded,
	}
	if len(turn.sources) > 0 {
		msg.Sources = turn.sources
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	s.markDirty(ctx, turn.DocumentID)
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.log.Error("enqueue assistant message failed", "document_id", turn.DocumentID, "error", err)
	}
}

// History returns the persisted conversation for a document the caller owns.
// Redis serves it unless a write is pending.
func (s *ChatService) History(ctx context.Context, userID uint, documentID string) ([]model.ChatMessage, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("%w: documentId is required", ErrInvalidInput)
	}

	doc, err := s.docs.GetByIDAndUserID(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	if s.history != nil {
		dirty, err := s.history.IsDirty(ctx, doc.ID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.history.GetHistory(ctx, doc.ID); cacheErr == nil && hit {
				return withCitations(cached), nil
			}
		}
	}

	messages, err := s.messages.ListByDocumentID(ctx, doc.ID, historyLimit)
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		if dirty, dirtyErr := s.history.IsDirty(ctx, doc.ID); dirtyErr == nil && !dirty {
			_ = s.history.SetHistory(ctx, doc.ID, messages)
		}
	}
	return withCitations(messages), nil
}

// withCitations fills the per-page citation list clients render under an
// answer. Stored sources keep every retrieved passage.
func withCitations(messages []model.ChatMessage) []model.ChatMessage {
	for i := range messages {
		if len(messages[i].Sources) > 0 {
			messages[i].Citations = model.DedupeSourcesByPage(messages[i].Sources)
		}
	}
	return messages
}

func (s *ChatService) markDirty(ctx context.Context, documentID string) {
	if s.history == nil {
		return
	}
	if err := s.history.MarkDirty(ctx, documentID); err != nil {
		s.log.Warn("mark history dirty failed", "document_id", documentID, "error", err)
	}
}

func (s *ChatService) invalidate(ctx context.Context, documentID string) {
	if s.history == nil {
		return
	}
	if err := s.history.Invalidate(ctx, documentID); err != nil {
		s.log.Warn("invalidate history failed", "document_id", documentID, "error", err)
	}
}

func trimHistory(messages []rag.Message, limit int) []rag.Message {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"pdfchat/internal/config"
	"pdfchat/internal/filestore"
	"pdfchat/internal/model"
	"pdfchat/internal/pkg/pdfextract"
	"pdfchat/internal/pkg/retry"
	"pdfchat/internal/vectorstore"
)

const (
	CleanupStepFile      = "file"
	CleanupStepNamespace = "namespace"
	CleanupStepHistory   = "history_cache"

	cleanupTimeout = 10 * time.Second
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	CountByUserID(ctx context.Context, userID uint) (int64, error)
	ListByUserID(ctx context.Context, userID uint) ([]model.Document, error)
	GetByIDAndUserID(ctx context.Context, id string, userID uint) (*model.Document, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteWithMessages(ctx context.Context, id string, userID uint) error
}

type PDFFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type EmbedderLoader interface {
	Load() (embeddings.Embedder, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, documentID string) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, documentID string, messages []model.ChatMessage) error
	IsDirty(ctx context.Context, documentID string) (bool, error)
	MarkDirty(ctx context.Context, documentID string) error
	Invalidate(ctx context.Context, documentID string) error
}

// CleanupResult reports one best-effort step of document deletion. Err is nil
// when the step succeeded.
type CleanupResult struct {
	Step string
	Err  error
}

type IngestInput struct {
	UserID uint
	Title  string
	URL    string
}

type DocumentService struct {
	docs     DocumentStore
	fetcher  PDFFetcher
	embedder EmbedderLoader
	vectors  vectorstore.Store
	files    filestore.Deleter
	history  HistoryCache
	cfg      config.IngestConfig
	log      *slog.Logger
}

func NewDocumentService(
	docs DocumentStore,
	fetcher PDFFetcher,
	embedder EmbedderLoader,
	vectors vectorstore.Store,
	files filestore.Deleter,
	history HistoryCache,
	cfg config.IngestConfig,
	log *slog.Logger,
) *DocumentService {
	return &DocumentService{
		docs:     docs,
		fetcher:  fetcher,
		embedder: embedder,
		vectors:  vectors,
		files:    files,
		history:  history,
		cfg:      cfg,
		log:      log,
	}
}

// Ingest downloads a PDF, records it and indexes its text under the new
// document's namespace. A record only survives if indexing succeeded.
func (s *DocumentService) Ingest(ctx context.Context, input IngestInput) (*model.Document, error) {
	if input.UserID == 0 {
		return nil, ErrUnauthorized
	}
	title := strings.TrimSpace(input.Title)
	url := strings.TrimSpace(input.URL)
	if title == "" || url == "" {
		return nil, fmt.Errorf("%w: pdfTitle and pdfUrl are required", ErrInvalidInput)
	}

	count, err := s.docs.CountByUserID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	// MaxDocumentsPerUser is the most a user may own, so the cap is reached
	// once count equals it.
	if count >= int64(s.cfg.MaxDocumentsPerUser) {
		return nil, ErrDocumentLimit
	}

	data, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	parsed, err := pdfextract.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	chunks, err := s.split(parsed.Pages)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Title:     title,
		URL:       url,
		SizeBytes: int64(len(data)),
		PageCount: parsed.PageCount,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	err = retry.Do(ctx, s.cfg.EmbedAttempts, s.cfg.EmbedRetryDelay(), func(ctx context.Context, attempt int) error {
		emb, err := s.embedder.Load()
		if err == nil {
			err = s.vectors.AddDocuments(ctx, emb, doc.Namespace(), chunks)
		}
		if err != nil {
			s.log.Warn("index document attempt failed", "document_id", doc.ID, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		s.rollback(ctx, doc)
		if errors.Is(err, retry.ErrExhausted) {
			return nil, fmt.Errorf("%w: %w", ErrIndexFailed, err)
		}
		return nil, err
	}

	s.log.Info("document indexed", "document_id", doc.ID, "user_id", doc.UserID, "pages", doc.PageCount, "chunks", len(chunks))
	return doc, nil
}

func (s *DocumentService) fetch(ctx context.Context, url string) ([]byte, error) {
	if timeout := s.cfg.FetchTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, filestore.ErrInvalidURL) || errors.Is(err, filestore.ErrTooLarge) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}
	return data, nil
}

func (s *DocumentService) split(pages []pdfextract.Page) ([]schema.Document, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.cfg.ChunkSize),
		textsplitter.WithChunkOverlap(s.cfg.ChunkOverlap),
	)

	var chunks []schema.Document
	for _, page := range pages {
		texts, err := splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("split page %d failed: %w", page.Number, err)
		}
		for i, text := range texts {
			if strings.TrimSpace(text) == "" {
				continue
			}
			chunks = append(chunks, schema.Document{
				PageContent: text,
				Metadata: map[string]any{
					model.MetadataPage:  page.Number,
					model.MetadataChunk: i,
				},
			})
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, pdfextract.ErrNoText)
	}
	return chunks, nil
}

// rollback runs on a detached context so a cancelled request still cleans up.
func (s *DocumentService) rollback(ctx context.Context, doc *model.Document) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.docs.DeleteByID(ctx, doc.ID); err != nil {
		s.log.Error("rollback document record failed", "document_id", doc.ID, "error", err)
	}
	if err := s.vectors.DeleteNamespace(ctx, doc.Namespace()); err != nil {
		s.log.Warn("rollback namespace failed", "document_id", doc.ID, "error", err)
	}
}

func (s *DocumentService) List(ctx context.Context, userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	return s.docs.ListByUserID(ctx, userID)
}

func (s *DocumentService) Get(ctx context.Context, userID uint, id string) (*model.Document, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndUserID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes the record and its messages, then makes a best-effort pass
// over the uploaded file, the namespace and the history cache.
func (s *DocumentService) Delete(ctx context.Context, userID uint, id string) ([]CleanupResult, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.docs.DeleteWithMessages(ctx, doc.ID, userID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	results := []CleanupResult{
		{Step: CleanupStepFile, Err: s.files.Delete(ctx, doc.URL)},
		{Step: CleanupStepNamespace, Err: s.vectors.DeleteNamespace(ctx, doc.Namespace())},
	}
	if s.history != nil {
		results = append(results, CleanupResult{Step: CleanupStepHistory, Err: s.history.Invalidate(ctx, doc.ID)})
	}
	return results, nil
}

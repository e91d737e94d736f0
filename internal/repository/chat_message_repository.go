package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"pdfchat/internal/model"
)

const maxHistoryLimit = 500

type ChatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

func (r *ChatMessageRepository) Create(ctx context.Context, message *model.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create chat message failed: %w", err)
	}
	return nil
}

// ListByDocumentID returns the latest limit messages, oldest first.
func (r *ChatMessageRepository) ListByDocumentID(ctx context.Context, documentID string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var messages []model.ChatMessage
	if err := recentMessages(r.db.WithContext(ctx), documentID, limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list chat messages failed: %w", err)
	}
	return messages, nil
}

func recentMessages(db *gorm.DB, documentID string, limit int) *gorm.DB {
	latest := db.Model(&model.ChatMessage{}).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	return db.Table("(?) AS recent", latest).
		Order("created_at ASC").
		Order("id ASC")
}

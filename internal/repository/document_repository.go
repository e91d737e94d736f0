package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pdfchat/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) CountByUserID(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count documents failed: %w", err)
	}
	return count, nil
}

func (r *DocumentRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// GetByIDAndUserID returns nil, nil when the document does not exist or
// belongs to another user.
func (r *DocumentRepository) GetByIDAndUserID(ctx context.Context, id string, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check document failed: %w", err)
	}
	return count > 0, nil
}

func (r *DocumentRepository) DeleteByID(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

// DeleteWithMessages removes the document and its chat history in one
// transaction.
func (r *DocumentRepository) DeleteWithMessages(ctx context.Context, id string, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("delete chat messages failed: %w", err)
		}
		if err := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Document{}).Error; err != nil {
			return fmt.Errorf("delete document failed: %w", err)
		}
		return nil
	})
}

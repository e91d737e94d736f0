package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one persisted turn of a document conversation. Grounded is
// only set on assistant messages: false means retrieval did not finish before
// the answer was delivered, so Sources is incomplete.
//
// Sources holds every retrieved passage in retrieval order. Citations is the
// one-per-page view derived from it when history is read; it is not stored.
// Messages are removed together with their document.
type ChatMessage struct {
	ID         uint                        `gorm:"primaryKey" json:"id"`
	DocumentID string                      `gorm:"size:36;not null;index:idx_chat_messages_document_created,priority:1" json:"document_id"`
	Document   *Document                   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Role       string                      `gorm:"size:16;not null" json:"role"`
	Content    string                      `gorm:"type:text;not null" json:"content"`
	Sources    datatypes.JSONSlice[Source] `json:"sources,omitempty"`
	Citations  []Source                    `gorm:"-" json:"citations,omitempty"`
	Grounded   *bool                       `json:"grounded,omitempty"`
	CreatedAt  time.Time                   `gorm:"index:idx_chat_messages_document_created,priority:2" json:"created_at"`
}

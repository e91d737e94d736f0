package model

import "time"

// Document is an ingested PDF. Its ID doubles as the vector-store namespace
// holding the document's chunks.
type Document struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:256;not null" json:"title"`
	URL       string    `gorm:"size:1024;not null" json:"url"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	PageCount int       `gorm:"not null;default:0" json:"page_count"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Namespace returns the vector-store namespace for the document.
func (d *Document) Namespace() string {
	return d.ID
}

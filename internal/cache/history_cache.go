package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pdfchat/internal/model"
)

// HistoryCache keeps a short-lived copy of a document's chat history. A dirty
// marker is set whenever a write is in flight so readers go to MySQL until the
// worker has persisted the new message.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, documentID string) ([]model.ChatMessage, bool, error) {
	raw, err := c.client.Get(ctx, historyKey(documentID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, documentID string, messages []model.ChatMessage) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(documentID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) MarkDirty(ctx context.Context, documentID string) error {
	if err := c.client.Set(ctx, dirtyKey(documentID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, documentID string) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKey(documentID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

// Invalidate drops the cached history and marks the document dirty in a
// single round trip.
func (c *HistoryCache) Invalidate(ctx context.Context, documentID string) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, dirtyKey(documentID), "1", c.dirtyMarkerTTL)
	pipe.Del(ctx, historyKey(documentID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func historyKey(documentID string) string {
	return "chat:history:" + documentID
}

func dirtyKey(documentID string) string {
	return "chat:history:dirty:" + documentID
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pdfchat/internal/model"
)

// ConversationCache keeps the latest snapshot of each chat so a turn can
// start before the persistence worker has written the previous one.
type ConversationCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewConversationCache(client *redisv9.Client, ttl time.Duration) *ConversationCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ConversationCache{client: client, ttl: ttl}
}

func (c *ConversationCache) Get(ctx context.Context, chatID string) (*model.Conversation, bool, error) {
	raw, err := c.client.Get(ctx, conversationKey(chatID)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get conversation failed: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached conversation failed: %w", err)
	}
	return &conv, true, nil
}

func (c *ConversationCache) Set(ctx context.Context, conv *model.Conversation) error {
	payload, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation cache failed: %w", err)
	}
	if err := c.client.Set(ctx, conversationKey(conv.ChatID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set conversation failed: %w", err)
	}
	return nil
}

func (c *ConversationCache) Delete(ctx context.Context, chatID string) error {
	if err := c.client.Del(ctx, conversationKey(chatID)).Err(); err != nil {
		return fmt.Errorf("redis delete conversation failed: %w", err)
	}
	return nil
}

func conversationKey(chatID string) string {
	return "chat:conversation:" + chatID
}

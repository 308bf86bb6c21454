package store

import (
	"context"
	"fmt"
	"log"

	"pdfchat/internal/model"
)

type ConversationCache interface {
	Get(ctx context.Context, chatID string) (*model.Conversation, bool, error)
	Set(ctx context.Context, conv *model.Conversation) error
	Delete(ctx context.Context, chatID string) error
}

type ConversationRepository interface {
	Load(ctx context.Context, chatID string) (*model.Conversation, error)
	ListChats(ctx context.Context, userID string) ([]model.Chat, error)
	Delete(ctx context.Context, chatID string) error
}

type SnapshotPublisher interface {
	Publish(ctx context.Context, conv *model.Conversation) error
}

// QueuedConversationStore serves reads from the redis snapshot first and
// hands writes to the persistence queue. MySQL is only read on a cache miss.
type QueuedConversationStore struct {
	cache     ConversationCache
	repo      ConversationRepository
	publisher SnapshotPublisher
}

func NewQueuedConversationStore(cache ConversationCache, repo ConversationRepository, publisher SnapshotPublisher) *QueuedConversationStore {
	return &QueuedConversationStore{
		cache:     cache,
		repo:      repo,
		publisher: publisher,
	}
}

// Load returns nil, nil for an unknown chat.
func (s *QueuedConversationStore) Load(ctx context.Context, chatID string) (*model.Conversation, error) {
	if conv, hit, err := s.cache.Get(ctx, chatID); err != nil {
		log.Printf("conversation cache read chat %s failed: %v", chatID, err)
	} else if hit {
		return conv, nil
	}

	conv, err := s.repo.Load(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load conversation failed: %w", err)
	}
	if conv == nil {
		return nil, nil
	}
	if err := s.cache.Set(ctx, conv); err != nil {
		log.Printf("conversation cache fill chat %s failed: %v", chatID, err)
	}
	return conv, nil
}

// Save queues the snapshot for the persistence worker, then refreshes the
// cache. A cache that cannot be refreshed is dropped so it never serves a
// stale conversation.
func (s *QueuedConversationStore) Save(ctx context.Context, conv *model.Conversation) error {
	if err := s.publisher.Publish(ctx, conv); err != nil {
		return fmt.Errorf("queue conversation %s failed: %w", conv.ChatID, err)
	}
	if err := s.cache.Set(ctx, conv); err != nil {
		log.Printf("conversation cache write chat %s failed: %v", conv.ChatID, err)
		if err := s.cache.Delete(ctx, conv.ChatID); err != nil {
			log.Printf("conversation cache evict chat %s failed: %v", conv.ChatID, err)
		}
	}
	return nil
}

// List reads chat rows from MySQL. A turn still waiting in the queue shows
// up once the worker has stored it.
func (s *QueuedConversationStore) List(ctx context.Context, userID string) ([]model.Chat, error) {
	chats, err := s.repo.ListChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations failed: %w", err)
	}
	return chats, nil
}

func (s *QueuedConversationStore) Delete(ctx context.Context, chatID string) error {
	if err := s.repo.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("delete conversation %s failed: %w", chatID, err)
	}
	if err := s.cache.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("evict conversation %s failed: %w", chatID, err)
	}
	return nil
}

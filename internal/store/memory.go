package store

import (
	"context"
	"sort"
	"sync"

	"pdfchat/internal/model"
)

// MemoryConversationStore keeps conversations in process.
type MemoryConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*model.Conversation
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{convs: make(map[string]*model.Conversation)}
}

func (s *MemoryConversationStore) Load(_ context.Context, chatID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[chatID]
	if !ok {
		return nil, nil
	}
	return conv.Clone(), nil
}

func (s *MemoryConversationStore) Save(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ChatID] = conv.Clone()
	return nil
}

// List returns the chats of userID, most recently active first.
func (s *MemoryConversationStore) List(_ context.Context, userID string) ([]model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chats []model.Chat
	for _, conv := range s.convs {
		if conv.UserID != userID {
			continue
		}
		chat := model.Chat{ID: conv.ChatID, UserID: conv.UserID, Title: conv.Title}
		if n := len(conv.Messages); n > 0 {
			chat.CreatedAt = conv.Messages[0].CreatedAt
			chat.UpdatedAt = conv.Messages[n-1].CreatedAt
		}
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (s *MemoryConversationStore) Delete(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convs, chatID)
	return nil
}

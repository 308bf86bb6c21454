package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pdfchat/internal/model"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Save upserts the chat row and inserts any message not stored yet.
// Replaying the same snapshot is a no-op.
func (r *ConversationRepository) Save(ctx context.Context, conv *model.Conversation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat := model.Chat{
			ID:     conv.ChatID,
			UserID: conv.UserID,
			Title:  conv.Title,
		}
		if chat.Title == "" {
			chat.Title = model.ChatTitle(conv.Messages)
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "updated_at"}),
		}).Create(&chat).Error; err != nil {
			return fmt.Errorf("upsert chat failed: %w", err)
		}

		if len(conv.Messages) == 0 {
			return nil
		}
		messages := make([]model.Message, len(conv.Messages))
		copy(messages, conv.Messages)
		for i := range messages {
			messages[i].ChatID = conv.ChatID
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(messages, 100).Error; err != nil {
			return fmt.Errorf("insert messages failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save conversation %s failed: %w", conv.ChatID, err)
	}
	return nil
}

// Load returns nil, nil when the chat does not exist.
func (r *ConversationRepository) Load(ctx context.Context, chatID string) (*model.Conversation, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).Where("id = ?", chatID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}

	var messages []model.Message
	if err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("seq ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return &model.Conversation{
		ChatID:   chat.ID,
		UserID:   chat.UserID,
		Title:    chat.Title,
		Messages: messages,
	}, nil
}

func (r *ConversationRepository) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	var chats []model.Chat
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list chats failed: %w", err)
	}
	return chats, nil
}

func (r *ConversationRepository) Delete(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages failed: %w", err)
		}
		if err := tx.Where("id = ?", chatID).Delete(&model.Chat{}).Error; err != nil {
			return fmt.Errorf("delete chat failed: %w", err)
		}
		return nil
	})
}

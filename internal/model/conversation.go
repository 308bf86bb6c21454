package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultChatTitle = "New Chat"
	maxTitleRunes    = 100
)

// Conversation is the state of one chat: its ordered messages plus the
// turn that last changed it.
type Conversation struct {
	ChatID   string    `json:"chat_id"`
	UserID   string    `json:"user_id,omitempty"`
	Title    string    `json:"title"`
	TurnID   string    `json:"turn_id,omitempty"`
	Messages []Message `json:"messages"`
}

func NewConversation(chatID, userID string) *Conversation {
	if chatID == "" {
		chatID = uuid.NewString()
	}
	return &Conversation{ChatID: chatID, UserID: userID}
}

// Append adds a message at the end and returns it.
func (c *Conversation) Append(role Role, content, turnID string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		ChatID:    c.ChatID,
		Seq:       len(c.Messages),
		TurnID:    turnID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	c.Messages = append(c.Messages, msg)
	if c.Title == "" || c.Title == DefaultChatTitle {
		c.Title = ChatTitle(c.Messages)
	}
	return msg
}

func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// ChatTitle is the first user message cut to 100 characters.
func ChatTitle(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > maxTitleRunes {
			runes = runes[:maxTitleRunes]
		}
		return string(runes)
	}
	return DefaultChatTitle
}

package model

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message ids are generated by the application, so inserting the same
// message twice is a no-op.
type Message struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	ChatID    string    `gorm:"size:64;not null;index:idx_messages_chat_seq,priority:1" json:"chat_id"`
	Seq       int       `gorm:"not null;index:idx_messages_chat_seq,priority:2" json:"seq"`
	TurnID    string    `gorm:"size:64;index" json:"turn_id,omitempty"`
	Role      Role      `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:mediumtext;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

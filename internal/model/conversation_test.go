package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_Append(t *testing.T) {
	c := NewConversation("", "u1")
	require.NotEmpty(t, c.ChatID)

	first := c.Append(RoleUser, "What is on page two?", "turn-1")
	second := c.Append(RoleAssistant, "Page two covers pricing.", "turn-1")

	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, 1, second.Seq)
	assert.Equal(t, c.ChatID, second.ChatID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "What is on page two?", c.Title)
}

func TestConversation_Clone(t *testing.T) {
	c := NewConversation("chat", "")
	c.Append(RoleUser, "hi", "t")

	clone := c.Clone()
	clone.Append(RoleAssistant, "hello", "t")

	assert.Len(t, c.Messages, 1)
	assert.Len(t, clone.Messages, 2)
}

func TestChatTitle(t *testing.T) {
	assert.Equal(t, DefaultChatTitle, ChatTitle(nil))
	assert.Equal(t, DefaultChatTitle, ChatTitle([]Message{{Role: RoleAssistant, Content: "hi"}}))

	long := strings.Repeat("é", 150)
	assert.Equal(t, strings.Repeat("é", 100), ChatTitle([]Message{{Role: RoleUser, Content: long}}))
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("tool").Valid())
}

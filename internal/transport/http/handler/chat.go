package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
	"pdfchat/internal/transport/http/response"
)

type ChatService interface {
	StreamTurn(ctx context.Context, input app.TurnInput) (*app.Turn, error)
	GetConversation(ctx context.Context, chatID string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]model.Chat, error)
	DeleteConversation(ctx context.Context, chatID, userID string) error
}

type ChatHandler struct {
	chatService ChatService
}

type ChatRequest struct {
	ChatID     string            `json:"chatId"`
	TurnID     string            `json:"turnId"`
	Messages   []app.ChatMessage `json:"messages" binding:"required,min=1"`
	ModelSlug  string            `json:"modelSlug"`
	DocumentID string            `json:"documentId"`
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Stream runs one chat turn and relays its events as server-sent events.
// Errors found before the stream opens use the JSON error body instead.
func (h *ChatHandler) Stream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, response.MessageInvalidRequest, "invalid request payload")
		return
	}

	userID, credential := identity(c)
	turn, err := h.chatService.StreamTurn(c.Request.Context(), app.TurnInput{
		ChatID:     req.ChatID,
		TurnID:     req.TurnID,
		UserID:     userID,
		Credential: credential,
		ModelSlug:  req.ModelSlug,
		DocumentID: req.DocumentID,
		Messages:   req.Messages,
	})
	if err != nil {
		writeError(c, err, "start chat turn")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Chat-Id", turn.ChatID)
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)
	writable := true
	// keep draining after a write failure so the turn can wind down
	for ev := range turn.Events {
		if !writable {
			continue
		}
		if err := writeSSE(c.Writer, ev, turn.ChatID); err != nil {
			writable = false
			continue
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

func (h *ChatHandler) Get(c *gin.Context) {
	conv, err := h.chatService.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "get conversation")
		return
	}
	response.OK(c, conv)
}

func (h *ChatHandler) List(c *gin.Context) {
	userID, _ := identity(c)
	chats, err := h.chatService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "list conversations")
		return
	}
	response.OK(c, gin.H{"chats": chats})
}

func (h *ChatHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	userID, _ := identity(c)
	if err := h.chatService.DeleteConversation(c.Request.Context(), id, userID); err != nil {
		writeError(c, err, "delete conversation")
		return
	}
	response.OK(c, gin.H{"success": true, "chatId": id})
}

func writeSSE(w gin.ResponseWriter, ev app.Event, chatID string) error {
	var payload any
	switch ev.Type {
	case app.EventStatus:
		payload = gin.H{"state": ev.State}
	case app.EventDelta:
		payload = gin.H{"delta": ev.Delta}
	case app.EventDone:
		payload = gin.H{"chatId": chatID, "message": ev.Message}
	case app.EventError:
		payload = gin.H{"error": ev.Error}
	default:
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

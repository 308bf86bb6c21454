package app

import "pdfchat/internal/model"

// TurnState is the position of a chat turn in its lifecycle.
type TurnState string

const (
	StateIdle                 TurnState = "idle"
	StateAwaitingToolDecision TurnState = "awaiting_tool_decision"
	StateRetrievingContext    TurnState = "retrieving_context"
	StateGenerating           TurnState = "generating"
	StateStreaming            TurnState = "streaming"
	StateFinalized            TurnState = "finalized"
	StateFailed               TurnState = "failed"
)

func (s TurnState) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}

type EventType string

const (
	EventStatus EventType = "status"
	EventDelta  EventType = "delta"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Event is one item on a turn's stream. Exactly one of the payload fields
// is set, according to Type.
type Event struct {
	Type    EventType      `json:"type"`
	State   TurnState      `json:"state,omitempty"`
	Delta   string         `json:"delta,omitempty"`
	Message *model.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Turn is a running chat turn. Events is closed once the turn reaches
// StateFinalized or StateFailed.
type Turn struct {
	ChatID string
	TurnID string
	Events <-chan Event
}

package ai

import (
	"strings"

	"github.com/google/uuid"
)

type ToolCallIDStyle int

const (
	// ToolCallIDStandard is "call_" followed by 24 hex characters.
	ToolCallIDStandard ToolCallIDStyle = iota
	// ToolCallIDAlnum9 is exactly nine alphanumeric characters.
	ToolCallIDAlnum9
)

// ModelCapabilities describes the message shaping a model needs.
type ModelCapabilities struct {
	NeedsDummyAssistantMessage bool
	ToolCallIDStyle            ToolCallIDStyle
}

var capabilityTable = map[string]ModelCapabilities{
	"mistralai/mistral-large":       {NeedsDummyAssistantMessage: true, ToolCallIDStyle: ToolCallIDAlnum9},
	"google/gemini-flash-1.5":       {NeedsDummyAssistantMessage: true},
	"google/gemini-pro-1.5":         {NeedsDummyAssistantMessage: true},
	"cohere/command-r-plus-08-2024": {NeedsDummyAssistantMessage: true},
}

// Capabilities looks up a model slug. Unknown mistral models still get
// alphanumeric tool-call ids; everything else gets the defaults.
func Capabilities(slug string) ModelCapabilities {
	key := strings.ToLower(strings.TrimSpace(slug))
	if c, ok := capabilityTable[key]; ok {
		return c
	}
	if strings.HasPrefix(key, "mistralai/") {
		return ModelCapabilities{ToolCallIDStyle: ToolCallIDAlnum9}
	}
	return ModelCapabilities{}
}

// NewToolCallID returns a fresh id in the given style.
func NewToolCallID(style ToolCallIDStyle) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	switch style {
	case ToolCallIDAlnum9:
		return raw[:9]
	default:
		return "call_" + raw[:24]
	}
}

// Package llm talks to chat-completion and embedding providers.
package llm

import (
	"context"
	"errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a chat transcript. Assistant messages may carry
// tool calls; tool messages answer one call through ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a function invocation requested by the model. Arguments is the
// raw JSON text as produced by the model and may be malformed.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a callable function with a JSON-schema parameter object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

type ChatRequest struct {
	// Model overrides the client default when the provider understands it.
	Model      string
	Messages   []Message
	Tools      []Tool
	ToolChoice ToolChoice
}

type ChatResponse struct {
	Message      Message
	FinishReason string
}

// ErrNoChoices is returned when the provider answered without any candidate.
var ErrNoChoices = errors.New("llm response has no choices")

// ChatClient completes one chat request.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

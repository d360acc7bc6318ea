// Package protocol defines the chatbot websocket frames.
package protocol

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/ent0n29/onesky/internal/assistant"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatbotMessage  MessageType = "chatbot_message"
	TypePing            MessageType = "ping"
	TypeChatbotResponse MessageType = "chatbot_response"
	TypeSessionStarted  MessageType = "session_started"
	TypePong            MessageType = "pong"
	TypeError           MessageType = "error"
)

// MaxMessageBytes bounds one inbound frame.
const MaxMessageBytes = 16 << 10

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrInvalidMessage  = errors.New("invalid message")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatbotMessage is a user message sent over the socket. An empty Message is
// valid on the wire and answered with a prompt to type something.
type ChatbotMessage struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

// ChatbotResponse is one streamed answer frame.
type ChatbotResponse struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	assistant.StreamEvent
}

type SessionStarted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Anonymous bool        `json:"anonymous"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail,omitempty"`
}

func NewChatbotResponse(requestID string, ev assistant.StreamEvent) ChatbotResponse {
	return ChatbotResponse{Type: TypeChatbotResponse, RequestID: requestID, StreamEvent: ev}
}

func NewError(requestID, code, detail string, retryable bool) ErrorEvent {
	return ErrorEvent{Type: TypeError, RequestID: requestID, Code: code, Detail: detail, Retryable: retryable}
}

// ParseClientMessage decodes one inbound frame into ChatbotMessage or Ping.
func ParseClientMessage(raw []byte) (any, error) {
	if len(raw) > MaxMessageBytes {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrInvalidMessage, len(raw))
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope: %v", ErrInvalidMessage, err)
	}

	switch env.Type {
	case TypeChatbotMessage:
		var msg ChatbotMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return msg, nil
	case TypePing:
		return Ping{Type: TypePing}, nil
	default:
		return nil, ErrUnsupportedType
	}
}

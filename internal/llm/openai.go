package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// OpenAIClient speaks the OpenAI-compatible chat completions and embeddings
// HTTP API.
type OpenAIClient struct {
	baseURL        string
	apiKey         string
	model          string
	embeddingModel string
	client         *http.Client
	retry          retryPolicy
}

type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		baseURL:        base,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		client:         &http.Client{Timeout: timeout},
		retry:          defaultRetry,
	}
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    *string      `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function oaFunctionCall `json:"function"`
}

type oaFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaTool struct {
	Type     string     `json:"type"`
	Function oaFunction `json:"function"`
}

type oaFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type oaChatRequest struct {
	Model      string      `json:"model"`
	Messages   []oaMessage `json:"messages"`
	Tools      []oaTool    `json:"tools,omitempty"`
	ToolChoice string      `json:"tool_choice,omitempty"`
}

type oaChatResponse struct {
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
}

type oaEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type oaEmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	payload := oaChatRequest{Model: model, Messages: make([]oaMessage, 0, len(req.Messages))}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, toOpenAIMessage(m))
	}
	if len(req.Tools) > 0 {
		for _, t := range req.Tools {
			payload.Tools = append(payload.Tools, oaTool{
				Type:     "function",
				Function: oaFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
			})
		}
		payload.ToolChoice = string(req.ToolChoice)
	}

	var out oaChatResponse
	if err := c.post(ctx, "/chat/completions", payload, &out); err != nil {
		return ChatResponse{}, err
	}
	if len(out.Choices) == 0 {
		return ChatResponse{}, ErrNoChoices
	}

	choice := out.Choices[0]
	msg := Message{Role: RoleAssistant}
	if choice.Message.Content != nil {
		msg.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return ChatResponse{Message: msg, FinishReason: choice.FinishReason}, nil
}

// Embed returns the embedding of text, or nil for blank input.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var out oaEmbeddingResponse
	if err := c.post(ctx, "/embeddings", oaEmbeddingRequest{Model: c.embeddingModel, Input: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embedding response has no data")
	}
	return out.Data[0].Embedding, nil
}

func (c *OpenAIClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return c.retry.do(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		res, err := c.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(snippet))}
		}
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func toOpenAIMessage(m Message) oaMessage {
	out := oaMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
	content := m.Content
	// Assistant tool-call turns carry a null content.
	if !(m.Role == RoleAssistant && len(m.ToolCalls) > 0 && content == "") {
		out.Content = &content
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, oaToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: oaFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
		})
	}
	return out
}

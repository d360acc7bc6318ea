package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiClient completes chats and embeds text through the Gemini API. It
// always uses its configured models; ChatRequest.Model is ignored.
type GeminiClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func NewGeminiClient(ctx context.Context, apiKey, model, embeddingModel string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if embeddingModel == "" {
		embeddingModel = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{client: client, model: model, embeddingModel: embeddingModel}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	config := &genai.GenerateContentConfig{}
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, modelContent(m))
		case RoleTool:
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromFunctionResponse(m.Name, map[string]any{"result": decodeLoose(m.Content)}),
			}, genai.RoleUser))
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		mode := genai.FunctionCallingConfigModeAuto
		if req.ToolChoice == ToolChoiceNone {
			mode = genai.FunctionCallingConfigModeNone
		}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ChatResponse{}, ErrNoChoices
	}

	cand := resp.Candidates[0]
	msg := Message{Role: RoleAssistant}
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				args = []byte("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: string(args)})
			continue
		}
		text.WriteString(part.Text)
	}
	msg.Content = text.String()
	return ChatResponse{Message: msg, FinishReason: string(cand.FinishReason)}, nil
}

// Embed returns the embedding of text, or nil for blank input.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	result, err := c.client.Models.EmbedContent(ctx, c.embeddingModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 {
		return nil, errors.New("gemini embed returned no embeddings")
	}
	return result.Embeddings[0].Values, nil
}

func modelContent(m Message) *genai.Content {
	var parts []*genai.Part
	if m.Content != "" {
		parts = append(parts, genai.NewPartFromText(m.Content))
	}
	for _, tc := range m.ToolCalls {
		args, _ := decodeLoose(tc.Arguments).(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
	}
	return genai.NewContentFromParts(parts, genai.RoleModel)
}

func decodeLoose(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// toGenaiSchema converts the JSON-schema subset used by tool menus.
func toGenaiSchema(in map[string]any) *genai.Schema {
	if in == nil {
		return nil
	}
	s := &genai.Schema{}
	if d, ok := in["description"].(string); ok {
		s.Description = d
	}
	switch in["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
	}
	if props, ok := in["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if child, ok := raw.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(child)
			}
		}
	}
	if items, ok := in["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	return s
}

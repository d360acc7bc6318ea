package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/goccy/go-json"
)

// MockClient picks tools with keyword rules and phrases a fixed reply. It
// keeps the service usable without provider credentials.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

var mockRoutes = []struct {
	keywords []string
	tool     string
}{
	{[]string{"completed", "past event", "history", "attended"}, "get_my_completed_events"},
	{[]string{"team event"}, "get_my_team_events"},
	{[]string{"my team"}, "get_my_teams"},
	{[]string{"team"}, "list_teams"},
	{[]string{"available badge", "earn", "not earned"}, "get_available_badges"},
	{[]string{"badge"}, "get_my_badges"},
	{[]string{"stat", "impact", "hours"}, "get_my_stats"},
	{[]string{"my event", "upcoming", "registered"}, "get_my_upcoming_events"},
	{[]string{"event", "volunteer", "opportunit"}, "search_events"},
}

func (c *MockClient) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	select {
	case <-ctx.Done():
		return ChatResponse{}, ctx.Err()
	default:
	}

	last := lastMessage(req.Messages, RoleUser)
	if len(req.Tools) == 0 {
		return ChatResponse{Message: Message{Role: RoleAssistant, Content: mockReply(req.Messages)}}, nil
	}

	offered := make(map[string]bool, len(req.Tools))
	for _, t := range req.Tools {
		offered[t.Name] = true
	}
	text := strings.ToLower(last)
	for _, route := range mockRoutes {
		if !offered[route.tool] {
			continue
		}
		for _, kw := range route.keywords {
			if strings.Contains(text, kw) {
				args := "{}"
				if route.tool == "search_events" {
					b, _ := json.Marshal(map[string]any{"keyword": last})
					args = string(b)
				}
				return ChatResponse{Message: Message{
					Role:      RoleAssistant,
					ToolCalls: []ToolCall{{ID: "call_mock_1", Name: route.tool, Arguments: args}},
				}}, nil
			}
		}
	}
	return ChatResponse{Message: Message{
		Role:    RoleAssistant,
		Content: "I'm sorry, I can only help with volunteering events and features on the OneSky platform.",
	}}, nil
}

func mockReply(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != RoleTool {
			continue
		}
		var data any
		if err := json.Unmarshal([]byte(msgs[i].Content), &data); err == nil {
			if items, ok := data.([]any); ok {
				if len(items) == 0 {
					return "I couldn't find anything matching that right now."
				}
				return fmt.Sprintf("Here are %d results I found for you.", len(items))
			}
		}
		return "Here are the details you asked for."
	}
	return "How can I help with OneSky today?"
}

func lastMessage(msgs []Message, role Role) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i].Content
		}
	}
	return ""
}

// HashEmbedder is a deterministic bag-of-words embedder: texts sharing words
// get positive similarity. Used when no embedding provider is configured.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(words) == 0 {
		return nil, nil
	}
	vec := make([]float32, e.dims)
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.dims)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

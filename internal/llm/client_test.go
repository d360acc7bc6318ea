package llm

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"
)

type stubClient struct {
	resp  ChatResponse
	err   error
	calls int
	last  ChatRequest
}

func (s *stubClient) Complete(_ context.Context, req ChatRequest) (ChatResponse, error) {
	s.calls++
	s.last = req
	return s.resp, s.err
}

func allTools() []Tool {
	names := []string{
		"get_my_upcoming_events", "get_my_completed_events", "search_events", "get_my_teams",
		"list_teams", "get_my_badges", "get_available_badges", "get_my_stats", "get_my_team_events",
	}
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		out = append(out, Tool{Name: n})
	}
	return out
}

func TestMockClientRoutesByKeyword(t *testing.T) {
	cases := map[string]string{
		"What badges do I have?":             "get_my_badges",
		"which badges can I still earn":      "get_available_badges",
		"show my completed events":           "get_my_completed_events",
		"what are my upcoming events":        "get_my_upcoming_events",
		"events in London this weekend":      "search_events",
		"what teams could I join":            "list_teams",
		"show my teams":                      "get_my_teams",
		"what events are my team events":     "get_my_team_events",
		"how many hours have I volunteered?": "get_my_stats",
	}
	c := NewMockClient()
	for msg, want := range cases {
		resp, err := c.Complete(context.Background(), ChatRequest{
			Messages: []Message{{Role: RoleUser, Content: msg}},
			Tools:    allTools(),
		})
		if err != nil {
			t.Fatalf("Complete(%q) error = %v", msg, err)
		}
		if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Name != want {
			t.Fatalf("Complete(%q) tool calls = %+v, want %s", msg, resp.Message.ToolCalls, want)
		}
	}
}

func TestMockClientRefusesOffTopic(t *testing.T) {
	resp, err := NewMockClient().Complete(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "tell me a joke"}},
		Tools:    allTools(),
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(resp.Message.ToolCalls) != 0 || !strings.Contains(resp.Message.Content, "only help with volunteering") {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestMockClientSummarisesToolResults(t *testing.T) {
	resp, err := NewMockClient().Complete(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleUser, Content: "badges"},
			{Role: RoleTool, ToolCallID: "c", Content: `[{"id":1},{"id":2}]`},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Message.Content != "Here are 2 results I found for you." {
		t.Fatalf("content = %q", resp.Message.Content)
	}
}

func TestFallbackClient(t *testing.T) {
	primary := &stubClient{err: errors.New("boom")}
	fallback := &stubClient{resp: ChatResponse{Message: Message{Content: "fallback"}}}
	c := NewFallbackClient(primary, fallback)

	resp, err := c.Complete(context.Background(), ChatRequest{Model: "gpt-4.1-nano"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Message.Content != "fallback" {
		t.Fatalf("content = %q, want fallback", resp.Message.Content)
	}
	if fallback.last.Model != "" {
		t.Fatalf("fallback model = %q, want cleared", fallback.last.Model)
	}
}

func TestFallbackClientSkipsFallbackOnCanceledContext(t *testing.T) {
	primary := &stubClient{err: context.Canceled}
	fallback := &stubClient{}
	_, err := NewFallbackClient(primary, fallback).Complete(context.Background(), ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback calls = %d, want 0", fallback.calls)
	}
}

func TestFallbackClientWrapsBothErrors(t *testing.T) {
	primaryErr := errors.New("primary down")
	_, err := NewFallbackClient(&stubClient{err: primaryErr}, &stubClient{err: errors.New("fallback down")}).
		Complete(context.Background(), ChatRequest{})
	if !errors.Is(err, primaryErr) || !strings.Contains(err.Error(), "fallback down") {
		t.Fatalf("error = %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &stubClient{err: errors.New("provider down")}
	var states []gobreaker.State
	c := NewBreakerClient(inner, BreakerSettings{
		Name:             "test",
		FailureThreshold: 2,
		OnStateChange:    func(_ string, s gobreaker.State) { states = append(states, s) },
	})

	for i := 0; i < 2; i++ {
		if _, err := c.Complete(context.Background(), ChatRequest{}); err == nil {
			t.Fatalf("call %d: want error", i)
		}
	}
	if c.State() != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", c.State())
	}
	_, err := c.Complete(context.Background(), ChatRequest{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("error = %v, want ErrOpenState", err)
	}
	if inner.calls != 2 {
		t.Fatalf("inner calls = %d, want 2", inner.calls)
	}
	if diff := cmp.Diff([]gobreaker.State{gobreaker.StateOpen}, states); diff != "" {
		t.Fatalf("state changes mismatch (-want +got):\n%s", diff)
	}
}

func TestBreakerIgnoresCanceledCalls(t *testing.T) {
	inner := &stubClient{err: context.Canceled}
	c := NewBreakerClient(inner, BreakerSettings{FailureThreshold: 1})
	_, _ = c.Complete(context.Background(), ChatRequest{})
	_, _ = c.Complete(context.Background(), ChatRequest{})
	if c.State() != gobreaker.StateClosed {
		t.Fatalf("state = %s, want closed", c.State())
	}
}

func TestHashEmbedderSimilarity(t *testing.T) {
	e := NewHashEmbedder(64)
	a, _ := e.Embed(context.Background(), "beach clean up in Brighton")
	b, _ := e.Embed(context.Background(), "Brighton beach clean")
	if len(a) != 64 || len(b) != 64 {
		t.Fatalf("dims = %d,%d", len(a), len(b))
	}
	var dot, norm float64
	for i := range a {
		dot += float64(a[i] * b[i])
		norm += float64(a[i] * a[i])
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("norm = %v, want unit vector", norm)
	}
	if dot <= 0.5 {
		t.Fatalf("similarity = %v, want > 0.5", dot)
	}
	if v, err := e.Embed(context.Background(), "!!"); v != nil || err != nil {
		t.Fatalf("Embed(no words) = %v, %v", v, err)
	}
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit":   map[string]any{"type": "integer", "description": "max"},
			"keyword": map[string]any{"type": "string"},
		},
	})
	if s.Type != genai.TypeObject || len(s.Properties) != 2 {
		t.Fatalf("schema = %+v", s)
	}
	if s.Properties["limit"].Type != genai.TypeInteger || s.Properties["limit"].Description != "max" {
		t.Fatalf("limit schema = %+v", s.Properties["limit"])
	}
	if toGenaiSchema(nil) != nil {
		t.Fatalf("nil schema should stay nil")
	}
}

func TestNewResolvesMockWithoutKeys(t *testing.T) {
	clients, err := New(context.Background(), Config{Provider: "auto"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if clients.Provider != "mock" {
		t.Fatalf("Provider = %q, want mock", clients.Provider)
	}
	if _, ok := clients.Chat.(*MockClient); !ok {
		t.Fatalf("Chat = %T, want *MockClient", clients.Chat)
	}
	if _, err := New(context.Background(), Config{Provider: "openai"}); err == nil {
		t.Fatalf("New(openai without key) error = nil")
	}
	if _, err := New(context.Background(), Config{Provider: "claude"}); err == nil {
		t.Fatalf("New(unknown) error = nil")
	}
	clients, err = New(context.Background(), Config{Provider: "auto", OpenAIAPIKey: "sk"})
	if err != nil || clients.Provider != "openai" {
		t.Fatalf("New(auto, openai key) = %q, %v", clients.Provider, err)
	}
}

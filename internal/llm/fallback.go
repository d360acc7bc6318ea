package llm

import (
	"context"
	"errors"
	"fmt"
)

// FallbackClient tries the primary client first and the fallback on error.
type FallbackClient struct {
	primary  ChatClient
	fallback ChatClient
}

func NewFallbackClient(primary, fallback ChatClient) *FallbackClient {
	return &FallbackClient{primary: primary, fallback: fallback}
}

func (c *FallbackClient) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if c.primary == nil {
		if c.fallback != nil {
			return c.fallback.Complete(ctx, req)
		}
		return ChatResponse{}, errors.New("fallback client misconfigured")
	}
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || c.fallback == nil {
		return ChatResponse{}, err
	}
	// The fallback provider has its own model names.
	req.Model = ""
	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		return ChatResponse{}, fmt.Errorf("primary client error: %w; fallback client error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}

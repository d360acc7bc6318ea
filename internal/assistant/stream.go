package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ent0n29/onesky/internal/platform"
)

// RejectedText is streamed back when input fails screening.
const RejectedText = "Sorry, I can't process that request."

// ChunkRunes is the size of each streamed text piece.
const ChunkRunes = 30

// StreamEvent is one chatbot_response frame of a streamed answer.
type StreamEvent struct {
	Response   string            `json:"response,omitempty"`
	Category   Kind              `json:"category"`
	Stream     bool              `json:"stream"`
	Partial    bool              `json:"partial,omitempty"`
	Done       bool              `json:"done,omitempty"`
	FinalText  string            `json:"final_text,omitempty"`
	Events     []platform.Record `json:"events,omitempty"`
	Teams      []platform.Record `json:"teams,omitempty"`
	Badges     []platform.Record `json:"badges,omitempty"`
	TeamEvents []platform.Record `json:"team_events,omitempty"`
}

// Emit delivers one stream frame. An error aborts the stream.
type Emit func(StreamEvent) error

func doneEvent(text string, category Kind) StreamEvent {
	return StreamEvent{Response: text, Category: category, Stream: true, Done: true, FinalText: text}
}

// ProcessStream answers like Process but emits cards as soon as capability
// results are in, then the reply text in chunks, then a done frame. Rejected
// input produces a single done frame rather than an error.
func (r *Router) ProcessStream(ctx context.Context, message, identity string, emit Emit) error {
	start := time.Now()
	clean, err := r.screen(message)
	if err != nil {
		r.metrics.ObserveChat("rejected", time.Since(start))
		return emit(doneEvent(RejectedText, KindGeneral))
	}
	log := r.requestLog(ctx, identity)

	messages := r.openTurn(ctx, clean, identity)

	first, err := r.route(ctx, messages)
	if err != nil {
		log.Warn().Err(err).Msg("routing call failed")
		r.metrics.ObserveChat("oracle_error", time.Since(start))
		return emit(doneEvent(ApologyText, KindGeneral))
	}

	if len(first.ToolCalls) == 0 {
		text := strings.TrimSpace(first.Content)
		if text == "" {
			text = DoneText
		}
		r.remember(identity, text)
		r.metrics.ObserveChat("direct", time.Since(start))
		return emit(doneEvent(text, KindGeneral))
	}

	merged, toolMsgs, err := r.gather(ctx, identity, first.ToolCalls)
	if err != nil {
		r.metrics.ObserveChat("error", time.Since(start))
		return err
	}

	cards := merged.reply("")
	if err := emit(StreamEvent{
		Category:   cards.Category,
		Stream:     true,
		Partial:    true,
		Events:     cards.Events,
		Teams:      cards.Teams,
		Badges:     cards.Badges,
		TeamEvents: cards.TeamEvents,
	}); err != nil {
		return err
	}

	text := r.phrase(ctx, messages, first, toolMsgs)
	r.remember(identity, text)
	r.metrics.ObserveChat("tools", time.Since(start))

	for _, piece := range chunkRunes(text, ChunkRunes) {
		if err := emit(StreamEvent{Response: piece, Category: cards.Category, Stream: true}); err != nil {
			return err
		}
	}
	return emit(StreamEvent{Category: cards.Category, Stream: true, Done: true, FinalText: text})
}

// chunkRunes splits s into pieces of at most n runes.
func chunkRunes(s string, n int) []string {
	if n <= 0 {
		return []string{s}
	}
	runes := []rune(s)
	out := make([]string, 0, len(runes)/n+1)
	for i := 0; i < len(runes); i += n {
		end := min(i+n, len(runes))
		out = append(out, string(runes[i:end]))
	}
	return out
}

// IsRejected reports whether err came from input screening.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// Package assistant answers chat messages by letting the model pick platform
// capabilities, running them and phrasing a reply grounded on their output.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/onesky/internal/llm"
	"github.com/ent0n29/onesky/internal/logging"
	"github.com/ent0n29/onesky/internal/memory"
	"github.com/ent0n29/onesky/internal/observability"
	"github.com/ent0n29/onesky/internal/platform"
	"github.com/ent0n29/onesky/internal/policy"
	"github.com/ent0n29/onesky/internal/semantic"
)

// ErrRejected marks input refused before it reaches the model. It always
// wraps policy.ErrUnsafeMessage.
var ErrRejected = errors.New("chat message rejected")

const (
	ApologyText  = "Sorry, I'm having trouble processing your request right now."
	FallbackText = "Here are the details you asked for."
	DoneText     = "Done."
)

// Reply is the answer to one chat message.
type Reply struct {
	Response   string            `json:"response"`
	Category   Kind              `json:"category"`
	Events     []platform.Record `json:"events,omitempty"`
	Teams      []platform.Record `json:"teams,omitempty"`
	Badges     []platform.Record `json:"badges,omitempty"`
	TeamEvents []platform.Record `json:"team_events,omitempty"`
}

// Options tunes model choice and tool-call fan-out for a Router.
type Options struct {
	// RoutingModel and ReplyModel override the client default for the
	// first and second pass.
	RoutingModel string
	ReplyModel   string
	// ConcurrentCapabilities runs the tool calls of one turn in parallel.
	ConcurrentCapabilities bool
	Metrics                *observability.Metrics
	Now                    func() time.Time
}

// Router answers chat messages by letting the model pick capabilities and
// phrasing a reply over their results.
type Router struct {
	chat    llm.ChatClient
	data    DataAccess
	search  *semantic.Searcher
	memory  *memory.Store
	metrics *observability.Metrics
	opts    Options
	log     zerolog.Logger
}

// NewRouter returns a Router. A nil mem gets a default-sized history store.
func NewRouter(chat llm.ChatClient, data DataAccess, embedder llm.Embedder, mem *memory.Store, opts Options) *Router {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if mem == nil {
		mem = memory.NewStore(memory.DefaultWindowSize)
	}
	return &Router{
		chat:    chat,
		data:    data,
		search:  semantic.NewSearcher(data, embedder, opts.Metrics),
		memory:  mem,
		metrics: opts.Metrics,
		opts:    opts,
		log:     logging.Component("assistant"),
	}
}

func (r *Router) now() time.Time {
	return r.opts.Now()
}

// screen applies the input policy.
func (r *Router) screen(message string) (string, error) {
	clean, err := policy.ScreenMessage(message)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return clean, nil
}

// Process answers one message. identity is the caller's email, or "" for
// anonymous callers. Only rejected input and data-access failures return an
// error; model failures degrade to fixed replies.
func (r *Router) Process(ctx context.Context, message, identity string) (Reply, error) {
	start := time.Now()
	clean, err := r.screen(message)
	if err != nil {
		r.metrics.ObserveChat("rejected", time.Since(start))
		return Reply{}, err
	}
	log := r.requestLog(ctx, identity)
	log.Debug().Str("message", policy.Redact(clean)).Msg("chat message")

	messages := r.openTurn(ctx, clean, identity)

	first, err := r.route(ctx, messages)
	if err != nil {
		log.Warn().Err(err).Msg("routing call failed")
		r.metrics.ObserveChat("oracle_error", time.Since(start))
		return Reply{Response: ApologyText, Category: KindGeneral}, nil
	}

	if len(first.ToolCalls) == 0 {
		text := strings.TrimSpace(first.Content)
		if text == "" {
			text = DoneText
		}
		r.remember(identity, text)
		r.metrics.ObserveChat("direct", time.Since(start))
		return Reply{Response: text, Category: KindGeneral}, nil
	}

	merged, toolMsgs, err := r.gather(ctx, identity, first.ToolCalls)
	if err != nil {
		r.metrics.ObserveChat("error", time.Since(start))
		return Reply{}, err
	}

	text := r.phrase(ctx, messages, first, toolMsgs)
	r.remember(identity, text)

	reply := merged.reply(text)
	r.metrics.ObserveChat("tools", time.Since(start))
	log.Info().
		Int("tool_calls", len(first.ToolCalls)).
		Str("category", string(reply.Category)).
		Dur("elapsed", time.Since(start)).
		Msg("chat answered")
	return reply, nil
}

func (r *Router) requestLog(ctx context.Context, identity string) zerolog.Logger {
	l := r.log.With()
	if id := logging.RequestID(ctx); id != "" {
		l = l.Str("request_id", id)
	}
	if identity != "" {
		l = l.Str("identity", policy.Redact(identity))
	}
	return l.Logger()
}

// openTurn builds the first-pass transcript from the prior window and
// records the user turn.
func (r *Router) openTurn(ctx context.Context, clean, identity string) []llm.Message {
	var (
		history   []memory.Turn
		firstName string
	)
	if identity != "" {
		history = r.memory.RecentTurns(identity)
		r.memory.AppendTurn(identity, memory.RoleUser, clean)
		firstName = r.memory.CachedOrFetchDisplayName(ctx, identity, r.fetchFirstName)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(firstName)})
	for _, t := range history {
		messages = append(messages, llm.Message{Role: llm.Role(t.Role), Content: t.Text})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: clean})
}

func (r *Router) fetchFirstName(ctx context.Context, identity string) (string, error) {
	rec, err := r.data.UserByEmail(ctx, identity)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(rec.String("FirstName")), nil
}

func (r *Router) remember(identity, text string) {
	if identity != "" {
		r.memory.AppendTurn(identity, memory.RoleAssistant, text)
	}
}

// route is the first pass: the model answers or requests capabilities.
func (r *Router) route(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	start := time.Now()
	resp, err := r.chat.Complete(ctx, llm.ChatRequest{
		Model:      r.opts.RoutingModel,
		Messages:   messages,
		Tools:      Menu(),
		ToolChoice: llm.ToolChoiceAuto,
	})
	r.metrics.ObserveStage("route", time.Since(start))
	if err != nil {
		r.metrics.ObserveOracleError("route")
		return llm.Message{}, err
	}
	return resp.Message, nil
}

// phrase is the second pass: the model writes the reply from tool output.
func (r *Router) phrase(ctx context.Context, messages []llm.Message, first llm.Message, toolMsgs []llm.Message) string {
	transcript := make([]llm.Message, 0, len(messages)+1+len(toolMsgs))
	transcript = append(transcript, messages...)
	transcript = append(transcript, first)
	transcript = append(transcript, toolMsgs...)

	start := time.Now()
	resp, err := r.chat.Complete(ctx, llm.ChatRequest{
		Model:    r.opts.ReplyModel,
		Messages: transcript,
	})
	r.metrics.ObserveStage("reply", time.Since(start))
	if err != nil {
		r.metrics.ObserveOracleError("reply")
		r.log.Warn().Err(err).Msg("reply call failed")
		return FallbackText
	}
	if text := strings.TrimSpace(resp.Message.Content); text != "" {
		return text
	}
	return FallbackText
}

// gather runs every requested capability and merges the results in call
// order.
func (r *Router) gather(ctx context.Context, identity string, calls []llm.ToolCall) (*merger, []llm.Message, error) {
	start := time.Now()
	results, err := r.runCapabilities(ctx, identity, calls)
	r.metrics.ObserveStage("capabilities", time.Since(start))
	if err != nil {
		return nil, nil, err
	}

	merged := newMerger()
	toolMsgs := make([]llm.Message, 0, len(calls))
	for i, call := range calls {
		res := results[i]
		payload, err := json.Marshal(res.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s result: %w", call.Name, err)
		}
		toolMsgs = append(toolMsgs, llm.Message{
			Role:       llm.RoleTool,
			Content:    string(payload),
			ToolCallID: call.ID,
			Name:       call.Name,
		})
		merged.add(res)
	}
	return merged, toolMsgs, nil
}

func (r *Router) runCapabilities(ctx context.Context, identity string, calls []llm.ToolCall) ([]Result, error) {
	c := r.resolveCaller(ctx, identity)
	results := make([]Result, len(calls))

	if !r.opts.ConcurrentCapabilities || len(calls) < 2 {
		for i, call := range calls {
			res, err := r.execute(ctx, c, call)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			res, err := r.execute(gctx, c, call)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveCaller looks up the numeric user id. A failed lookup leaves it 0 so
// identity-dependent capabilities return empty data.
func (r *Router) resolveCaller(ctx context.Context, identity string) caller {
	c := caller{identity: identity}
	if identity == "" {
		return c
	}
	id, err := r.data.UserIDByEmail(ctx, identity)
	if err != nil {
		r.log.Debug().Err(err).Msg("user id lookup failed")
		return c
	}
	c.userID = id
	return c
}

func (r *Router) execute(ctx context.Context, c caller, call llm.ToolCall) (Result, error) {
	args, err := ParseArguments(call.Arguments)
	if err != nil {
		r.log.Warn().Err(err).Str("capability", call.Name).Msg("using empty arguments")
		args = Arguments{}
	}

	h, ok := handlers[Capability(call.Name)]
	if !ok {
		r.metrics.ObserveCapability("unknown", string(KindGeneral))
		return empty(KindGeneral), nil
	}
	res, err := h(ctx, r, c, args)
	if err != nil {
		return Result{}, fmt.Errorf("capability %s: %w", call.Name, err)
	}
	r.metrics.ObserveCapability(call.Name, string(res.Kind))
	return res, nil
}

package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ent0n29/onesky/internal/llm"
	"github.com/ent0n29/onesky/internal/logging"
	"github.com/ent0n29/onesky/internal/observability"
	"github.com/ent0n29/onesky/internal/platform"
)

// EventSource is the slice of the data layer the searcher needs.
type EventSource interface {
	SearchEventsWithEmbeddings(ctx context.Context, vector []float32, q platform.EmbeddingQuery) ([]platform.Record, error)
	FilteredEvents(ctx context.Context, f platform.EventFilter) ([]platform.Record, error)
}

// Query is an event search request.
type Query struct {
	Keyword  string
	Location string
	Filter   platform.EventFilter
	Limit    int
	// Literal skips the embedding step entirely.
	Literal bool
}

// Path reports how a search was resolved.
type Path string

const (
	PathSemantic Path = "semantic"
	PathFallback Path = "fallback"
	PathLiteral  Path = "literal"
)

// Searcher ranks events by embedding similarity and falls back to the
// literal filter query when nothing scores above the threshold.
type Searcher struct {
	source   EventSource
	embedder llm.Embedder
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewSearcher(source EventSource, embedder llm.Embedder, metrics *observability.Metrics) *Searcher {
	return &Searcher{
		source:   source,
		embedder: embedder,
		metrics:  metrics,
		log:      logging.Component("semantic"),
	}
}

// Search runs q and reports which path produced the records.
func (s *Searcher) Search(ctx context.Context, q Query) ([]platform.Record, Path, error) {
	filter := q.Filter
	filter.Keyword = q.Keyword
	filter.Location = q.Location

	if q.Literal || s.embedder == nil {
		records, err := s.literal(ctx, filter)
		s.metrics.ObserveSemanticSearch(string(PathLiteral))
		return records, PathLiteral, err
	}

	vector := s.embed(ctx, q.Keyword)
	if len(vector) > 0 {
		records, err := s.source.SearchEventsWithEmbeddings(ctx, vector, platform.EmbeddingQuery{
			Location:  q.Location,
			From:      filter.From,
			To:        filter.To,
			Limit:     q.Limit,
			Threshold: Threshold(filter.From != nil || filter.To != nil),
		})
		if err != nil {
			return nil, PathSemantic, fmt.Errorf("semantic search: %w", err)
		}
		if len(records) > 0 {
			s.metrics.ObserveSemanticSearch(string(PathSemantic))
			return records, PathSemantic, nil
		}
	}

	records, err := s.literal(ctx, filter)
	s.metrics.ObserveSemanticSearch(string(PathFallback))
	return records, PathFallback, err
}

// embed returns nil on blank text or provider failure.
func (s *Searcher) embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.metrics.ObserveOracleError("embed")
		s.log.Warn().Err(err).Msg("query embedding failed; using literal search")
		return nil
	}
	return vec
}

func (s *Searcher) literal(ctx context.Context, f platform.EventFilter) ([]platform.Record, error) {
	records, err := s.source.FilteredEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("filtered events: %w", err)
	}
	return records, nil
}

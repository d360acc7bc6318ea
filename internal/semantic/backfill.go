package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/onesky/internal/llm"
	"github.com/ent0n29/onesky/internal/logging"
	"github.com/ent0n29/onesky/internal/observability"
	"github.com/ent0n29/onesky/internal/platform"
)

// BackfillStore lists events to embed and persists their vectors.
type BackfillStore interface {
	EventsForEmbedding(ctx context.Context, all bool) ([]platform.EmbeddingJob, error)
	StoreEventEmbedding(ctx context.Context, eventID int64, vector []float32) error
}

type BackfillResult struct {
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Backfill embeds events lacking a vector, or every event when all is set.
// Per-event failures are counted and do not stop the run.
func Backfill(ctx context.Context, store BackfillStore, embedder llm.Embedder, all bool, metrics *observability.Metrics) (BackfillResult, error) {
	log := logging.Component("backfill")

	jobs, err := store.EventsForEmbedding(ctx, all)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("list events for embedding: %w", err)
	}

	var res BackfillResult
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if strings.TrimSpace(job.Text) == "" {
			res.Skipped++
			continue
		}
		vec, err := embedder.Embed(ctx, job.Text)
		if err != nil || len(vec) == 0 {
			res.Failed++
			log.Warn().Err(err).Int64("event_id", job.EventID).Msg("embedding failed")
			continue
		}
		if err := store.StoreEventEmbedding(ctx, job.EventID, vec); err != nil {
			res.Failed++
			log.Warn().Err(err).Int64("event_id", job.EventID).Msg("store embedding failed")
			continue
		}
		res.Embedded++
	}

	metrics.ObserveBackfill("ok", res.Embedded)
	metrics.ObserveBackfill("failed", res.Failed)
	if len(jobs) > 0 {
		log.Info().
			Int("embedded", res.Embedded).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Msg("event embedding backfill finished")
	}
	return res, nil
}

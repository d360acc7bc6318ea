package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ent0n29/onesky/internal/llm"
	"github.com/ent0n29/onesky/internal/logging"
	"github.com/ent0n29/onesky/internal/observability"
	"github.com/ent0n29/onesky/internal/semantic"
)

// HTTPServer is the lifecycle slice of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server under a supervisor and shuts it down
// gracefully when its context ends.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// ctx is already done; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string { return "http-server" }

// BackfillService embeds new events on a fixed interval.
type BackfillService struct {
	Store    semantic.BackfillStore
	Embedder llm.Embedder
	Interval time.Duration
	Metrics  *observability.Metrics
}

func (b *BackfillService) Serve(ctx context.Context) error {
	log := logging.Component("backfill")
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := semantic.Backfill(ctx, b.Store, b.Embedder, false, b.Metrics); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error().Err(err).Msg("embedding backfill failed")
			}
		}
	}
}

func (b *BackfillService) String() string { return "embedding-backfill" }

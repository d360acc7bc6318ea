package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ent0n29/onesky/internal/app"
	"github.com/ent0n29/onesky/internal/config"
	"github.com/ent0n29/onesky/internal/logging"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "onesky",
	Short: "OneSky volunteering backend",
	Long: `OneSky serves the volunteering REST API and the chatbot that answers
questions about events, teams, badges and personal impact.

Settings come from ONESKY_* environment variables, optionally layered over a
YAML file named by ONESKY_CONFIG.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		cfg = loaded
		logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and chat socket",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

var embedAll bool

var embedCmd = &cobra.Command{
	Use:   "embed-events",
	Short: "Generate event embeddings for semantic search",
	Long: `embed-events computes an embedding for every event that has none and
stores it next to the event. With --all every event is re-embedded.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := app.RunBackfill(cmd.Context(), cfg, embedAll)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "embedded %d, skipped %d, failed %d\n", res.Embedded, res.Skipped, res.Failed)
		return nil
	},
}

func init() {
	embedCmd.Flags().BoolVar(&embedAll, "all", false, "re-embed every event, not only those missing a vector")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(embedCmd)
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logging.Error().Err(err).Msg("cleanup failed")
		}
	}()

	logging.Info().
		Str("addr", cfg.BindAddr).
		Str("llm_provider", built.Provider).
		Str("embedding_cache", cfg.EmbeddingCacheDir).
		Msg("server listening")

	err = built.Supervisor().Serve(ctx)
	logging.Info().Msg("shutdown complete")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

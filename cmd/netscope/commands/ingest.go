package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/netscope-io/netscope/pkg/config"
	"github.com/netscope-io/netscope/pkg/engine"
)

// IngestCmd loads device configuration exports into the temporal store.
var IngestCmd = &cobra.Command{
	Use:   "ingest <export>...",
	Short: "Ingest device configuration exports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		if err := e.IngestAll(ctx, args); err != nil {
			return err
		}
		fmt.Printf("ingested %d file(s) into %s\n", len(args), storePath)
		return nil
	},
}

func newEngine(ctx context.Context) (*engine.Engine, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return engine.New(ctx,
		engine.WithConfig(engine.Config{
			StorePath:    storePath,
			RulesFile:    rulesFile,
			OtelEndpoint: otelURL,
			Analysis: config.AnalysisConfig{
				MaxHops:      maxHops,
				IncludeAdded: true,
			},
			Ingest: config.IngestConfig{
				Concurrency:     concurrency,
				ConflictRetries: config.DefaultIngestConfig().ConflictRetries,
			},
			Logger: logger,
		}),
	)
}

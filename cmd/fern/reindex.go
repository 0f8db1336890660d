package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	fernctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

type reindexOptions struct {
	query                string
	id                   string
	twoPass              bool
	includeRelationships bool
}

func newReindexCmd(envFile *string) *cobra.Command {
	var opts reindexOptions

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild graph nodes from the host documents",
		Long: "Rebuild graph nodes from the host documents. Without --query or --id every\n" +
			"document is reindexed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.id != "" && opts.query != "" {
				return errors.New("--id and --query are mutually exclusive")
			}
			if opts.id != "" && opts.twoPass {
				return errors.New("--two-pass applies to bulk reindexing only")
			}

			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}

			result, err := reindex(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}

			out, err := json.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.query, "query", "", "Reindex only documents matching this query, e.g. type:Person")
	cmd.Flags().StringVar(&opts.id, "id", "", "Reindex a single document")
	cmd.Flags().BoolVar(&opts.twoPass, "two-pass", false, "Write all nodes before any relationships")
	cmd.Flags().BoolVar(&opts.includeRelationships, "include-relationships", true, "Rebuild relationships to other documents")
	return cmd
}

func reindex(parent context.Context, cfg *config.Config, opts reindexOptions) (*models.ReindexResult, error) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = fernctx.SetSource(ctx, fernctx.SourceCLI)
	ctx = fernctx.SetRequestID(ctx, uuid.NewString())
	ctx = fernctx.SetDocumentID(ctx, opts.id)

	a, err := newApp(cfg, appOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Stop(stopCtx); err != nil {
			a.logger.WithError(err).Warn("Dependencies did not stop cleanly")
		}
	}()

	if err := a.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start dependencies: %w", err)
	}

	switch {
	case opts.id != "":
		return a.indexer.ReindexID(ctx, opts.id, opts.includeRelationships)
	case opts.query != "" && opts.twoPass:
		return a.indexer.ReindexQueryResultsTwoPass(ctx, opts.query)
	case opts.query != "":
		return a.indexer.ReindexQueryResults(ctx, opts.query, opts.includeRelationships)
	case opts.twoPass:
		return a.indexer.ReindexAllTwoPass(ctx)
	default:
		return a.indexer.ReindexAll(ctx, opts.includeRelationships)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fiscal/internal/audit"
	"github.com/JonMunkholm/fiscal/internal/config"
	"github.com/JonMunkholm/fiscal/internal/core"
	"github.com/JonMunkholm/fiscal/internal/store"
)

// openStore loads the environment configuration and connects.
func openStore(ctx context.Context) (*config.Config, store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, store.Options{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema to DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			slog.Info("schema applied", "dialect", st.Dialect())
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", st.Dialect())
			return nil
		},
	}
}

type historyOutput struct {
	DocumentID int64          `json:"documento_id" yaml:"documento_id"`
	Total      int            `json:"total_acoes" yaml:"total_acoes"`
	History    []audit.Record `json:"historico" yaml:"historico"`
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Print the merged audit trail of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid document id %q", args[0])
			}

			ctx := cmd.Context()
			cfg, st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			trail, closeTrail, err := audit.Open(ctx, &cfg.Audit, st.Queries())
			if err != nil {
				return err
			}
			defer closeTrail()

			records, err := core.NewService(st, trail, cfg).History(ctx, id)
			if err != nil {
				return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
			}
			if records == nil {
				records = []audit.Record{}
			}
			return render(cmd.OutOrStdout(), opts.output, historyOutput{
				DocumentID: id,
				Total:      len(records),
				History:    records,
			})
		},
	}
}

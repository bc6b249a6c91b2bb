// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/observability"
	"github.com/xkilldash9x/stepwise/internal/service"
)

// storeProvider creates the store used by read-only commands. It is an
// interface so tests can inject a mock store instead of a live database.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (schemas.Store, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (schemas.Store, func(), error) {
	return service.InitializeStandaloneStore(ctx, cfg.Database(), observability.GetLogger())
}

func newHistoryCmd(provider storeProvider) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List persisted optimization runs or show one run's audit map",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runHistory(ctx, cfg, observability.GetLogger(), provider, runID, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list.")
	return cmd
}

// runHistory contains the core, testable logic of the history command.
func runHistory(ctx context.Context, cfg config.Interface, logger *zap.Logger, provider storeProvider, runID string, limit int, out io.Writer) error {
	st, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if runID != "" {
		entries, err := st.GetMapEntries(ctx, runID)
		if err != nil {
			logger.Error("Failed to load map entries.", zap.String("run_id", runID), zap.Error(err))
			return fmt.Errorf("failed to load run %s: %w", runID, err)
		}
		if len(entries) == 0 {
			fmt.Fprintf(out, "Run %s removed no steps (or does not exist).\n", runID)
			return nil
		}
		return printMapEntries(out, entries)
	}

	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet. Use 'stepwise optimize --persist' to record one.")
		return nil
	}
	return printRuns(out, runs)
}

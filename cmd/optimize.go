// File: cmd/optimize.go
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
	"github.com/xkilldash9x/stepwise/internal/workflow"
)

// optimizeOptions carries the flag values of the optimize command.
type optimizeOptions struct {
	output      string
	noOracle    bool
	threshold   float64
	concurrency int
	persist     bool
	report      bool

	// Which overrides were set explicitly.
	thresholdSet   bool
	concurrencySet bool
}

func newOptimizeCmd(factory service.ComponentFactory) *cobra.Command {
	var opts optimizeOptions

	cmd := &cobra.Command{
		Use:   "optimize <workflow.json>",
		Short: "Replace navigation-only steps with direct navigations",
		Long: `Reads a recorded workflow (a JSON object with a "steps" array, or a bare array
of steps; "-" reads stdin), removes navigation-only steps and writes the optimized
workflow. Steps that enter data, submit forms or press shortcut keys are always kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			opts.thresholdSet = cmd.Flags().Changed("threshold")
			opts.concurrencySet = cmd.Flags().Changed("concurrency")

			return runOptimize(ctx, cfg, observability.GetLogger(), factory, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the optimized workflow to this file instead of stdout.")
	cmd.Flags().BoolVar(&opts.noOracle, "no-oracle", false, "Do not consult the oracle; uncertain steps are kept.")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Minimum oracle confidence. (Overrides config/env)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 0, "Sequences classified in parallel. (Overrides config/env)")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "Store the run and its audit map in the database.")
	cmd.Flags().BoolVar(&opts.report, "report", false, "Print a summary and the optimization map.")

	return cmd
}

// applyOverrides copies explicit flag values into cfg.
func applyOverrides(cfg config.Interface, opts optimizeOptions) error {
	if opts.thresholdSet {
		if opts.threshold < 0 || opts.threshold > 1 {
			return fmt.Errorf("--threshold must be between 0.0 and 1.0, got %g", opts.threshold)
		}
		cfg.SetOptimizerConfidenceThreshold(opts.threshold)
	}
	if opts.concurrencySet {
		if opts.concurrency < 1 {
			return fmt.Errorf("--concurrency must be a positive integer, got %d", opts.concurrency)
		}
		cfg.SetOptimizerConcurrency(opts.concurrency)
	}
	if opts.noOracle {
		cfg.SetOracleEnabled(false)
	}
	if opts.persist {
		cfg.SetDatabasePersist(true)
	}
	return nil
}

// runOptimize contains the core, testable logic of the optimize command. The
// optimized workflow goes to out unless an output file is given; the report
// goes wherever the workflow does not.
func runOptimize(
	ctx context.Context,
	cfg config.Interface,
	logger *zap.Logger,
	factory service.ComponentFactory,
	path string,
	opts optimizeOptions,
	out, errOut io.Writer,
) error {
	if err := applyOverrides(cfg, opts); err != nil {
		return err
	}

	wf, err := workflow.Load(path)
	if err != nil {
		return err
	}
	logger.Debug("Workflow loaded.", zap.String("path", path), zap.String("workflow_id", wf.ID), zap.Int("steps", len(wf.Steps)))

	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	result := components.Optimizer.OptimizeWorkflow(ctx, wf)
	if ctx.Err() != nil {
		logger.Warn("Optimization interrupted; unresolved steps were kept.", zap.String("run_id", result.RunID))
	}
	if components.Record(wf.Steps, result) {
		logger.Info("Run queued for persistence.", zap.String("run_id", result.RunID))
	}

	optimized := &schemas.Workflow{ID: wf.ID, Name: wf.Name, Steps: result.Steps}
	reportOut := out
	if opts.output == "" || opts.output == "-" {
		if err := workflow.Encode(out, optimized); err != nil {
			return err
		}
		reportOut = errOut
	} else {
		if err := workflow.Save(opts.output, optimized); err != nil {
			return err
		}
		logger.Info("Optimized workflow written.", zap.String("path", opts.output))
	}

	if opts.report {
		return printReport(reportOut, result)
	}
	return nil
}

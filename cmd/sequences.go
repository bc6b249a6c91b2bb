// File: cmd/sequences.go
package cmd

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/observability"
	"github.com/xkilldash9x/stepwise/internal/optimizer"
	"github.com/xkilldash9x/stepwise/internal/workflow"
)

func newSequencesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sequences <workflow.json>",
		Short: "Show detected navigation sequences and their rule verdicts",
		Long: `Detects navigation sequences and classifies their steps with the rule table
only. The oracle is never consulted, so uncertain verdicts are shown as such.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runSequences(cfg, observability.GetLogger(), args[0], cmd.OutOrStdout())
		},
	}
}

func runSequences(cfg config.Interface, logger *zap.Logger, path string, out io.Writer) error {
	wf, err := workflow.Load(path)
	if err != nil {
		return err
	}
	opt := optimizer.New(cfg.Optimizer(), config.OracleConfig{}, nil, logger)
	seqs := opt.Analyze(wf.Steps)
	logger.Debug("Sequences analyzed.", zap.Int("steps", len(wf.Steps)), zap.Int("sequences", len(seqs)))
	return printSequences(out, seqs)
}

// Package optimizer rewrites recorded browser workflows, replacing chains of
// navigation-only steps (menu clicks, link clicks, scrolls) with a single
// direct navigation while keeping every step that changes application state.
package optimizer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/observability"
	"github.com/xkilldash9x/stepwise/internal/oracle"
)

// Optimizer runs the detect, classify, rewrite and assemble pipeline.
type Optimizer struct {
	cfg           config.OptimizerConfig
	oracle        schemas.Oracle
	oracleTimeout time.Duration
	logger        *zap.Logger
}

// New creates an optimizer. orc may be nil, in which case uncertain steps are
// always kept.
func New(cfg config.OptimizerConfig, oracleCfg config.OracleConfig, orc schemas.Oracle, logger *zap.Logger) *Optimizer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if !oracleCfg.Enabled {
		orc = nil
	}
	return &Optimizer{
		cfg:           cfg,
		oracle:        orc,
		oracleTimeout: oracleCfg.Timeout,
		logger:        logger.Named("optimizer"),
	}
}

// Optimize rewrites a list of steps. It does not fail: oracle problems and
// cancellation only make the result more conservative.
func (o *Optimizer) Optimize(ctx context.Context, steps []schemas.WorkflowStep) *schemas.OptimizationResult {
	return o.OptimizeWorkflow(ctx, &schemas.Workflow{Steps: steps})
}

// OptimizeWorkflow is Optimize for a named workflow; the workflow ID is
// carried into the result.
func (o *Optimizer) OptimizeWorkflow(ctx context.Context, wf *schemas.Workflow) *schemas.OptimizationResult {
	started := time.Now()
	result := &schemas.OptimizationResult{
		RunID:             uuid.NewString(),
		WorkflowID:        wf.ID,
		OriginalStepCount: len(wf.Steps),
		StartedAt:         started.UTC(),
	}
	logger := observability.ForRun(o.logger, result.RunID, wf.ID)

	if !o.cfg.Enabled {
		result.Steps = append([]schemas.WorkflowStep{}, wf.Steps...)
		result.Metadata.OptimizationMap = []schemas.OptimizationMapEntry{}
		result.Duration = time.Since(started)
		logger.Info("Optimizer disabled; workflow passed through.", zap.Int("steps", len(wf.Steps)))
		return result
	}

	seqs := DetectSequences(wf.Steps)
	logger.Debug("Sequences detected.", zap.Int("steps", len(wf.Steps)), zap.Int("sequences", len(seqs)))

	stats := &oracle.Stats{}
	o.classifyAll(ctx, seqs, nil, stats)

	settled := o.settle(ctx, logger, wf.Steps, assemble(wf.Steps, seqs), seqs, stats)
	steps, meta := settled.steps, settled.meta
	meta.Oracle = stats.Snapshot()
	result.Steps = steps
	result.Metadata = meta
	result.Duration = time.Since(started)

	fields := []zap.Field{
		zap.Int("original_steps", result.OriginalStepCount),
		zap.Int("optimized_steps", len(steps)),
		zap.Int("sequences_found", meta.SequencesFound),
		zap.Int("sequences_optimized", meta.SequencesOptimized),
		zap.Int("steps_removed", meta.StepsRemoved),
		zap.Bool("ai_analysis_used", meta.AIAnalysisUsed),
		zap.Duration("duration", result.Duration),
	}
	if meta.Oracle != nil {
		fields = append(fields,
			zap.Int64("oracle_calls", meta.Oracle.Calls),
			zap.Int64("oracle_failures", meta.Oracle.Failures),
			zap.Duration("oracle_mean_latency", meta.Oracle.MeanLatency))
	}
	logger.Info("Workflow optimized.", fields...)
	return result
}

// classifyAll runs the hybrid classifier over every sequence, at most
// cfg.Concurrency at a time. Each goroutine writes only its own slot. prior
// may be nil.
func (o *Optimizer) classifyAll(ctx context.Context, seqs []schemas.NavigationSequence, prior func(int) (schemas.StepClassificationResult, bool), stats *oracle.Stats) {
	h := &hybridClassifier{
		oracle:    o.oracle,
		threshold: o.cfg.ConfidenceThreshold,
		timeout:   o.oracleTimeout,
		stats:     stats,
		logger:    o.logger,
		prior:     prior,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i := range seqs {
		seq := &seqs[i]
		g.Go(func() error {
			h.classify(gctx, seq)
			evaluate(seq)
			return nil
		})
	}
	_ = g.Wait()
}

// Analyze detects sequences and applies the rule table without consulting
// the oracle. Uncertain verdicts are left in place for inspection.
func (o *Optimizer) Analyze(steps []schemas.WorkflowStep) []schemas.NavigationSequence {
	seqs := DetectSequences(steps)
	for i := range seqs {
		seq := &seqs[i]
		seq.Classifications = make([]schemas.StepClassificationResult, seq.Len())
		for off, step := range seq.Steps {
			seq.Classifications[off] = ClassifyStep(step, seq.StartIndex+off)
		}
		evaluate(seq)
	}
	return seqs
}

package optimizer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/oracle"
)

// hybridClassifier layers the oracle over the rule table. A nil oracle means
// the oracle is disabled.
type hybridClassifier struct {
	oracle    schemas.Oracle
	threshold float64
	timeout   time.Duration
	stats     *oracle.Stats
	logger    *zap.Logger

	// prior supplies verdicts settled by an earlier pass, keyed by the index
	// in the array being classified. Settled steps are not sent again.
	prior func(index int) (schemas.StepClassificationResult, bool)
}

// classify fills seq.Classifications. It never fails: every oracle problem
// resolves the affected steps to necessary.
func (h *hybridClassifier) classify(ctx context.Context, seq *schemas.NavigationSequence) {
	results := make([]schemas.StepClassificationResult, seq.Len())
	settled := make([]bool, seq.Len())
	var uncertain []int
	for off, step := range seq.Steps {
		if h.prior != nil {
			if r, ok := h.prior(seq.StartIndex + off); ok {
				r.StepIndex = seq.StartIndex + off
				results[off], settled[off] = r, true
				continue
			}
		}
		results[off] = ClassifyStep(step, seq.StartIndex+off)
		if results[off].Classification == schemas.ClassUncertain {
			uncertain = append(uncertain, off)
		}
	}
	seq.Classifications = results
	if len(uncertain) == 0 {
		return
	}

	if h.oracle == nil {
		for _, off := range uncertain {
			r := results[off]
			results[off] = schemas.NewVerdict(r.StepIndex, schemas.ClassNecessary, 1.0,
				r.Reasoning+"; oracle disabled, kept", schemas.DecisionRuleBased)
		}
		return
	}

	res := h.ask(ctx, seq, results)
	if !res.OK() {
		reason := fmt.Sprintf("oracle unavailable (%s), kept", res.Outcome)
		for _, off := range uncertain {
			results[off] = schemas.NewVerdict(results[off].StepIndex, schemas.ClassNecessary, 0, reason, schemas.DecisionHybrid)
		}
		return
	}

	verdicts := make(map[int]schemas.OracleStepVerdict, len(res.Response.StepClassifications))
	for _, v := range res.Response.StepClassifications {
		if v.StepIndex < seq.StartIndex || v.StepIndex > seq.EndIndex {
			continue
		}
		if _, dup := verdicts[v.StepIndex]; !dup {
			verdicts[v.StepIndex] = v
		}
	}
	for off := range results {
		if settled[off] {
			continue
		}
		v, found := verdicts[results[off].StepIndex]
		results[off] = mergeVerdict(results[off], v, found, h.threshold)
	}
}

// ask sends one batched request for the sequence, bounded by the oracle timeout.
func (h *hybridClassifier) ask(ctx context.Context, seq *schemas.NavigationSequence, rules []schemas.StepClassificationResult) schemas.OracleResult {
	req := schemas.OracleRequest{
		Sequence: schemas.OracleSequenceInfo{
			StartURL:  seq.StartURL,
			EndURL:    seq.EndURL,
			StepCount: seq.Len(),
		},
		Steps: make([]schemas.OracleStepSummary, seq.Len()),
	}
	for off, step := range seq.Steps {
		req.Steps[off] = schemas.OracleStepSummary{
			Type:                    step.Type,
			ElementText:             step.ElementText(),
			Label:                   step.ElementLabel(),
			URL:                     step.URL(),
			FormContext:             step.FormContext,
			InputDetails:            step.InputDetails,
			HasClipboardData:        step.HasClipboardData(),
			RuleBasedClassification: rules[off].Classification,
			StepIndex:               rules[off].StepIndex,
		}
	}

	callCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res := h.oracle.Classify(callCtx, req)
	if h.stats != nil {
		h.stats.Record(res)
	}
	h.logger.Debug("Oracle consulted.",
		zap.String("oracle", h.oracle.Name()),
		zap.Int("start_index", seq.StartIndex),
		zap.String("outcome", res.Outcome.String()),
		zap.Duration("latency", res.Latency))
	return res
}

// mergeVerdict combines a rule verdict with the oracle's answer for the same
// step. First matching clause wins.
func mergeVerdict(rule schemas.StepClassificationResult, v schemas.OracleStepVerdict, found bool, threshold float64) schemas.StepClassificationResult {
	idx := rule.StepIndex
	if rule.Classification == schemas.ClassNecessary {
		return rule
	}
	if !found {
		if rule.Classification == schemas.ClassUncertain {
			return schemas.NewVerdict(idx, schemas.ClassNecessary, 0, "oracle returned no verdict, kept", schemas.DecisionHybrid)
		}
		return rule
	}

	confidence := schemas.ClampConfidence(v.Confidence)
	oracleClass := schemas.ClassOptimizable
	if v.IsNecessary {
		oracleClass = schemas.ClassNecessary
	}

	switch {
	case rule.Classification == schemas.ClassOptimizable && !v.IsNecessary:
		return schemas.NewVerdict(idx, schemas.ClassOptimizable, confidence, appendReason(rule.Reasoning, v.Reasoning), schemas.DecisionHybrid)
	case rule.Classification == schemas.ClassUncertain && confidence < threshold:
		reason := fmt.Sprintf("oracle confidence %.2f below threshold %.2f, kept", confidence, threshold)
		return schemas.NewVerdict(idx, schemas.ClassNecessary, confidence, appendReason(reason, v.Reasoning), schemas.DecisionHybrid)
	case rule.Classification == schemas.ClassUncertain:
		return schemas.NewVerdict(idx, oracleClass, confidence, v.Reasoning, schemas.DecisionAI)
	case rule.Classification != oracleClass && confidence >= threshold:
		return schemas.NewVerdict(idx, oracleClass, confidence, v.Reasoning, schemas.DecisionAI)
	default:
		return rule
	}
}

func appendReason(base, extra string) string {
	if extra == "" {
		return base
	}
	return base + "; oracle: " + extra
}

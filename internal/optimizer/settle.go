package optimizer

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/oracle"
)

// settle runs further passes over the assembled output until one changes
// nothing, so optimizing the result again is a no-op. A rewrite can leave a
// step of a consumed sequence next to the direct navigation it produced;
// only a later pass sees the two together.
//
// Verdicts reached for an original step are reused in every later pass. The
// returned map refers to original step indices only.
func (o *Optimizer) settle(ctx context.Context, logger *zap.Logger, original []schemas.WorkflowStep, first assembly, seqs []schemas.NavigationSequence, stats *oracle.Stats) assembly {
	verdicts := map[int]schemas.StepClassificationResult{}
	recordVerdicts(verdicts, seqs, nil)

	meta := first.meta
	cur := first
	// Every productive pass shrinks the array, so this bound is never reached.
	for pass := 2; cur.meta.SequencesOptimized > 0 && pass <= len(original)+1; pass++ {
		origin := cur.origin
		prior := func(i int) (schemas.StepClassificationResult, bool) {
			if origin[i] < 0 {
				return schemas.StepClassificationResult{}, false
			}
			r, ok := verdicts[origin[i]]
			return r, ok
		}

		seqs := DetectSequences(cur.steps)
		o.classifyAll(ctx, seqs, prior, stats)
		recordVerdicts(verdicts, seqs, origin)

		next := assemble(cur.steps, seqs)
		if next.meta.SequencesOptimized == 0 {
			break
		}
		logger.Debug("Further pass rewrote the workflow.",
			zap.Int("pass", pass),
			zap.Int("sequences_optimized", next.meta.SequencesOptimized),
			zap.Int("steps", len(next.steps)))

		meta = composeMetadata(meta, origin, next, verdicts)
		for j, p := range next.origin {
			if p >= 0 {
				next.origin[j] = origin[p]
			}
		}
		cur = next
	}

	out := assembly{steps: cur.steps, origin: cur.origin, meta: meta}
	aggregateDecisions(verdicts, &out.meta)
	return out
}

// recordVerdicts stores the final verdict of each classified step under its
// original index. origin translates indices of a later pass; nil means the
// sequences index the original array. The first verdict for a step wins.
func recordVerdicts(verdicts map[int]schemas.StepClassificationResult, seqs []schemas.NavigationSequence, origin []int) {
	for i := range seqs {
		for _, c := range seqs[i].Classifications {
			idx := c.StepIndex
			if origin != nil {
				if idx < 0 || idx >= len(origin) || origin[idx] < 0 {
					continue
				}
				idx = origin[idx]
			}
			if _, ok := verdicts[idx]; ok {
				continue
			}
			c.StepIndex = idx
			verdicts[idx] = c
		}
	}
}

// composeMetadata folds the map of a later pass into meta, which describes
// the original array. origin maps the later pass's input to original indices.
func composeMetadata(meta schemas.OptimizationMetadata, origin []int, next assembly, verdicts map[int]schemas.StepClassificationResult) schemas.OptimizationMetadata {
	moved := make(map[int]int, len(next.origin))
	for j, p := range next.origin {
		if p >= 0 {
			moved[p] = j
		}
	}

	entries := make([]schemas.OptimizationMapEntry, 0, len(meta.OptimizationMap)+len(next.meta.OptimizationMap))
	kept := map[int]bool{}
	for _, e := range meta.OptimizationMap {
		if e.OptimizedIndex != schemas.RemovedIndex {
			j, ok := moved[e.OptimizedIndex]
			if !ok {
				// Removed by this pass; its removal entry follows.
				continue
			}
			e.OptimizedIndex = j
			kept[e.OriginalIndices[0]] = true
		}
		entries = append(entries, e)
	}

	for _, e := range next.meta.OptimizationMap {
		indices := make([]int, 0, len(e.OriginalIndices))
		for _, p := range e.OriginalIndices {
			if origin[p] >= 0 {
				indices = append(indices, origin[p])
			}
		}
		if len(indices) == 0 {
			continue
		}
		if e.OptimizedIndex != schemas.RemovedIndex {
			if kept[indices[0]] {
				continue
			}
			kept[indices[0]] = true
		} else {
			meta.StepsRemoved += len(indices)
			if len(indices) != len(e.OriginalIndices) {
				e.Reason, e.DecisionMethod = summarizeRemoval(indices, verdicts)
			}
		}
		e.OriginalIndices = indices
		entries = append(entries, e)
	}

	meta.OptimizationMap = entries
	meta.SequencesOptimized += next.meta.SequencesOptimized
	return meta
}

// summarizeRemoval describes removed original steps from their verdicts.
func summarizeRemoval(indices []int, verdicts map[int]schemas.StepClassificationResult) (string, schemas.DecisionMethod) {
	methods := map[schemas.DecisionMethod]int{}
	var confidences []float64
	for _, idx := range indices {
		c, ok := verdicts[idx]
		if !ok {
			methods[schemas.DecisionRuleBased]++
			continue
		}
		methods[c.DecisionMethod]++
		if c.DecisionMethod != schemas.DecisionRuleBased {
			confidences = append(confidences, c.Confidence)
		}
	}
	return removalReason(len(indices), methods, confidences), aggregateMethod(methods)
}

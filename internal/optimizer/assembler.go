package optimizer

import (
	"maps"
	"slices"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

// assembly is the result of one walk over a step array. Map entries and
// origin refer to indices of the array that was walked.
type assembly struct {
	steps []schemas.WorkflowStep
	// origin holds the input index of each output step, -1 for a synthetic navigation.
	origin []int
	meta   schemas.OptimizationMetadata
}

// assemble splices the rewrites of optimizable sequences into the original
// array in a single walk. seqs must be classified and evaluated and ordered
// by start index, as DetectSequences returns them.
func assemble(steps []schemas.WorkflowStep, seqs []schemas.NavigationSequence) assembly {
	a := assembly{
		steps:  make([]schemas.WorkflowStep, 0, len(steps)),
		origin: make([]int, 0, len(steps)),
		meta: schemas.OptimizationMetadata{
			SequencesFound:  len(seqs),
			OptimizationMap: []schemas.OptimizationMapEntry{},
		},
	}

	byStart := make(map[int]*schemas.NavigationSequence, len(seqs))
	for i := range seqs {
		byStart[seqs[i].StartIndex] = &seqs[i]
	}

	for i := 0; i < len(steps); {
		seq, ok := byStart[i]
		if !ok || !seq.CanOptimize {
			a.copyThrough(steps[i], i)
			i++
			continue
		}
		rw, ok := rewriteSequence(seq)
		if !ok {
			a.copyThrough(steps[i], i)
			i++
			continue
		}

		// Navigating to one URL and straight on to another is navigating to the second.
		if len(rw.steps) > 0 && rw.steps[0].Synthetic && len(a.steps) > 0 && a.steps[len(a.steps)-1].Synthetic {
			a.dropLast()
		}
		base := len(a.steps)
		for _, e := range rw.entries {
			if e.OptimizedIndex != schemas.RemovedIndex {
				e.OptimizedIndex += base
			}
			a.meta.OptimizationMap = append(a.meta.OptimizationMap, e)
		}
		a.steps = append(a.steps, rw.steps...)
		a.origin = append(a.origin, rw.origin...)
		a.meta.SequencesOptimized++
		a.meta.StepsRemoved += rw.removed

		// The next sequence begins on this one's last step, which is now
		// consumed; only its remainder can still be rewritten.
		if next, ok := byStart[seq.EndIndex]; ok && next != seq {
			if rest, ok := trimSequence(next, seq.EndIndex+1); ok {
				byStart[rest.StartIndex] = rest
			}
		}
		i = seq.EndIndex + 1
	}
	return a
}

func (a *assembly) copyThrough(step schemas.WorkflowStep, index int) {
	a.steps = append(a.steps, step)
	a.origin = append(a.origin, index)
}

// dropLast removes the last output step, a direct navigation superseded by
// the one about to follow it. A step that came from the input is recorded as
// removed.
func (a *assembly) dropLast() {
	last := len(a.steps) - 1
	entries := a.meta.OptimizationMap[:0]
	for _, e := range a.meta.OptimizationMap {
		if e.OptimizedIndex != last {
			entries = append(entries, e)
		}
	}
	a.meta.OptimizationMap = entries

	if idx := a.origin[last]; idx >= 0 {
		a.meta.OptimizationMap = append(a.meta.OptimizationMap, schemas.OptimizationMapEntry{
			OriginalIndices: []int{idx},
			OptimizedIndex:  schemas.RemovedIndex,
			Reason:          "direct navigation superseded by the one that follows",
			DecisionMethod:  schemas.DecisionRuleBased,
		})
		a.meta.StepsRemoved++
	}
	a.steps = a.steps[:last]
	a.origin = a.origin[:last]
}

// trimSequence returns the part of seq starting at original index from,
// re-evaluated as a sequence of its own. The rewrite before it already
// arrives on its start URL. ok is false when fewer than two steps remain.
func trimSequence(seq *schemas.NavigationSequence, from int) (*schemas.NavigationSequence, bool) {
	off := from - seq.StartIndex
	if off <= 0 || seq.Len()-off < 2 {
		return nil, false
	}
	rest := &schemas.NavigationSequence{
		StartIndex: from,
		EndIndex:   seq.EndIndex,
		StartURL:   seq.Steps[off].URL(),
		EndURL:     seq.EndURL,
		Steps:      append([]schemas.WorkflowStep(nil), seq.Steps[off:]...),
	}
	if off < len(seq.Classifications) {
		rest.Classifications = append([]schemas.StepClassificationResult(nil), seq.Classifications[off:]...)
	}
	evaluateWithArrival(rest, false)
	return rest, true
}

// aggregateDecisions fills the run-level decision statistics from the final
// verdict of every classified original step.
func aggregateDecisions(verdicts map[int]schemas.StepClassificationResult, meta *schemas.OptimizationMetadata) {
	var confidences []float64
	for _, idx := range slices.Sorted(maps.Keys(verdicts)) {
		c := verdicts[idx]
		if c.DecisionMethod == schemas.DecisionRuleBased {
			continue
		}
		meta.AIAnalysisUsed = true
		confidences = append(confidences, c.Confidence)
	}
	if len(confidences) > 0 {
		avg := mean(confidences)
		meta.AverageConfidence = &avg
	}
}

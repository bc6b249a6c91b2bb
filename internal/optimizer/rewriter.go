package optimizer

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

// evaluate decides which steps of a classified sequence must be kept and
// whether rewriting it removes anything. Steps without a final verdict count
// as necessary. A sequence that begins with an arrival (it was entered by a
// URL change, or its first step is a navigation) keeps that first step
// whenever it keeps anything else: it is what brings the kept steps to the
// right page.
func evaluate(seq *schemas.NavigationSequence) {
	arrival := seq.EnteredByNavigation || (seq.Len() > 0 && seq.Steps[0].Type == schemas.StepNavigation)
	evaluateWithArrival(seq, arrival)
}

func evaluateWithArrival(seq *schemas.NavigationSequence, arrival bool) {
	n := seq.Len()
	keep := make([]bool, n)
	necessary := 0
	for off := 0; off < n; off++ {
		if off >= len(seq.Classifications) || seq.Classifications[off].Classification != schemas.ClassOptimizable {
			keep[off] = true
			necessary++
		}
	}
	if arrival && necessary > 0 && !keep[0] {
		keep[0] = true
		necessary++
	}

	seq.NecessaryOffsets = make([]int, 0, necessary)
	for off, k := range keep {
		if k {
			seq.NecessaryOffsets = append(seq.NecessaryOffsets, off)
		}
	}
	optimizable := n - necessary
	seq.CanOptimize = n >= 2 && optimizable > 0 && necessary < n-1
}

// rewrite is the output of one sequence rewrite. Map entries carry
// OptimizedIndex values relative to the first output step.
type rewrite struct {
	steps []schemas.WorkflowStep
	// origin holds the input index of each output step, -1 for the synthetic navigation.
	origin  []int
	entries []schemas.OptimizationMapEntry
	removed int
}

// rewriteSequence keeps the necessary steps in order and replaces the rest
// with one direct navigation to the end URL. The navigation goes right before
// a kept final step or at the end. A kept final step is the only one recorded
// on the end URL, so replaying it before the navigation would run it on the
// wrong page. Sequences that cannot be optimized yield ok=false.
func rewriteSequence(seq *schemas.NavigationSequence) (rewrite, bool) {
	n := seq.Len()
	if n < 2 || !seq.CanOptimize {
		return rewrite{}, false
	}

	keep := make(map[int]bool, len(seq.NecessaryOffsets))
	for _, off := range seq.NecessaryOffsets {
		keep[off] = true
	}

	var (
		out         rewrite
		removed     []int
		removedConf []float64
		methods     = map[schemas.DecisionMethod]int{}
	)
	for off := 0; off < n; off++ {
		if keep[off] {
			continue
		}
		removed = append(removed, seq.StartIndex+off)
		c := classificationAt(seq, off)
		methods[c.DecisionMethod]++
		if c.DecisionMethod != schemas.DecisionRuleBased {
			removedConf = append(removedConf, c.Confidence)
		}
	}
	if len(removed) == 0 {
		return rewrite{}, false
	}

	emitSynthetic := seq.StartURL != seq.EndURL
	last := seq.Steps[n-1]
	appendKept := func(off int) {
		c := classificationAt(seq, off)
		reason := c.Reasoning
		if c.Classification == schemas.ClassOptimizable {
			reason = "kept: arrival step for the steps that follow"
		}
		out.entries = append(out.entries, schemas.OptimizationMapEntry{
			OriginalIndices: []int{seq.StartIndex + off},
			OptimizedIndex:  len(out.steps),
			Reason:          reason,
			DecisionMethod:  c.DecisionMethod,
		})
		out.steps = append(out.steps, seq.Steps[off])
		out.origin = append(out.origin, seq.StartIndex+off)
	}
	appendSynthetic := func() {
		out.steps = append(out.steps, schemas.NewDirectNavigation(seq.EndURL, last))
		out.origin = append(out.origin, -1)
	}

	for _, off := range seq.NecessaryOffsets {
		if off == n-1 && emitSynthetic {
			appendSynthetic()
			emitSynthetic = false
		}
		appendKept(off)
	}
	if emitSynthetic {
		appendSynthetic()
	}

	out.removed = len(removed)
	out.entries = append([]schemas.OptimizationMapEntry{{
		OriginalIndices: removed,
		OptimizedIndex:  schemas.RemovedIndex,
		Reason:          removalReason(len(removed), methods, removedConf),
		DecisionMethod:  aggregateMethod(methods),
	}}, out.entries...)
	return out, true
}

func classificationAt(seq *schemas.NavigationSequence, off int) schemas.StepClassificationResult {
	if off < len(seq.Classifications) {
		return seq.Classifications[off]
	}
	return schemas.NewVerdict(seq.StartIndex+off, schemas.ClassNecessary, 1.0, "unclassified", schemas.DecisionRuleBased)
}

func aggregateMethod(methods map[schemas.DecisionMethod]int) schemas.DecisionMethod {
	switch {
	case len(methods) == 1 && methods[schemas.DecisionRuleBased] > 0:
		return schemas.DecisionRuleBased
	case len(methods) == 1 && methods[schemas.DecisionAI] > 0:
		return schemas.DecisionAI
	default:
		return schemas.DecisionHybrid
	}
}

func removalReason(count int, methods map[schemas.DecisionMethod]int, confidences []float64) string {
	var b strings.Builder
	noun := "steps"
	if count == 1 {
		noun = "step"
	}
	fmt.Fprintf(&b, "removed %d navigation-only %s (%s)", count, noun, aggregateMethod(methods))
	if len(confidences) > 0 {
		fmt.Fprintf(&b, ", mean oracle confidence %.2f", mean(confidences))
	}
	return b.String()
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

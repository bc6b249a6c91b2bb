package optimizer

import (
	"github.com/xkilldash9x/stepwise/api/schemas"
)

// DetectSequences splits a workflow into navigation sequences: maximal runs of
// steps that end in a URL change. A step without a URL (a tab switch, or a
// payload that recorded none) discards the run in progress, and a run still
// open at the end of input is dropped. Consecutive sequences share their
// boundary step.
func DetectSequences(steps []schemas.WorkflowStep) []schemas.NavigationSequence {
	var sequences []schemas.NavigationSequence
	start := -1
	entered := false

	for i, step := range steps {
		url := step.URL()
		if url == "" {
			start = -1
			continue
		}
		if start < 0 {
			start, entered = i, false
			continue
		}
		if url == steps[i-1].URL() {
			continue
		}

		if seq := newSequence(steps, start, i, entered); seq.Len() >= 2 {
			sequences = append(sequences, seq)
		}
		start, entered = i, true
	}
	return sequences
}

// newSequence copies steps[start:end+1] into a sequence.
func newSequence(steps []schemas.WorkflowStep, start, end int, entered bool) schemas.NavigationSequence {
	run := make([]schemas.WorkflowStep, end-start+1)
	copy(run, steps[start:end+1])
	return schemas.NavigationSequence{
		StartIndex:          start,
		EndIndex:            end,
		StartURL:            run[0].URL(),
		EndURL:              run[len(run)-1].URL(),
		Steps:               run,
		EnteredByNavigation: entered,
	}
}

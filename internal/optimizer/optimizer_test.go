package optimizer

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/mocks"
)

// assertSafe checks that every step the rule table does not mark optimizable
// survives in the output in its original relative order.
func assertSafe(t *testing.T, original []schemas.WorkflowStep, out []schemas.WorkflowStep) {
	t.Helper()
	j := 0
	for i, step := range original {
		if ClassifyStep(step, i).Classification == schemas.ClassOptimizable {
			continue
		}
		for j < len(out) && !reflect.DeepEqual(out[j], step) {
			j++
		}
		if !assert.Less(t, j, len(out), "step %d (%s) missing from output or out of order", i, step.Type) {
			return
		}
		j++
	}
}

// coveredIndices collects every original index named in the optimization map.
func coveredIndices(entries []schemas.OptimizationMapEntry) map[int]bool {
	seen := map[int]bool{}
	for _, e := range entries {
		for _, idx := range e.OriginalIndices {
			seen[idx] = true
		}
	}
	return seen
}

func TestOptimize_ScenarioA_AllNavigation(t *testing.T) {
	opt, _ := newTestOptimizer(t, nil)
	steps := []schemas.WorkflowStep{click(u0, "Dashboard", "nav.sidebar a"), nav(u1)}

	res := opt.Optimize(context.Background(), steps)

	require.Len(t, res.Steps, 1)
	assert.True(t, res.Steps[0].Synthetic)
	assert.Equal(t, schemas.StepNavigation, res.Steps[0].Type)
	assert.Equal(t, u1, res.Steps[0].URL())
	assert.Equal(t, 2, res.Metadata.StepsRemoved)
	assert.Equal(t, 1, res.Metadata.SequencesFound)
	assert.Equal(t, 1, res.Metadata.SequencesOptimized)
	assert.False(t, res.Metadata.AIAnalysisUsed)
	assert.Nil(t, res.Metadata.AverageConfidence)
	assert.Nil(t, res.Metadata.Oracle)
	assert.Equal(t, 2, res.OriginalStepCount)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, res.Metadata.OptimizationMap, 1)
	entry := res.Metadata.OptimizationMap[0]
	assert.Equal(t, []int{0, 1}, entry.OriginalIndices)
	assert.Equal(t, schemas.RemovedIndex, entry.OptimizedIndex)
	assert.Equal(t, schemas.DecisionRuleBased, entry.DecisionMethod)
}

func TestOptimize_ScenarioB_FormSubmission(t *testing.T) {
	opt, _ := newTestOptimizer(t, nil)
	steps := []schemas.WorkflowStep{input(u0, "#name", "Bob"), click(u0, "Submit", "button[type=submit]"), nav(u1)}

	res := opt.Optimize(context.Background(), steps)

	assert.Equal(t, steps, res.Steps)
	assert.Equal(t, 1, res.Metadata.SequencesFound)
	assert.Zero(t, res.Metadata.SequencesOptimized)
	assert.Zero(t, res.Metadata.StepsRemoved)
	assert.Empty(t, res.Metadata.OptimizationMap)
	assert.NotNil(t, res.Metadata.OptimizationMap)
}

func TestOptimize_ScenarioC_OracleResolvesAmbiguousClick(t *testing.T) {
	orc := new(mocks.MockOracle)
	resp := &schemas.OracleResponse{
		StepClassifications:   []schemas.OracleStepVerdict{{StepIndex: 0, IsNecessary: false, Confidence: 0.85, Reasoning: "decorative card"}},
		OverallRecommendation: schemas.RecommendOptimize,
	}
	orc.On("Classify", mock.Anything, mock.Anything).Return(schemas.OracleSuccess(resp)).Once()
	opt, _ := newTestOptimizer(t, orc)
	steps := []schemas.WorkflowStep{click(u0, "widget-42", "div.card"), nav(u1)}

	res := opt.Optimize(context.Background(), steps)

	orc.AssertExpectations(t)
	require.Len(t, res.Steps, 1)
	assert.True(t, res.Steps[0].Synthetic)
	assert.Equal(t, u1, res.Steps[0].URL())

	meta := res.Metadata
	assert.Equal(t, 2, meta.StepsRemoved)
	assert.True(t, meta.AIAnalysisUsed)
	require.NotNil(t, meta.AverageConfidence)
	assert.InDelta(t, 0.85, *meta.AverageConfidence, 1e-9)
	require.Len(t, meta.OptimizationMap, 1)
	// The click was resolved by the oracle, the navigation by a rule.
	assert.Equal(t, schemas.DecisionHybrid, meta.OptimizationMap[0].DecisionMethod)
	assert.Contains(t, meta.OptimizationMap[0].Reason, "mean oracle confidence 0.85")

	require.NotNil(t, meta.Oracle)
	assert.EqualValues(t, 1, meta.Oracle.Calls)
	assert.Zero(t, meta.Oracle.Failures)
}

func TestOptimize_ScenarioD_OracleTimeout(t *testing.T) {
	orc := new(mocks.MockOracle)
	orc.On("Classify", mock.Anything, mock.Anything).
		Return(schemas.OracleFailure(schemas.OracleTimedOut, context.DeadlineExceeded)).Once()
	opt, logs := newTestOptimizer(t, orc)
	steps := []schemas.WorkflowStep{click(u0, "widget-42", "div.card"), nav(u1)}

	res := opt.Optimize(context.Background(), steps)

	assert.Equal(t, steps, res.Steps)
	assert.Zero(t, res.Metadata.StepsRemoved)
	assert.Zero(t, res.Metadata.SequencesOptimized)
	assert.True(t, res.Metadata.AIAnalysisUsed)
	require.NotNil(t, res.Metadata.AverageConfidence)
	assert.Zero(t, *res.Metadata.AverageConfidence)
	require.NotNil(t, res.Metadata.Oracle)
	assert.EqualValues(t, 1, res.Metadata.Oracle.TimedOut)

	seqs := opt.Analyze(steps)
	require.Len(t, seqs, 1)
	assert.Equal(t, schemas.ClassUncertain, seqs[0].Classifications[0].Classification, "Analyze leaves uncertain verdicts visible")

	done := logs.FilterMessage("Workflow optimized.").All()
	require.Len(t, done, 1)
	assert.EqualValues(t, 1, done[0].ContextMap()["oracle_failures"])
}

func TestOptimize_ScenarioD_ClassificationDetail(t *testing.T) {
	orc := new(mocks.MockOracle)
	orc.On("Classify", mock.Anything, mock.Anything).
		Return(schemas.OracleFailure(schemas.OracleTimedOut, context.DeadlineExceeded)).Once()
	h := newHybrid(orc)
	seq := DetectSequences([]schemas.WorkflowStep{click(u0, "widget-42", "div.card"), nav(u1)})
	require.Len(t, seq, 1)

	h.classify(context.Background(), &seq[0])
	evaluate(&seq[0])

	c := seq[0].Classifications[0]
	assert.Equal(t, schemas.ClassNecessary, c.Classification)
	assert.Equal(t, schemas.DecisionHybrid, c.DecisionMethod)
	assert.Less(t, c.Confidence, h.threshold)
	assert.False(t, seq[0].CanOptimize)
}

func TestOptimize_ChainedSequencesCollapse(t *testing.T) {
	opt, _ := newTestOptimizer(t, nil)
	steps := []schemas.WorkflowStep{menu(u0), nav(u1), menu(u1), nav(u2)}

	res := opt.Optimize(context.Background(), steps)

	require.Len(t, res.Steps, 1, "two consecutive direct navigations collapse into the last")
	assert.Equal(t, u2, res.Steps[0].URL())
	assert.Equal(t, 2, res.Metadata.SequencesFound)
	assert.Equal(t, 2, res.Metadata.SequencesOptimized)
	assert.Equal(t, 4, res.Metadata.StepsRemoved)

	seen := coveredIndices(res.Metadata.OptimizationMap)
	for i := range steps {
		assert.True(t, seen[i], "index %d missing from the optimization map", i)
	}
}

func TestOptimize_KeptStepsAcrossSequences(t *testing.T) {
	opt, _ := newTestOptimizer(t, nil)
	steps := []schemas.WorkflowStep{
		input(u0, "#search", "acme"),
		menu(u0),
		scroll(u0),
		click(u0, "Submit", ""),
		nav(u1),
		input(u1, "#note", "call back"),
		menu(u1),
		nav(u2),
		scroll(u2),
	}

	res := opt.Optimize(context.Background(), steps)

	require.Len(t, res.Steps, 6)
	assert.Equal(t, steps[0], res.Steps[0])
	assert.Equal(t, steps[3], res.Steps[1])
	assert.True(t, res.Steps[2].Synthetic)
	assert.Equal(t, u1, res.Steps[2].URL())
	assert.Equal(t, steps[5], res.Steps[3])
	assert.True(t, res.Steps[4].Synthetic)
	assert.Equal(t, u2, res.Steps[4].URL())
	assert.Equal(t, steps[8], res.Steps[5])
	assert.Equal(t, 5, res.Metadata.StepsRemoved)
	assertSafe(t, steps, res.Steps)

	// Kept entries point at the right positions in the optimized array.
	for _, e := range res.Metadata.OptimizationMap {
		if e.OptimizedIndex == schemas.RemovedIndex {
			continue
		}
		require.Len(t, e.OriginalIndices, 1)
		assert.Equal(t, steps[e.OriginalIndices[0]], res.Steps[e.OptimizedIndex])
	}
}

func TestOptimize_Idempotent(t *testing.T) {
	workflows := map[string][]schemas.WorkflowStep{
		"mixed": {
			input(u0, "#search", "acme"), menu(u0), scroll(u0), click(u0, "Submit", ""), nav(u1),
			input(u1, "#note", "x"), menu(u1), nav(u2), scroll(u2),
		},
		"navigation only":   {menu(u0), nav(u1), menu(u1), scroll(u1), nav(u2), menu(u2), nav(u3)},
		"kept final step":   {menu(u0), scroll(u0), input(u1, "#q", "x")},
		"return to start":   {menu(u0), nav(u1), menu(u1), nav(u0)},
		"no sequences":      {input(u0, "#a", "1"), input(u0, "#b", "2")},
		"with tab switches": {menu(u0), tabSwitch(), menu(u1), nav(u2), key(u2, "Tab"), nav(u3)},
	}

	for name, steps := range workflows {
		t.Run(name, func(t *testing.T) {
			opt, _ := newTestOptimizer(t, nil)

			first := opt.Optimize(context.Background(), steps)
			second := opt.Optimize(context.Background(), first.Steps)

			assert.Zero(t, second.Metadata.StepsRemoved)
			if diff := cmp.Diff(first.Steps, second.Steps); diff != "" {
				t.Errorf("second pass changed the workflow (-first +second):\n%s", diff)
			}
			assertSafe(t, steps, first.Steps)
		})
	}
}

func TestOptimize_RemainderNextToDirectNavigation(t *testing.T) {
	opt, logs := newTestOptimizer(t, nil)
	// The second sequence shares the navigation to u2 with the first; what
	// is left of it after the first rewrite is a single click on u3.
	steps := []schemas.WorkflowStep{nav(u3), menu(u3), nav(u2), menu(u3)}

	res := opt.Optimize(context.Background(), steps)

	require.Len(t, res.Steps, 1)
	assert.True(t, res.Steps[0].Synthetic)
	assert.Equal(t, u3, res.Steps[0].URL())
	assert.Equal(t, 4, res.Metadata.StepsRemoved)
	assert.Equal(t, 2, res.Metadata.SequencesFound)
	assert.Equal(t, 2, res.Metadata.SequencesOptimized)
	assert.Len(t, coveredIndices(res.Metadata.OptimizationMap), 4)
	assertConsistentMap(t, steps, res)
	assert.Equal(t, 1, logs.FilterMessage("Further pass rewrote the workflow.").Len())

	again := opt.Optimize(context.Background(), res.Steps)
	assert.Zero(t, again.Metadata.StepsRemoved)
	assert.Equal(t, res.Steps, again.Steps)
}

func TestOptimize_FurtherPassKeepsMapInOriginalIndices(t *testing.T) {
	opt, _ := newTestOptimizer(t, nil)
	steps := []schemas.WorkflowStep{
		input(u0, "#q", "acme"), nav(u3), menu(u3), nav(u2), menu(u3), input(u3, "#note", "x"),
	}

	res := opt.Optimize(context.Background(), steps)

	assertSafe(t, steps, res.Steps)
	assertConsistentMap(t, steps, res)
	assert.Contains(t, res.Steps, steps[0])
	assert.Contains(t, res.Steps, steps[5])

	again := opt.Optimize(context.Background(), res.Steps)
	assert.Zero(t, again.Metadata.StepsRemoved)
}

func TestOptimize_IdempotentOnGeneratedWorkflows(t *testing.T) {
	urls := []string{u0, u1, u2, u3}
	makers := []func(url string) schemas.WorkflowStep{
		menu,
		nav,
		scroll,
		func(url string) schemas.WorkflowStep { return input(url, "#field", "v") },
		func(url string) schemas.WorkflowStep { return click(url, "Save", "button") },
		func(string) schemas.WorkflowStep { return tabSwitch() },
	}
	rng := rand.New(rand.NewPCG(7, 11))
	opt := New(testOptimizerConfig(), config.OracleConfig{}, nil, zap.NewNop())

	for i := 0; i < 3000; i++ {
		steps := make([]schemas.WorkflowStep, 1+rng.IntN(10))
		for j := range steps {
			steps[j] = makers[rng.IntN(len(makers))](urls[rng.IntN(len(urls))])
		}

		first := opt.Optimize(context.Background(), steps)
		second := opt.Optimize(context.Background(), first.Steps)

		assertSafe(t, steps, first.Steps)
		assertConsistentMap(t, steps, first)
		if second.Metadata.StepsRemoved != 0 || !reflect.DeepEqual(first.Steps, second.Steps) {
			t.Fatalf("workflow %d is not stable under a second run:\n%s", i, cmp.Diff(first.Steps, second.Steps))
		}
	}
}

func TestOptimize_ActionClickSurvivesPermissiveOracle(t *testing.T) {
	orc := new(mocks.MockOracle)
	resp := &schemas.OracleResponse{StepClassifications: []schemas.OracleStepVerdict{
		{StepIndex: 0, IsNecessary: false, Confidence: 0.9},
		{StepIndex: 1, IsNecessary: false, Confidence: 0.9},
		{StepIndex: 2, IsNecessary: false, Confidence: 0.9},
	}}
	orc.On("Classify", mock.Anything, mock.Anything).Return(schemas.OracleSuccess(resp)).Maybe()
	opt, _ := newTestOptimizer(t, orc)
	steps := []schemas.WorkflowStep{menu(u0), click(u0, "btnSubmit", ""), nav(u1)}

	res := opt.Optimize(context.Background(), steps)

	require.Len(t, res.Steps, 2)
	assert.Equal(t, steps[1], res.Steps[0], "the action click is never handed to the oracle")
	assert.True(t, res.Steps[1].Synthetic)
	orc.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestOptimize_SyntheticTargetsEndURL(t *testing.T) {
	opt, _ := newTestOptimizer(t, nil)
	steps := []schemas.WorkflowStep{menu(u0), nav(u1), input(u1, "#q", "x"), menu(u1), nav(u3)}

	res := opt.Optimize(context.Background(), steps)

	seqs := DetectSequences(steps)
	ends := map[string]bool{}
	for _, s := range seqs {
		ends[s.EndURL] = true
	}
	for _, s := range res.Steps {
		if s.Synthetic {
			assert.True(t, ends[s.URL()], "synthetic step targets %s, which ends no sequence", s.URL())
		}
	}
}

func TestOptimize_Disabled(t *testing.T) {
	opt := New(config.OptimizerConfig{Enabled: false}, config.OracleConfig{}, nil, zap.NewNop())
	steps := []schemas.WorkflowStep{menu(u0), nav(u1)}

	res := opt.Optimize(context.Background(), steps)

	assert.Equal(t, steps, res.Steps)
	assert.Zero(t, res.Metadata.SequencesFound)
	assert.NotNil(t, res.Metadata.OptimizationMap)
}

func TestOptimize_OracleIgnoredWhenDisabledInConfig(t *testing.T) {
	orc := new(mocks.MockOracle)
	opt := New(testOptimizerConfig(), config.OracleConfig{Enabled: false}, orc, zap.NewNop())
	steps := []schemas.WorkflowStep{click(u0, "widget-42", ""), nav(u1)}

	res := opt.Optimize(context.Background(), steps)

	assert.Equal(t, steps, res.Steps)
	orc.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestOptimize_CancelledContextIsConservative(t *testing.T) {
	orc := new(mocks.MockOracle)
	orc.On("Classify", mock.Anything, mock.Anything).
		Return(schemas.OracleFailure(schemas.OracleTransportError, context.Canceled)).Maybe()
	opt, _ := newTestOptimizer(t, orc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	steps := []schemas.WorkflowStep{
		click(u0, "widget-42", ""), menu(u0), nav(u1),
		click(u1, "widget-7", ""), scroll(u1), nav(u2),
	}

	res := opt.Optimize(ctx, steps)

	assertSafe(t, steps, res.Steps)
	assert.Contains(t, res.Steps, steps[0])
	assert.Contains(t, res.Steps, steps[3])
}

func TestOptimize_ConfidenceBounds(t *testing.T) {
	orc := new(mocks.MockOracle)
	resp := &schemas.OracleResponse{StepClassifications: []schemas.OracleStepVerdict{
		{StepIndex: 0, IsNecessary: false, Confidence: 3.5},
		{StepIndex: 1, IsNecessary: true, Confidence: -2},
	}}
	orc.On("Classify", mock.Anything, mock.Anything).Return(schemas.OracleSuccess(resp))
	opt, _ := newTestOptimizer(t, orc)
	steps := []schemas.WorkflowStep{click(u0, "widget-42", ""), click(u0, "tile", ""), nav(u1)}

	res := opt.Optimize(context.Background(), steps)

	require.NotNil(t, res.Metadata.AverageConfidence)
	assert.GreaterOrEqual(t, *res.Metadata.AverageConfidence, 0.0)
	assert.LessOrEqual(t, *res.Metadata.AverageConfidence, 1.0)
	// Step 1 stays: its oracle confidence clamps to 0, below the threshold.
	assert.Contains(t, res.Steps, steps[1])
	assert.NotContains(t, res.Steps, steps[0])
}

func TestOptimize_ManySequencesConcurrently(t *testing.T) {
	orc := new(mocks.MockOracle)
	orc.On("Classify", mock.Anything, mock.Anything).
		Return(schemas.OracleFailure(schemas.OracleTransportError, errors.New("connection refused")))
	opt, _ := newTestOptimizer(t, orc)

	urls := []string{u0, u1, u2, u3}
	var steps []schemas.WorkflowStep
	for i := 0; i < 40; i++ {
		steps = append(steps, click(urls[i%4], "widget", ""), menu(urls[i%4]), nav(urls[(i+1)%4]))
	}

	res := opt.Optimize(context.Background(), steps)

	assertSafe(t, steps, res.Steps)
	require.NotNil(t, res.Metadata.Oracle)
	assert.Equal(t, res.Metadata.Oracle.Calls, res.Metadata.Oracle.Failures)
	assert.Positive(t, res.Metadata.Oracle.Calls)
}

func TestOptimizeWorkflow_CarriesWorkflowID(t *testing.T) {
	opt, logs := newTestOptimizer(t, nil)
	wf := &schemas.Workflow{ID: "wf-17", Steps: []schemas.WorkflowStep{menu(u0), nav(u1)}}

	res := opt.OptimizeWorkflow(context.Background(), wf)

	assert.Equal(t, "wf-17", res.WorkflowID)
	entries := logs.FilterMessage("Workflow optimized.").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "wf-17", fields["workflow_id"])
	assert.Equal(t, res.RunID, fields["run_id"])
	assert.EqualValues(t, 2, fields["steps_removed"])
}

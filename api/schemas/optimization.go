package schemas

import "time"

// NavigationSequence is a maximal contiguous run of steps that ends because the
// effective URL changed. EndIndex is inclusive.
type NavigationSequence struct {
	StartIndex int            `json:"startIndex"`
	EndIndex   int            `json:"endIndex"`
	StartURL   string         `json:"startUrl"`
	EndURL     string         `json:"endUrl"`
	Steps      []WorkflowStep `json:"steps"`

	// EnteredByNavigation is true when the first step is the URL change that
	// closed the preceding sequence.
	EnteredByNavigation bool `json:"enteredByNavigation"`

	CanOptimize      bool                       `json:"canOptimize"`
	NecessaryOffsets []int                      `json:"necessaryOffsets,omitempty"`
	Classifications  []StepClassificationResult `json:"classifications,omitempty"`
}

// Len returns the number of steps in the sequence.
func (s *NavigationSequence) Len() int {
	return len(s.Steps)
}

// OptimizationMapEntry is an audit record mapping original step indices to their
// position in the optimized array, or -1 when they were removed.
type OptimizationMapEntry struct {
	OriginalIndices []int          `json:"originalIndices"`
	OptimizedIndex  int            `json:"optimizedIndex"`
	Reason          string         `json:"reason"`
	DecisionMethod  DecisionMethod `json:"decisionMethod"`
}

// RemovedIndex marks an OptimizationMapEntry whose steps were dropped.
const RemovedIndex = -1

// OracleStats summarises oracle traffic for a run. Advisory only.
type OracleStats struct {
	Calls           int64         `json:"calls"`
	Failures        int64         `json:"failures"`
	TimedOut        int64         `json:"timedOut"`
	InvalidResponse int64         `json:"invalidResponse"`
	MeanLatency     time.Duration `json:"meanLatency"`
}

// OptimizationMetadata aggregates the outcome of an optimization run.
type OptimizationMetadata struct {
	SequencesFound     int                    `json:"sequencesFound"`
	SequencesOptimized int                    `json:"sequencesOptimized"`
	StepsRemoved       int                    `json:"stepsRemoved"`
	AIAnalysisUsed     bool                   `json:"aiAnalysisUsed"`
	AverageConfidence  *float64               `json:"averageConfidence,omitempty"`
	OptimizationMap    []OptimizationMapEntry `json:"optimizationMap"`
	Oracle             *OracleStats           `json:"oracle,omitempty"`
}

// OptimizationResult is the top-level output of the optimizer. Steps is a
// drop-in replacement for the original workflow steps.
type OptimizationResult struct {
	RunID             string               `json:"runId"`
	WorkflowID        string               `json:"workflowId,omitempty"`
	OriginalStepCount int                  `json:"originalStepCount"`
	Steps             []WorkflowStep       `json:"steps"`
	Metadata          OptimizationMetadata `json:"metadata"`
	StartedAt         time.Time            `json:"startedAt"`
	Duration          time.Duration        `json:"duration"`
}

// RunSummary is the persisted view of an optimization run.
type RunSummary struct {
	RunID              string    `json:"runId"`
	WorkflowID         string    `json:"workflowId"`
	OriginalStepCount  int       `json:"originalStepCount"`
	OptimizedStepCount int       `json:"optimizedStepCount"`
	SequencesFound     int       `json:"sequencesFound"`
	SequencesOptimized int       `json:"sequencesOptimized"`
	StepsRemoved       int       `json:"stepsRemoved"`
	AIAnalysisUsed     bool      `json:"aiAnalysisUsed"`
	AverageConfidence  *float64  `json:"averageConfidence,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

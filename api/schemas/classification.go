package schemas

// Classification is the verdict assigned to a single step.
type Classification string

const (
	ClassNecessary   Classification = "necessary"
	ClassOptimizable Classification = "optimizable"
	// ClassUncertain is only valid between rule evaluation and the hybrid merge.
	ClassUncertain Classification = "uncertain"
)

// DecisionMethod records which layer produced a verdict.
type DecisionMethod string

const (
	DecisionRuleBased DecisionMethod = "rule-based"
	DecisionAI        DecisionMethod = "ai-powered"
	DecisionHybrid    DecisionMethod = "hybrid"
)

// StepClassificationResult is the verdict for one step. StepIndex is the step's
// position in the original workflow, not in its sequence.
type StepClassificationResult struct {
	StepIndex      int            `json:"stepIndex"`
	IsNecessary    bool           `json:"isNecessary"`
	Classification Classification `json:"classification"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	DecisionMethod DecisionMethod `json:"decisionMethod"`
}

// NewVerdict builds a result with IsNecessary kept consistent with the
// classification and the confidence clamped to [0, 1].
func NewVerdict(index int, class Classification, confidence float64, reasoning string, method DecisionMethod) StepClassificationResult {
	return StepClassificationResult{
		StepIndex:      index,
		IsNecessary:    class == ClassNecessary,
		Classification: class,
		Confidence:     ClampConfidence(confidence),
		Reasoning:      reasoning,
		DecisionMethod: method,
	}
}

// ClampConfidence forces a confidence value into [0, 1]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	if c != c || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

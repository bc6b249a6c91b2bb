package schemas

import (
	"fmt"
	"time"
)

// OracleRequest is sent once per sequence that has at least one uncertain step.
type OracleRequest struct {
	Sequence OracleSequenceInfo  `json:"sequence"`
	Steps    []OracleStepSummary `json:"steps"`
}

// OracleSequenceInfo describes the sequence under review.
type OracleSequenceInfo struct {
	StartURL  string `json:"startUrl"`
	EndURL    string `json:"endUrl"`
	StepCount int    `json:"stepCount"`
}

// OracleStepSummary is the oracle's view of a single step.
type OracleStepSummary struct {
	Type                    StepType       `json:"type"`
	ElementText             string         `json:"elementText,omitempty"`
	Label                   string         `json:"label,omitempty"`
	URL                     string         `json:"url"`
	FormContext             map[string]any `json:"formContext,omitempty"`
	InputDetails            map[string]any `json:"inputDetails,omitempty"`
	HasClipboardData        bool           `json:"hasClipboardData"`
	RuleBasedClassification Classification `json:"ruleBasedClassification"`
	StepIndex               int            `json:"stepIndex"`
}

// Recommendation is the oracle's advisory verdict for a whole sequence.
type Recommendation string

const (
	RecommendOptimize Recommendation = "optimize"
	RecommendKeep     Recommendation = "keep"
	RecommendPartial  Recommendation = "partial"
)

// OracleStepVerdict is a validated per-step verdict. Missing or malformed
// fields have already been replaced with their safe defaults.
type OracleStepVerdict struct {
	StepIndex   int     `json:"stepIndex"`
	IsNecessary bool    `json:"isNecessary"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// OracleResponse is a validated oracle answer.
type OracleResponse struct {
	StepClassifications   []OracleStepVerdict `json:"stepClassifications"`
	OverallRecommendation Recommendation      `json:"overallRecommendation"`
}

// OracleOutcome enumerates how an oracle call ended.
type OracleOutcome int

const (
	OracleOK OracleOutcome = iota
	OracleTimedOut
	OracleTransportError
	OracleInvalidResponse
)

func (o OracleOutcome) String() string {
	switch o {
	case OracleOK:
		return "ok"
	case OracleTimedOut:
		return "timed_out"
	case OracleTransportError:
		return "transport_error"
	case OracleInvalidResponse:
		return "invalid_response"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OracleResult is the value returned by every oracle call. Response is set only
// when Outcome is OracleOK; Err describes any other outcome.
type OracleResult struct {
	Outcome  OracleOutcome
	Response *OracleResponse
	Err      error
	Latency  time.Duration
}

// OK reports whether the call produced a usable response.
func (r OracleResult) OK() bool {
	return r.Outcome == OracleOK && r.Response != nil
}

// OracleSuccess wraps a validated response.
func OracleSuccess(resp *OracleResponse) OracleResult {
	return OracleResult{Outcome: OracleOK, Response: resp}
}

// OracleFailure wraps a failed call.
func OracleFailure(outcome OracleOutcome, err error) OracleResult {
	return OracleResult{Outcome: outcome, Err: err}
}

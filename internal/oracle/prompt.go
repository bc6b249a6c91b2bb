package oracle

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

const systemPrompt = `You review recorded browser workflows. A workflow is being compressed: steps that only exist to move the user to another page (opening menus, clicking navigation links, scrolling) can be replaced by a direct navigation to the destination URL. Steps that change application state (typing into forms, copying or pasting data, submitting, confirming, deleting) must be kept.

For every step you receive, decide whether it is necessary to reproduce the workflow's effect. When unsure, answer that the step is necessary and lower your confidence.

Respond with a single JSON object and nothing else:
{"stepClassifications":[{"stepIndex":<number>,"isNecessary":<boolean>,"confidence":<number between 0 and 1>,"reasoning":"<one sentence>"}],"overallRecommendation":"optimize"|"keep"|"partial"}

Use the stepIndex values exactly as given.`

// renderPrompt turns a request into the user prompt sent to the LLM.
func renderPrompt(req schemas.OracleRequest) (string, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode oracle request: %w", err)
	}

	uncertain := make([]string, 0, len(req.Steps))
	for _, s := range req.Steps {
		if s.RuleBasedClassification == schemas.ClassUncertain {
			uncertain = append(uncertain, fmt.Sprintf("%d", s.StepIndex))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The sequence navigates from %s to %s in %d steps.\n", req.Sequence.StartURL, req.Sequence.EndURL, req.Sequence.StepCount)
	if len(uncertain) > 0 {
		fmt.Fprintf(&b, "The rule engine could not classify steps %s; they need your verdict most.\n", strings.Join(uncertain, ", "))
	}
	b.WriteString("\nSequence:\n")
	b.Write(payload)
	b.WriteString("\n")
	return b.String(), nil
}

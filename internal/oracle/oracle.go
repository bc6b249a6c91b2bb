// Package oracle implements the semantic classifier consulted for workflow
// steps the rule table cannot decide. Every backend reports failures through
// schemas.OracleResult rather than Go errors so callers can fall back per
// sequence.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
	"github.com/xkilldash9x/stepwise/internal/llmclient"
)

// Client is an oracle that owns resources.
type Client interface {
	schemas.Oracle
	Close() error
}

// New builds the oracle selected by configuration. It returns (nil, nil)
// when the oracle is disabled.
func New(ctx context.Context, cfg config.Interface, logger *zap.Logger) (Client, error) {
	oracleCfg := cfg.Oracle()
	if !oracleCfg.Enabled {
		return nil, nil
	}

	switch oracleCfg.Provider {
	case config.OracleProviderHTTP:
		return NewHTTPOracle(oracleCfg, logger)
	case config.OracleProviderLLM:
		llm, err := llmclient.NewClient(ctx, cfg.Agent(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM for oracle: %w", err)
		}
		return NewLLMOracle(llm, schemas.ModelTier(cfg.Agent().LLM.OracleTier), logger), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider '%s'", oracleCfg.Provider)
	}
}

// outcomeFor maps a failed call to its outcome. Deadline expiry is a
// timeout; everything else, cancellation included, is a transport failure.
func outcomeFor(ctx context.Context, err error) schemas.OracleOutcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return schemas.OracleTimedOut
	}
	return schemas.OracleTransportError
}

// errMalformedResponse marks a body that could not be interpreted at all.
var errMalformedResponse = errors.New("malformed oracle response")

// validateResponse turns a loosely decoded JSON document into a response with
// safe defaults: a missing or non-numeric confidence becomes 0, a missing or
// non-boolean isNecessary becomes true, and verdicts without an integral
// stepIndex are dropped.
func validateResponse(doc any) (*schemas.OracleResponse, error) {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %T, not an object", errMalformedResponse, doc)
	}

	resp := &schemas.OracleResponse{StepClassifications: []schemas.OracleStepVerdict{}}
	if rec, ok := root["overallRecommendation"].(string); ok {
		switch r := schemas.Recommendation(rec); r {
		case schemas.RecommendOptimize, schemas.RecommendKeep, schemas.RecommendPartial:
			resp.OverallRecommendation = r
		}
	}

	rawList, present := root["stepClassifications"]
	if !present || rawList == nil {
		return resp, nil
	}
	list, ok := rawList.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: stepClassifications is %T, not an array", errMalformedResponse, rawList)
	}

	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		index, ok := integral(entry["stepIndex"])
		if !ok {
			continue
		}

		verdict := schemas.OracleStepVerdict{StepIndex: index, IsNecessary: true}
		if necessary, ok := entry["isNecessary"].(bool); ok {
			verdict.IsNecessary = necessary
		}
		if confidence, ok := number(entry["confidence"]); ok {
			verdict.Confidence = schemas.ClampConfidence(confidence)
		}
		if reasoning, ok := entry["reasoning"].(string); ok {
			verdict.Reasoning = reasoning
		}
		resp.StepClassifications = append(resp.StepClassifications, verdict)
	}
	return resp, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func integral(v any) (int, bool) {
	f, ok := number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

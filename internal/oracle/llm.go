package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/llmutil"
)

// LLMOracle answers classification requests with a general purpose LLM.
type LLMOracle struct {
	client schemas.LLMClient
	tier   schemas.ModelTier
	logger *zap.Logger
}

// NewLLMOracle wraps an LLM client. An empty tier selects the fast model.
func NewLLMOracle(client schemas.LLMClient, tier schemas.ModelTier, logger *zap.Logger) *LLMOracle {
	if tier == "" {
		tier = schemas.TierFast
	}
	return &LLMOracle{
		client: client,
		tier:   tier,
		logger: logger.Named("oracle.llm"),
	}
}

// Name identifies the backend.
func (o *LLMOracle) Name() string { return "llm" }

// Close closes the underlying LLM client.
func (o *LLMOracle) Close() error { return o.client.Close() }

// Classify renders the request into a prompt and validates the model's JSON answer.
func (o *LLMOracle) Classify(ctx context.Context, req schemas.OracleRequest) schemas.OracleResult {
	start := time.Now()
	result := o.classify(ctx, req)
	result.Latency = time.Since(start)
	if !result.OK() {
		o.logger.Warn("Oracle call failed.",
			zap.String("outcome", result.Outcome.String()),
			zap.Int("steps", len(req.Steps)),
			zap.Error(result.Err))
	}
	return result
}

func (o *LLMOracle) classify(ctx context.Context, req schemas.OracleRequest) schemas.OracleResult {
	prompt, err := renderPrompt(req)
	if err != nil {
		return schemas.OracleFailure(schemas.OracleTransportError, err)
	}

	text, err := o.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Tier:         o.tier,
		Options: schemas.GenerationOptions{
			Temperature:     0.1,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return schemas.OracleFailure(outcomeFor(ctx, err), fmt.Errorf("LLM generation failed: %w", err))
	}

	doc, err := llmutil.ParseJSONResponse[any](text)
	if err != nil {
		return schemas.OracleFailure(schemas.OracleInvalidResponse, fmt.Errorf("%w: %v", errMalformedResponse, err))
	}
	resp, err := validateResponse(*doc)
	if err != nil {
		return schemas.OracleFailure(schemas.OracleInvalidResponse, err)
	}

	o.logger.Debug("Oracle answered.",
		zap.Int("verdicts", len(resp.StepClassifications)),
		zap.String("recommendation", string(resp.OverallRecommendation)))
	return schemas.OracleSuccess(resp)
}

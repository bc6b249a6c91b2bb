package schemas

import (
	"context"
)

// -- Store Interface --

// Store defines a persistent storage system for optimization runs. The audit
// map is kept alongside the original and optimized steps so a run can be
// inspected or undone later.
type Store interface {
	// PersistRun saves a completed optimization run together with the
	// workflow it was computed from.
	PersistRun(ctx context.Context, original []WorkflowStep, result *OptimizationResult) error
	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	// GetMapEntries retrieves the audit map recorded for a run.
	GetMapEntries(ctx context.Context, runID string) ([]OptimizationMapEntry, error)
}

// -- Oracle Interface --

// Oracle is the external semantic reasoning service consulted for steps the
// rule table cannot classify. Implementations never return a Go error: every
// failure mode is reported through OracleResult.Outcome.
//
//go:generate mockery --name Oracle --output ../../internal/mocks --outpkg mocks
type Oracle interface {
	// Classify sends one batched request for a sequence.
	Classify(ctx context.Context, req OracleRequest) OracleResult
	// Name identifies the oracle backend in logs.
	Name() string
}

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`   // The specific query or input from the user.
	Tier         ModelTier         `json:"tier"`          // The desired model tier (fast or powerful).
	Options      GenerationOptions `json:"options"`       // Advanced generation parameters.
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (e.g., Gemini).
//
//go:generate mockery --name LLMClient --output ../../internal/mocks --outpkg mocks
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client (e.g., network connections, SDK resources).
	Close() error
}

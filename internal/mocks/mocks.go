// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Optimizer() config.OptimizerConfig {
	args := m.Called()
	return args.Get(0).(config.OptimizerConfig)
}

func (m *MockConfig) Oracle() config.OracleConfig {
	args := m.Called()
	return args.Get(0).(config.OracleConfig)
}

func (m *MockConfig) Agent() config.AgentConfig {
	args := m.Called()
	return args.Get(0).(config.AgentConfig)
}

// --- Setters ---

func (m *MockConfig) SetOptimizerConcurrency(n int) {
	m.Called(n)
}

func (m *MockConfig) SetOptimizerConfidenceThreshold(t float64) {
	m.Called(t)
}

func (m *MockConfig) SetOracleEnabled(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetDatabasePersist(b bool) {
	m.Called(b)
}

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls. A cancelled context
// short-circuits without recording a call.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close provides a mock function for releasing the client.
func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Oracle Mock --

// MockOracle mocks the schemas.Oracle interface.
type MockOracle struct {
	mock.Mock
}

// Classify returns the configured OracleResult.
func (m *MockOracle) Classify(ctx context.Context, req schemas.OracleRequest) schemas.OracleResult {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.OracleResult)
}

// Name is fixed so tests need not set an expectation for log fields.
func (m *MockOracle) Name() string { return "mock" }

// -- Store Mock --

// MockStore mocks the schemas.Store interface.
type MockStore struct {
	mock.Mock
}

// PersistRun provides a mock function for persisting a run.
func (m *MockStore) PersistRun(ctx context.Context, original []schemas.WorkflowStep, result *schemas.OptimizationResult) error {
	args := m.Called(ctx, original, result)
	return args.Error(0)
}

// ListRuns provides a mock function for listing runs.
func (m *MockStore) ListRuns(ctx context.Context, limit int) ([]schemas.RunSummary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.RunSummary), args.Error(1)
}

// GetMapEntries provides a mock function for retrieving a run's audit map.
func (m *MockStore) GetMapEntries(ctx context.Context, runID string) ([]schemas.OptimizationMapEntry, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.OptimizationMapEntry), args.Error(1)
}

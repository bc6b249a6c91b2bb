package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
)

// -- Test Cases: Factory Initialization (NewClient) --

func TestNewClient_Success_RouterInitialization(t *testing.T) {
	logger := setupTestLogger(t)
	ctx := context.Background()

	fastConfig := getValidLLMConfig()
	fastConfig.Model = "gemini-flash"
	fastConfig.APIKey = "key-fast"

	powerfulConfig := getValidLLMConfig()
	powerfulConfig.Model = "gemini-pro"
	powerfulConfig.APIKey = "key-powerful"

	const fastName = "FastAlias"
	const powerfulName = "PowerfulAlias"

	cfg := config.AgentConfig{
		LLM: config.LLMRouterConfig{
			DefaultFastModel:     fastName,
			DefaultPowerfulModel: powerfulName,
			Models: map[string]config.LLMModelConfig{
				fastName:     fastConfig,
				powerfulName: powerfulConfig,
			},
		},
	}

	client, err := NewClient(ctx, cfg, logger)
	require.NoError(t, err, "NewClient should succeed for a valid configuration")
	require.NotNil(t, client)
	t.Cleanup(func() { client.Close() })

	router, ok := client.(*LLMRouter)
	require.True(t, ok, "The created client should be of type *LLMRouter")

	fastClient, okFast := router.clients[schemas.TierFast].(*GoogleClient)
	require.True(t, okFast, "Fast client should be an instance of *GoogleClient")
	assert.Equal(t, "gemini-flash", fastClient.config.Model)
	assert.Equal(t, "key-fast", fastClient.config.APIKey)
	assert.NotNil(t, fastClient.client, "SDK client should be initialized")

	powerfulClient, okPowerful := router.clients[schemas.TierPowerful].(*GoogleClient)
	require.True(t, okPowerful, "Powerful client should be an instance of *GoogleClient")
	assert.Equal(t, "gemini-pro", powerfulClient.config.Model)
	assert.Equal(t, "key-powerful", powerfulClient.config.APIKey)
}

// Both tiers resolving to one alias share a single client.
func TestNewClient_SharedAlias(t *testing.T) {
	cfg := config.AgentConfig{
		LLM: config.LLMRouterConfig{
			DefaultFastModel:     "only",
			DefaultPowerfulModel: "only",
			Models:               map[string]config.LLMModelConfig{"only": getValidLLMConfig()},
		},
	}

	client, err := NewClient(context.Background(), cfg, setupTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	router := client.(*LLMRouter)
	assert.Same(t, router.clients[schemas.TierFast], router.clients[schemas.TierPowerful])
}

func TestNewClient_Failure_MissingConfiguration(t *testing.T) {
	logger := setupTestLogger(t)
	ctx := context.Background()
	valid := getValidLLMConfig()

	tests := []struct {
		name          string
		llmCfg        config.LLMRouterConfig
		expectedError string
	}{
		{
			name: "Missing DefaultFastModel",
			llmCfg: config.LLMRouterConfig{
				DefaultPowerfulModel: "Powerful",
				Models:               map[string]config.LLMModelConfig{"Powerful": valid},
			},
			expectedError: "configuration error: DefaultFastModel is not specified in LLMRouterConfig",
		},
		{
			name: "Missing DefaultPowerfulModel",
			llmCfg: config.LLMRouterConfig{
				DefaultFastModel: "Fast",
				Models:           map[string]config.LLMModelConfig{"Fast": valid},
			},
			expectedError: "configuration error: DefaultPowerfulModel is not specified in LLMRouterConfig",
		},
		{
			name: "Fast Model Not In Map",
			llmCfg: config.LLMRouterConfig{
				DefaultFastModel:     "MissingModel",
				DefaultPowerfulModel: "Powerful",
				Models:               map[string]config.LLMModelConfig{"Powerful": valid},
			},
			expectedError: "configuration error: DefaultFastModel 'MissingModel' not found in the models map",
		},
		{
			name: "Powerful Model Not In Map",
			llmCfg: config.LLMRouterConfig{
				DefaultFastModel:     "Fast",
				DefaultPowerfulModel: "MissingModel",
				Models:               map[string]config.LLMModelConfig{"Fast": valid},
			},
			expectedError: "configuration error: DefaultPowerfulModel 'MissingModel' not found in the models map",
		},
		{
			name:          "Empty Configuration",
			llmCfg:        config.LLMRouterConfig{},
			expectedError: "configuration error: DefaultFastModel is not specified in LLMRouterConfig",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(ctx, config.AgentConfig{LLM: tt.llmCfg}, logger)
			assert.Error(t, err)
			assert.Nil(t, client)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestNewClient_Failure_ProviderInitializationError(t *testing.T) {
	missingKey := getValidLLMConfig()
	missingKey.APIKey = ""

	cfg := config.AgentConfig{
		LLM: config.LLMRouterConfig{
			DefaultFastModel:     "InvalidConfig",
			DefaultPowerfulModel: "Valid",
			Models: map[string]config.LLMModelConfig{
				"InvalidConfig": missingKey,
				"Valid":         getValidLLMConfig(),
			},
		},
	}

	client, err := NewClient(context.Background(), cfg, setupTestLogger(t))
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to initialize Fast tier LLM client (Model: InvalidConfig):")
	assert.Contains(t, err.Error(), "Google/Gemini API Key is required")
}

func TestNewClient_Failure_UnsupportedProvider(t *testing.T) {
	unsupported := getValidLLMConfig()
	unsupported.Provider = "unsupported-provider-xyz"

	cfg := config.AgentConfig{
		LLM: config.LLMRouterConfig{
			DefaultFastModel:     "Valid",
			DefaultPowerfulModel: "Unsupported",
			Models: map[string]config.LLMModelConfig{
				"Valid":       getValidLLMConfig(),
				"Unsupported": unsupported,
			},
		},
	}

	client, err := NewClient(context.Background(), cfg, setupTestLogger(t))
	assert.Error(t, err, "NewClient should fail for an unsupported provider")
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to initialize Powerful tier LLM client (Model: Unsupported):")
	assert.Contains(t, err.Error(), "unknown or unsupported LLM provider configured: 'unsupported-provider-xyz'")
	assert.Contains(t, err.Error(), string(config.ProviderGemini))
}

func TestNewClient_Failure_MissingProviderField(t *testing.T) {
	noProvider := getValidLLMConfig()
	noProvider.Provider = ""

	cfg := config.AgentConfig{
		LLM: config.LLMRouterConfig{
			DefaultFastModel:     "MissingProvider",
			DefaultPowerfulModel: "MissingProvider",
			Models:               map[string]config.LLMModelConfig{"MissingProvider": noProvider},
		},
	}

	client, err := NewClient(context.Background(), cfg, setupTestLogger(t))
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to initialize Fast tier LLM client (Model: MissingProvider):")
	assert.Contains(t, err.Error(), "LLM provider is not specified in the model configuration")
}

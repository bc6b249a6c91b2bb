// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
)

// NewClient builds an LLMRouter from the agent configuration, resolving the
// fast and powerful tiers through the models map.
func NewClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	routerCfg := cfg.LLM

	fastCfg, err := lookupModel(routerCfg, "DefaultFastModel", routerCfg.DefaultFastModel)
	if err != nil {
		return nil, err
	}
	powerfulCfg, err := lookupModel(routerCfg, "DefaultPowerfulModel", routerCfg.DefaultPowerfulModel)
	if err != nil {
		return nil, err
	}

	fastClient, err := newProviderClient(ctx, fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Fast tier LLM client (Model: %s): %w", routerCfg.DefaultFastModel, err)
	}

	// Both tiers may point at the same alias; share the client then.
	var powerfulClient schemas.LLMClient = fastClient
	if routerCfg.DefaultPowerfulModel != routerCfg.DefaultFastModel {
		powerfulClient, err = newProviderClient(ctx, powerfulCfg, logger)
		if err != nil {
			_ = fastClient.Close()
			return nil, fmt.Errorf("failed to initialize Powerful tier LLM client (Model: %s): %w", routerCfg.DefaultPowerfulModel, err)
		}
	}

	return NewLLMRouter(logger, fastClient, powerfulClient)
}

func lookupModel(cfg config.LLMRouterConfig, field, alias string) (config.LLMModelConfig, error) {
	if alias == "" {
		return config.LLMModelConfig{}, fmt.Errorf("configuration error: %s is not specified in LLMRouterConfig", field)
	}
	modelCfg, ok := cfg.Models[alias]
	if !ok {
		return config.LLMModelConfig{}, fmt.Errorf("configuration error: %s '%s' not found in the models map", field, alias)
	}
	return modelCfg, nil
}

func newProviderClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGoogleClient(ctx, cfg, logger)
	case "":
		return nil, fmt.Errorf("LLM provider is not specified in the model configuration")
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

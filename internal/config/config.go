// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Optimizer() OptimizerConfig
	Oracle() OracleConfig
	Agent() AgentConfig

	// Optimizer Setters
	SetOptimizerConcurrency(int)
	SetOptimizerConfidenceThreshold(float64)

	// Oracle Setters
	SetOracleEnabled(bool)

	// Database Setters
	SetDatabasePersist(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	OptimizerCfg OptimizerConfig `mapstructure:"optimizer" yaml:"optimizer"`
	OracleCfg    OracleConfig    `mapstructure:"oracle" yaml:"oracle"`
	AgentCfg     AgentConfig     `mapstructure:"agent" yaml:"agent"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Optimizer() OptimizerConfig { return c.OptimizerCfg }
func (c *Config) Oracle() OracleConfig       { return c.OracleCfg }
func (c *Config) Agent() AgentConfig         { return c.AgentCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetOptimizerConcurrency(n int) { c.OptimizerCfg.Concurrency = n }
func (c *Config) SetOptimizerConfidenceThreshold(t float64) {
	c.OptimizerCfg.ConfidenceThreshold = t
}
func (c *Config) SetOracleEnabled(b bool)   { c.OracleCfg.Enabled = b }
func (c *Config) SetDatabasePersist(b bool) { c.DatabaseCfg.Persist = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. Runs are only
// persisted when Persist is set.
type DatabaseConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Persist bool   `mapstructure:"persist" yaml:"persist"`
}

// OptimizerConfig tunes the navigation sequence optimizer.
type OptimizerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Concurrency bounds how many sequences are classified in parallel.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// ConfidenceThreshold is the minimum oracle confidence needed to resolve an
	// uncertain step or to override a rule verdict.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
}

// OracleProvider selects the oracle backend.
type OracleProvider string

const (
	// OracleProviderHTTP posts the oracle request as JSON to a dedicated endpoint.
	OracleProviderHTTP OracleProvider = "http"
	// OracleProviderLLM renders the request into a prompt for the configured LLM.
	OracleProviderLLM OracleProvider = "llm"
)

// OracleConfig configures the semantic oracle consulted for uncertain steps.
type OracleConfig struct {
	Enabled    bool           `mapstructure:"enabled" yaml:"enabled"`
	Provider   OracleProvider `mapstructure:"provider" yaml:"provider"`
	Endpoint   string         `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey     string         `mapstructure:"api_key" yaml:"-"`
	Timeout    time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	RateLimit  float64        `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst      int            `mapstructure:"burst" yaml:"burst"`
	MaxRetries int            `mapstructure:"max_retries" yaml:"max_retries"`
}

// AgentConfig holds settings related to the LLM backing the oracle.
type AgentConfig struct {
	LLM LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini    LLMProvider = "gemini"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOllama    LLMProvider = "ollama"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	OracleTier           string                    `mapstructure:"oracle_tier" yaml:"oracle_tier"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "stepwise")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.persist", false)

	// -- Optimizer --
	v.SetDefault("optimizer.enabled", true)
	v.SetDefault("optimizer.concurrency", 4)
	v.SetDefault("optimizer.confidence_threshold", 0.7)

	// -- Oracle --
	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.provider", string(OracleProviderHTTP))
	v.SetDefault("oracle.timeout", "10s")
	v.SetDefault("oracle.rate_limit", 5.0)
	v.SetDefault("oracle.burst", 1)
	v.SetDefault("oracle.max_retries", 2)

	// -- Agent --
	v.SetDefault("agent.llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("agent.llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("agent.llm.oracle_tier", "fast")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("oracle.api_key", "STEPWISE_ORACLE_API_KEY")
	_ = v.BindEnv("database.url", "STEPWISE_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Gemini keys are commonly exported under the SDK's own variable name.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		for name, m := range cfg.AgentCfg.LLM.Models {
			if m.Provider == ProviderGemini && m.APIKey == "" {
				m.APIKey = key
				cfg.AgentCfg.LLM.Models[name] = m
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.OptimizerCfg.Validate(); err != nil {
		return fmt.Errorf("optimizer configuration invalid: %w", err)
	}
	if err := c.OracleCfg.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	if c.DatabaseCfg.Persist && c.DatabaseCfg.URL == "" {
		return fmt.Errorf("database.url is required when database.persist is enabled")
	}
	if c.OracleCfg.Enabled && c.OracleCfg.Provider == OracleProviderLLM && len(c.AgentCfg.LLM.Models) == 0 {
		return fmt.Errorf("oracle provider 'llm' requires at least one model under agent.llm.models")
	}
	return nil
}

// Validate checks the optimizer settings.
func (o *OptimizerConfig) Validate() error {
	if o.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	if o.ConfidenceThreshold < 0.0 || o.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the oracle settings. A disabled oracle is always valid.
func (o *OracleConfig) Validate() error {
	if !o.Enabled {
		return nil
	}
	switch o.Provider {
	case OracleProviderHTTP:
		if o.Endpoint == "" {
			return fmt.Errorf("endpoint is required for provider '%s'", o.Provider)
		}
	case OracleProviderLLM:
	default:
		return fmt.Errorf("unknown provider '%s'. Supported: [%s, %s]", o.Provider, OracleProviderHTTP, OracleProviderLLM)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if o.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config resolves the delegate service configuration.
//
// Configuration is resolved exactly once at process start: compiled
// defaults, then an optional YAML file, then environment overrides. The
// result is validated and handed to constructors explicitly; nothing below
// cmd/ reads the environment.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianDelegate/services/delegate/datatypes"
)

// Provider names accepted in LLMConfig.Provider.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	DefaultWeaviateURL    = "http://localhost:8080"
	DefaultGeminiModel    = "gemini-1.5-flash-latest"
	DefaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultAnthropicURL   = "https://api.anthropic.com/v1"
	DefaultRetrievalLimit = 3
	DefaultPort           = 12300
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Config is the fully resolved service configuration.
//
// Thread Safety: Immutable after Load returns; safe for concurrent reads.
type Config struct {
	// DefaultTenant scopes queries that name no tenant.
	DefaultTenant string `yaml:"default_tenant" validate:"required"`

	// RetrievalLimit caps both retrieval tiers.
	RetrievalLimit int `yaml:"retrieval_limit" validate:"min=1,max=100"`

	Weaviate  WeaviateConfig  `yaml:"weaviate"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Routing is loaded from the embedded rules file, never from YAML config.
	Routing *RoutingRules `yaml:"-" validate:"required"`
}

// WeaviateConfig locates the knowledge store and bounds retries against it.
type WeaviateConfig struct {
	URL              string        `yaml:"url" validate:"required,url"`
	Timeout          time.Duration `yaml:"timeout" validate:"min=0"`
	MaxRetries       int           `yaml:"max_retries" validate:"min=0,max=10"`
	CircuitThreshold int           `yaml:"circuit_threshold" validate:"min=1"`
	CircuitCooldown  time.Duration `yaml:"circuit_cooldown" validate:"min=0"`
}

// LLMConfig selects the optional language model used by the finalizer.
//
// An empty Provider or a missing key means "not configured"; that is a
// supported mode, not an error.
type LLMConfig struct {
	Provider          string        `yaml:"provider" validate:"omitempty,oneof=gemini openai anthropic"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	Temperature       float32       `yaml:"temperature" validate:"min=0,max=2"`
	MaxOutputTokens   int           `yaml:"max_output_tokens" validate:"min=1"`
	Timeout           time.Duration `yaml:"timeout" validate:"min=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"min=0"`
	Burst             int           `yaml:"burst" validate:"min=1"`

	// APIKey is sealed in a memguard enclave and never serialized.
	APIKey *memguard.Enclave `yaml:"-"`
}

// Configured reports whether a language model can be constructed.
func (c LLMConfig) Configured() bool {
	return c.Provider != "" && c.APIKey != nil
}

// CacheConfig controls the on-disk completion cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir" validate:"required_if=Enabled true"`
	TTL     time.Duration `yaml:"ttl" validate:"min=0"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
}

// Defaults returns the compiled-in configuration without routing rules.
func Defaults() Config {
	return Config{
		DefaultTenant:  datatypes.DefaultTenant,
		RetrievalLimit: DefaultRetrievalLimit,
		Weaviate: WeaviateConfig{
			URL:              DefaultWeaviateURL,
			Timeout:          10 * time.Second,
			MaxRetries:       2,
			CircuitThreshold: 5,
			CircuitCooldown:  30 * time.Second,
		},
		LLM: LLMConfig{
			Temperature:     0.4,
			MaxOutputTokens: 256,
			Timeout:         30 * time.Second,
			Burst:           1,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Server: ServerConfig{
			Port:            DefaultPort,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "aleutian-delegate",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
	}
}

// Load resolves the configuration.
//
// Description:
//
//	Starts from Defaults, overlays the YAML file at path when path is
//	non-empty, applies environment overrides read through lookup, attaches
//	the embedded routing rules and validates the result.
//
// Inputs:
//   - ctx: Context for tracing.
//   - path: Optional YAML file. Empty skips the file layer.
//   - lookup: Environment reader. nil uses os.LookupEnv.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Non-nil when the file cannot be read or parsed, an override is
//     malformed, or validation fails.
func Load(ctx context.Context, path string, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if len(data) > MaxYAMLFileSize {
			return nil, fmt.Errorf("config: %s exceeds maximum size (%d > %d)", path, len(data), MaxYAMLFileSize)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	resolveLLMDefaults(&cfg.LLM)

	rules, err := GetRoutingRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: routing rules: %w", err)
	}
	cfg.Routing = rules

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: validation: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("WEAVIATE_URL", &cfg.Weaviate.URL)
	str("DELEGATE_DEFAULT_TENANT", &cfg.DefaultTenant)
	str("DELEGATE_LLM_PROVIDER", &cfg.LLM.Provider)
	str("DELEGATE_LLM_MODEL", &cfg.LLM.Model)
	str("DELEGATE_TRACE_EXPORTER", &cfg.Telemetry.TraceExporter)
	str("DELEGATE_METRIC_EXPORTER", &cfg.Telemetry.MetricExporter)

	if v, ok := lookup("DELEGATE_OTLP_ENDPOINT"); ok && v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		if cfg.Telemetry.TraceExporter == "none" {
			cfg.Telemetry.TraceExporter = "otlp"
		}
	}

	if v, ok := lookup("DELEGATE_CACHE_DIR"); ok && v != "" {
		cfg.Cache.Dir = v
		cfg.Cache.Enabled = true
	}
	if v, ok := lookup("DELEGATE_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DELEGATE_CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = d
	}
	if v, ok := lookup("DELEGATE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DELEGATE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	// Provider-specific settings. An explicit provider picks its own key;
	// otherwise the first provider with a key wins in the order
	// Gemini, OpenAI, Anthropic.
	geminiKey, _ := lookup("GEMINI_API_KEY")
	openaiKey, _ := lookup("OPENAI_API_KEY")
	anthropicKey, _ := lookup("ANTHROPIC_API_KEY")
	if cfg.LLM.Provider == "" {
		switch {
		case geminiKey != "":
			cfg.LLM.Provider = ProviderGemini
		case openaiKey != "":
			cfg.LLM.Provider = ProviderOpenAI
		case anthropicKey != "":
			cfg.LLM.Provider = ProviderAnthropic
		}
	}

	switch cfg.LLM.Provider {
	case ProviderGemini:
		str("GEMINI_MODEL", &cfg.LLM.Model)
		str("GEMINI_BASE_URL", &cfg.LLM.BaseURL)
		if geminiKey != "" {
			cfg.LLM.APIKey = memguard.NewEnclave([]byte(geminiKey))
		}
	case ProviderOpenAI:
		str("OPENAI_MODEL", &cfg.LLM.Model)
		str("OPENAI_BASE_URL", &cfg.LLM.BaseURL)
		if openaiKey != "" {
			cfg.LLM.APIKey = memguard.NewEnclave([]byte(openaiKey))
		}
	case ProviderAnthropic:
		str("ANTHROPIC_MODEL", &cfg.LLM.Model)
		str("ANTHROPIC_BASE_URL", &cfg.LLM.BaseURL)
		if anthropicKey != "" {
			cfg.LLM.APIKey = memguard.NewEnclave([]byte(anthropicKey))
		}
	}
	return nil
}

func resolveLLMDefaults(c *LLMConfig) {
	switch c.Provider {
	case ProviderGemini:
		if c.Model == "" {
			c.Model = DefaultGeminiModel
		}
		if c.BaseURL == "" {
			c.BaseURL = DefaultGeminiBaseURL
		}
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = DefaultOpenAIModel
		}
		if c.BaseURL == "" {
			c.BaseURL = DefaultOpenAIBaseURL
		}
	case ProviderAnthropic:
		if c.Model == "" {
			c.Model = DefaultAnthropicModel
		}
		if c.BaseURL == "" {
			c.BaseURL = DefaultAnthropicURL
		}
	}
}

// LogValue renders the configuration for startup logs without secrets.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("default_tenant", c.DefaultTenant),
		slog.Int("retrieval_limit", c.RetrievalLimit),
		slog.String("weaviate_url", c.Weaviate.URL),
		slog.String("llm_provider", c.LLM.Provider),
		slog.String("llm_model", c.LLM.Model),
		slog.Bool("llm_configured", c.LLM.Configured()),
		slog.Bool("cache_enabled", c.Cache.Enabled),
		slog.Int("port", c.Server.Port),
		slog.String("trace_exporter", c.Telemetry.TraceExporter),
		slog.String("metric_exporter", c.Telemetry.MetricExporter),
	)
}

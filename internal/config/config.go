// Package config loads service configuration from the environment, with an
// optional YAML tuning file for segmentation parameters, rate limits and
// model window sizes.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/GavinStein1/pod2chat/internal/orchestrator"
	"github.com/GavinStein1/pod2chat/internal/segmenter"
)

// Tuning holds the segmentation, rate-limit and model-window knobs
// operators can override per deployment.
type Tuning struct {
	Fine   segmenter.TierConfig     `yaml:"fine"`
	Coarse segmenter.TierConfig     `yaml:"coarse"`
	Rate   orchestrator.RateLimits  `yaml:"rate"`
	Model  orchestrator.ModelLimits `yaml:"model"`
}

// Config is the fully resolved service configuration.
type Config struct {
	Port           string
	DataDir        string
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	EmbeddingModel string
	Tuning         Tuning
}

// Load reads .env if present, then the environment. LLM_API_KEY is
// required; everything else has a default. The data directory is created if
// missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		Tuning: Tuning{
			Fine:   segmenter.DefaultFineConfig(),
			Coarse: segmenter.DefaultCoarseConfig(),
			Rate:   orchestrator.DefaultRateLimits(),
			Model:  orchestrator.DefaultModelLimits(),
		},
	}

	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}

	if path := os.Getenv("TUNING_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read tuning file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg.Tuning); err != nil {
			return nil, fmt.Errorf("failed to parse tuning file: %w", err)
		}
		if err := validateTier("fine", cfg.Tuning.Fine); err != nil {
			return nil, err
		}
		if err := validateTier("coarse", cfg.Tuning.Coarse); err != nil {
			return nil, err
		}
		if err := validateLimits(cfg.Tuning); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

func validateTier(name string, tc segmenter.TierConfig) error {
	if tc.TargetTokens <= 0 || tc.MinTokens <= 0 {
		return fmt.Errorf("tuning: %s tier token sizes must be positive", name)
	}
	if tc.OverlapFrac < 0 || tc.OverlapFrac >= 1 {
		return fmt.Errorf("tuning: %s tier overlap must be in [0,1)", name)
	}
	if tc.LookbackFrac <= 0 || tc.LookbackFrac > 1 {
		return fmt.Errorf("tuning: %s tier lookback must be in (0,1]", name)
	}
	return nil
}

func validateLimits(t Tuning) error {
	if t.Rate.TokensPerMinute <= 0 || t.Rate.RequestsPerMinute <= 0 {
		return fmt.Errorf("tuning: rate limits must be positive")
	}
	if t.Model.ContextTokens <= 0 || t.Model.ResponseReserve <= 0 {
		return fmt.Errorf("tuning: model limits must be positive")
	}
	if t.Model.ResponseReserve >= t.Model.ContextTokens {
		return fmt.Errorf("tuning: response reserve must leave room in the context window")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

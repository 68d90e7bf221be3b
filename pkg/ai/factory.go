package ai

import (
	"fmt"

	"smartshop-backend/pkg/gemini"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "openai", "gemini", "ollama" or "auto"

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey string

	// Ollama config; getters win over the static values when set.
	OllamaBaseURL   string
	OllamaModel     string
	OllamaBaseURLFn func() string
	OllamaModelFn   func() string
}

func (cfg Config) ollama() *OllamaService {
	if cfg.OllamaBaseURLFn != nil && cfg.OllamaModelFn != nil {
		return NewOllamaServiceWithGetters(cfg.OllamaBaseURLFn, cfg.OllamaModelFn)
	}
	return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
}

// NewGenerator creates a Generator based on the config. "auto" chains every
// configured hosted provider and ends with the local Ollama model.
func NewGenerator(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for openai provider")
		}
		return NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil

	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for gemini provider")
		}
		return gemini.NewGeminiService(cfg.GeminiAPIKey), nil

	case ProviderOllama:
		return cfg.ollama(), nil

	case ProviderAuto, "":
		var chain []NamedGenerator
		if cfg.OpenAIAPIKey != "" {
			chain = append(chain, NamedGenerator{Name: "openai", Gen: NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)})
		}
		if cfg.GeminiAPIKey != "" {
			chain = append(chain, NamedGenerator{Name: "gemini", Gen: gemini.NewGeminiService(cfg.GeminiAPIKey)})
		}
		chain = append(chain, NamedGenerator{Name: "ollama", Gen: cfg.ollama()})
		return NewFallbackService(chain...), nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// NewClassifierService builds the Classifier used by the router and the
// mail extraction pipeline.
func NewClassifierService(cfg Config, intents []Intent) (Classifier, error) {
	gen, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return NewClassifier(gen, intents), nil
}

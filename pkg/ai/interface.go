package ai

import "context"

// Intent describes one label the intent classifier may return.
type Intent struct {
	Label       string
	Description string
}

// IntentResult is the classifier's best guess for a chat message.
type IntentResult struct {
	Label      string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// ExpenseExtraction is the structured purchase data read from a mail.
type ExpenseExtraction struct {
	Vendor     string  `json:"vendor"`
	Amount     float64 `json:"amount"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classifier is the classification capability the core calls. All methods are
// side-effect free remote calls that may be slow or fail.
type Classifier interface {
	ClassifyIntent(ctx context.Context, text string) (IntentResult, error)
	ExtractExpense(ctx context.Context, text string) (ExpenseExtraction, error)
	Advise(ctx context.Context, question string) (string, error)
}

// Generator is a single text-completion provider (OpenAI, Gemini, Ollama).
// Implement this interface to add new AI providers.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)

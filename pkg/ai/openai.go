package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const systemPrompt = "You are a precise assistant. When asked for JSON, reply with a single JSON object and nothing else."

// OpenAIService implements Generator with the chat completions API. Any
// OpenAI-compatible endpoint works through baseURL.
type OpenAIService struct {
	client openai.Client
	model  string
}

func NewOpenAIService(apiKey, baseURL, model string) *OpenAIService {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
	}
	if trimmed := strings.TrimRight(baseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIService{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (s *OpenAIService) Generate(ctx context.Context, prompt string) (string, error) {
	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

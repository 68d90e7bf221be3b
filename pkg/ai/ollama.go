package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxOllamaErrorBody bounds how much of an error response ends up in logs.
const maxOllamaErrorBody = 512

// OllamaService implements Generator using an Ollama local LLM. The endpoint
// and model are read on every call so the settings API can change them.
type OllamaService struct {
	getBaseURL func() string
	getModel   func() string
	client     *http.Client
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaService(baseURL, model string) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return NewOllamaServiceWithGetters(
		func() string { return baseURL },
		func() string { return model },
	)
}

func NewOllamaServiceWithGetters(getBaseURL, getModel func() string) *OllamaService {
	return &OllamaService{
		getBaseURL: getBaseURL,
		getModel:   getModel,
		client:     &http.Client{},
	}
}

// Generate runs a non-streaming completion. Low temperature keeps the JSON
// answers of the classification prompts stable.
func (o *OllamaService) Generate(ctx context.Context, prompt string) (string, error) {
	endpoint := strings.TrimRight(o.getBaseURL(), "/") + "/api/generate"

	body, err := json.Marshal(ollamaRequest{
		Model:   o.getModel(),
		Prompt:  prompt,
		Options: ollamaOptions{Temperature: 0.2, NumPredict: 400},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxOllamaErrorBody))
		return "", fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if !result.Done {
		return "", fmt.Errorf("ollama returned an incomplete response")
	}
	return result.Response, nil
}

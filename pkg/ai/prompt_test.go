package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIntents = []Intent{
	{Label: "price_tracking", Description: "track prices"},
	{Label: "finance", Description: "expenses and budgets"},
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantLabel string
		wantConf  float64
		wantErr   bool
	}{
		{"plain", `{"intent":"finance","confidence":0.92}`, "finance", 0.92, false},
		{"fenced", "```json\n{\"intent\": \"PRICE_TRACKING\", \"confidence\": \"0.7\"}\n```", "price_tracking", 0.7, false},
		{"unknown label", `{"intent":"weather","confidence":0.99}`, "unknown", 0, false},
		{"clamped", `{"intent":"finance","confidence":3}`, "finance", 1, false},
		{"no json", "I think it's finance", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntent(tt.raw, testIntents)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
		})
	}
}

func TestParseExpense(t *testing.T) {
	got, err := ParseExpense(`Sure! {"vendor":" momo ","amount":"NT$1,280","category":"Shopping","confidence":0.85}`)
	require.NoError(t, err)
	assert.Equal(t, ExpenseExtraction{Vendor: "momo", Amount: 1280, Category: "shopping", Confidence: 0.85}, got)

	got, err = ParseExpense(`{"vendor":"x","amount":12.5,"category":"groceries","confidence":0.4}`)
	require.NoError(t, err)
	assert.Equal(t, "other", got.Category)
	assert.Equal(t, 12.5, got.Amount)
}

type stubGenerator struct {
	out    string
	err    error
	calls  int
	prompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	return s.out, s.err
}

func TestClassifierUsesGenerator(t *testing.T) {
	gen := &stubGenerator{out: `{"intent":"finance","confidence":0.8}`}
	c := NewClassifier(gen, testIntents)

	res, err := c.ClassifyIntent(context.Background(), "how much did I spend")
	require.NoError(t, err)
	assert.Equal(t, IntentResult{Label: "finance", Confidence: 0.8}, res)
	assert.Contains(t, gen.prompt, "- price_tracking: track prices")
	assert.Contains(t, gen.prompt, "how much did I spend")
}

func TestFallbackService(t *testing.T) {
	first := &stubGenerator{err: errors.New("gemini API error (429): RESOURCE_EXHAUSTED")}
	second := &stubGenerator{out: "ok"}
	f := NewFallbackService(
		NamedGenerator{Name: "gemini", Gen: first},
		NamedGenerator{Name: "nil"},
		NamedGenerator{Name: "ollama", Gen: second},
	)

	out, err := f.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestFallbackServiceAllFail(t *testing.T) {
	f := NewFallbackService(
		NamedGenerator{Name: "a", Gen: &stubGenerator{err: errors.New("dial tcp: connection refused")}},
		NamedGenerator{Name: "b", Gen: &stubGenerator{err: errors.New("boom")}},
	)

	_, err := f.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: boom")

	_, err = NewFallbackService().Generate(context.Background(), "p")
	require.Error(t, err)
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, isQuotaError(errors.New("429 Too Many Requests")))
	assert.False(t, isQuotaError(errors.New("bad request")))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:11434: connection refused")))
	assert.False(t, isConnectionError(nil))
}

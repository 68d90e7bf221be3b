package ai

import (
	"context"
	"strings"
)

// promptClassifier implements Classifier on top of any Generator.
type promptClassifier struct {
	gen     Generator
	intents []Intent
}

// NewClassifier wraps a generator with the intent, expense and advice prompts.
func NewClassifier(gen Generator, intents []Intent) Classifier {
	return &promptClassifier{gen: gen, intents: intents}
}

func (c *promptClassifier) ClassifyIntent(ctx context.Context, text string) (IntentResult, error) {
	raw, err := c.gen.Generate(ctx, intentPrompt(c.intents, text))
	if err != nil {
		return IntentResult{}, err
	}
	return ParseIntent(raw, c.intents)
}

func (c *promptClassifier) ExtractExpense(ctx context.Context, text string) (ExpenseExtraction, error) {
	raw, err := c.gen.Generate(ctx, expensePrompt(text))
	if err != nil {
		return ExpenseExtraction{}, err
	}
	return ParseExpense(raw)
}

func (c *promptClassifier) Advise(ctx context.Context, question string) (string, error) {
	raw, err := c.gen.Generate(ctx, advicePrompt(question))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

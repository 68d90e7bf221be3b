package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// maxMailChars bounds the mail text sent to a provider to stay within token limits.
const maxMailChars = 5000

var ExpenseCategories = []string{"food", "transport", "shopping", "entertainment", "bills", "health", "other"}

func intentPrompt(intents []Intent, text string) string {
	var b strings.Builder
	b.WriteString("You route messages for a shopping assistant chat bot used in Taiwan. ")
	b.WriteString("Pick the single best intent for the user message.\n\nINTENTS:\n")
	for _, in := range intents {
		fmt.Fprintf(&b, "- %s: %s\n", in.Label, in.Description)
	}
	b.WriteString("- unknown: none of the above\n\n")
	b.WriteString(`Reply with JSON only, no other text: {"intent": "<label>", "confidence": <0..1>}`)
	b.WriteString("\n\nMESSAGE:\n")
	b.WriteString(text)
	return b.String()
}

func expensePrompt(mailText string) string {
	if len(mailText) > maxMailChars {
		mailText = mailText[:maxMailChars]
	}
	return fmt.Sprintf(`You read e-mails and decide whether they are purchase confirmations, receipts or invoices.
Extract the merchant, the total amount paid in TWD and a category.

RULES:
1. category is one of: %s
2. amount is the final total as a number, without currency symbols or separators
3. confidence is 0..1: how sure you are this mail is a real completed purchase with that total
4. newsletters, shipping updates without a price, and promotions get confidence below 0.3

Reply with JSON only, no other text:
{"vendor": "...", "amount": 0, "category": "...", "confidence": 0.0}

EMAIL:
%s`, strings.Join(ExpenseCategories, ", "), mailText)
}

func advicePrompt(question string) string {
	return fmt.Sprintf(`You are a frugal shopping advisor for shoppers in Taiwan.
Answer in at most 6 short lines, in the language of the question.
Give concrete points to compare and when it is worth waiting for a discount.

QUESTION:
%s`, question)
}

// ParseIntent reads the intent JSON from a raw completion. Labels outside the
// allowed set become "unknown" with zero confidence.
func ParseIntent(raw string, intents []Intent) (IntentResult, error) {
	fields, err := extractObject(raw)
	if err != nil {
		return IntentResult{}, err
	}

	label := strings.ToLower(strings.TrimSpace(fmt.Sprint(fields["intent"])))
	result := IntentResult{Label: "unknown"}
	for _, in := range intents {
		if in.Label == label {
			result.Label = label
			result.Confidence = clamp01(toFloat(fields["confidence"]))
			break
		}
	}
	return result, nil
}

// ParseExpense reads the expense JSON from a raw completion.
func ParseExpense(raw string) (ExpenseExtraction, error) {
	fields, err := extractObject(raw)
	if err != nil {
		return ExpenseExtraction{}, err
	}

	out := ExpenseExtraction{
		Vendor:     strings.TrimSpace(toString(fields["vendor"])),
		Amount:     toFloat(fields["amount"]),
		Category:   normalizeCategory(toString(fields["category"])),
		Confidence: clamp01(toFloat(fields["confidence"])),
	}
	return out, nil
}

func extractObject(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return fields, nil
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	for _, known := range ExpenseCategories {
		if c == known {
			return c
		}
	}
	return "other"
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		cleaned := strings.NewReplacer(",", "", "NT$", "", "$", "", "元", "", " ", "").Replace(n)
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smartshop-backend/pkg/ai"
)

// Intent labels returned by the classifier.
const (
	IntentPriceTracking  = "price_tracking"
	IntentFinance        = "finance"
	IntentGmail          = "gmail"
	IntentReview         = "review"
	IntentRecommendation = "recommendation"
	IntentUnknown        = "unknown"
)

var (
	ErrDuplicateIntent = errors.New("intent already registered")
	ErrNilAgent        = errors.New("agent is nil")
)

// Agent is a stateless handler for one capability domain.
type Agent interface {
	Name() string
	// CanHandle is a cheap local predicate used when classification is
	// unavailable or not confident.
	CanHandle(text string) bool
	Process(ctx context.Context, userID, text string) (string, error)
}

type registration struct {
	intent string
	agent  Agent
}

// Registry maps intent labels to agents. Registration order is the fallback
// order for CanHandle polling.
type Registry struct {
	byIntent map[string]Agent
	ordered  []registration
}

func NewRegistry() *Registry {
	return &Registry{byIntent: make(map[string]Agent)}
}

func (r *Registry) Register(intent string, agent Agent) error {
	if agent == nil {
		return fmt.Errorf("register %q: %w", intent, ErrNilAgent)
	}
	intent = strings.TrimSpace(intent)
	if _, exists := r.byIntent[intent]; exists {
		return fmt.Errorf("register %q: %w", intent, ErrDuplicateIntent)
	}
	r.byIntent[intent] = agent
	r.ordered = append(r.ordered, registration{intent: intent, agent: agent})
	return nil
}

// Lookup returns the agent registered for intent.
func (r *Registry) Lookup(intent string) (Agent, bool) {
	a, ok := r.byIntent[intent]
	return a, ok
}

// Match returns the first agent, in registration order, whose CanHandle
// accepts text.
func (r *Registry) Match(text string) (string, Agent, bool) {
	for _, reg := range r.ordered {
		if reg.agent.CanHandle(text) {
			return reg.intent, reg.agent, true
		}
	}
	return "", nil, false
}

// Intents returns the registered labels with descriptions for the classifier prompt.
func (r *Registry) Intents() []ai.Intent {
	out := make([]ai.Intent, 0, len(r.ordered))
	for _, reg := range r.ordered {
		out = append(out, ai.Intent{Label: reg.intent, Description: IntentDescriptions[reg.intent]})
	}
	return out
}

// IntentDescriptions are the classifier prompt's explanations of each label.
var IntentDescriptions = map[string]string{
	IntentPriceTracking:  "track a product's price, set a target price, list or remove tracked products, or compare prices across shops (追蹤, 查價)",
	IntentFinance:        "record an expense, set a monthly budget, or ask about spending this or last month (記帳, 預算)",
	IntentGmail:          "connect or disconnect Gmail, scan mail for purchases, or ask about shopping statistics from mail (連接, 掃描)",
	IntentReview:         "ask whether a product is good or worth buying, or for reviews and pros and cons (評價, 值得買嗎)",
	IntentRecommendation: "ask for product suggestions, alternatives, or the best deal among things they watch (推薦)",
}

// DefaultIntents lists every label in the default registration order. It is
// used to build the classifier before the registry is filled.
func DefaultIntents() []ai.Intent {
	labels := []string{IntentGmail, IntentFinance, IntentPriceTracking, IntentReview, IntentRecommendation}
	out := make([]ai.Intent, 0, len(labels))
	for _, l := range labels {
		out = append(out, ai.Intent{Label: l, Description: IntentDescriptions[l]})
	}
	return out
}

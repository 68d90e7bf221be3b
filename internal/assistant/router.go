package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartshop-backend/pkg/ai"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/logger"
)

const HelpText = `Sorry, I didn't understand that. Here is what I can do:
• track <product> <target price> / list / remove <product> / price <product>
• spent <amount> <category> / budget <amount> / this month / budget status
• connect gmail / scan 30 / stats / status
• review <product> / recommend <product>
抱歉，我不太明白。可以試試：追蹤、查價、記帳、預算、連接 Gmail、掃描。`

// Router dispatches chat messages to agents. It performs no side effects of
// its own and always returns a reply.
type Router struct {
	registry   *Registry
	classifier ai.Classifier
	threshold  func() float64
	timeout    time.Duration
}

// NewRouter builds a router. classifier may be nil, in which case only the
// local CanHandle predicates are used.
func NewRouter(registry *Registry, classifier ai.Classifier, threshold func() float64, timeout time.Duration) *Router {
	return &Router{
		registry:   registry,
		classifier: classifier,
		threshold:  threshold,
		timeout:    timeout,
	}
}

// Route never panics: a panic anywhere in classification, matching or the
// agent becomes the generic failure reply.
func (r *Router) Route(ctx context.Context, userID, text string) (reply string) {
	log := logger.Component("router")
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("user_id", userID).Interface("panic", p).Msg("routing panicked")
			reply = apperror.UserMessage(fmt.Errorf("routing panicked: %v", p))
		}
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return HelpText
	}

	intent, agent := r.pick(ctx, text)
	if agent == nil {
		log.Debug().Str("user_id", userID).Msg("no agent matched")
		return HelpText
	}

	log.Debug().Str("user_id", userID).Str("intent", intent).Str("agent", agent.Name()).Msg("dispatching")
	reply, err := agent.Process(ctx, userID, text)
	if err != nil {
		ev := log.Warn()
		if errors.Is(err, apperror.ErrStoreUnavailable) {
			ev = log.Error()
		}
		ev.Err(err).Str("user_id", userID).Str("agent", agent.Name()).Msg("agent failed")
		return apperror.UserMessage(err)
	}
	return reply
}

func (r *Router) pick(ctx context.Context, text string) (string, Agent) {
	if r.classifier != nil {
		var res ai.IntentResult
		err := apperror.RetryOnTimeout(ctx, "intent classification", r.timeout, func(ctx context.Context) error {
			var err error
			res, err = r.classifier.ClassifyIntent(ctx, text)
			return err
		})
		if err != nil {
			lg := logger.Component("router")
			lg.Warn().Err(err).Msg("classification failed, using local rules")
		} else if res.Confidence > r.threshold() {
			if agent, ok := r.registry.Lookup(res.Label); ok {
				return res.Label, agent
			}
		}
	}

	intent, agent, ok := r.registry.Match(text)
	if !ok {
		return IntentUnknown, nil
	}
	return intent, agent
}

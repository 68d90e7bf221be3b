package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	pricedomain "smartshop-backend/internal/price/domain"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/logger"
	"smartshop-backend/pkg/money"
)

// Advisor produces short free-text buying advice. ai.Classifier satisfies it.
type Advisor interface {
	Advise(ctx context.Context, question string) (string, error)
}

// ListingSearcher finds the observation ids of a user's indexed listings
// closest to a query, nearest first.
type ListingSearcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]string, []float64, error)
}

// ObservationFinder loads price observations by id.
type ObservationFinder interface {
	FindObservations(ids []string) ([]*pricedomain.PriceObservation, error)
}

const reviewChecklist = `I can't reach the review service right now. Before buying, check:
1. Recent reviews from the last 3 months, not just the star average
2. Warranty length and who handles repairs in Taiwan
3. Return policy of the shop (7-day appreciation period)
4. Price history: track it with "track <product> <price>" and wait for a drop
5. Whether last year's model does the same job for less`

const recommendNoIndex = `I don't have enough price history to recommend yet.
Track a few products first (track <product> <target price>), and I will suggest the best deals I see.`

var (
	reviewKeywords    = []string{"review", "worth", "pros and cons", "is it good", "評價", "值得", "值不值", "好用", "心得", "開箱", "推不推"}
	recommendKeywords = []string{"recommend", "suggest", "alternative", "best deal", "推薦", "建議", "哪個好", "買哪"}
)

func containsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// stripKeywords removes the command words so the remainder can be used as a
// search query.
func stripKeywords(text string, words []string) string {
	out := strings.ToLower(text)
	for _, w := range words {
		out = strings.ReplaceAll(out, w, " ")
	}
	out = strings.Trim(out, " ?？!！,，.。")
	return strings.Join(strings.Fields(out), " ")
}

// ReviewAgent answers "is it worth buying" questions.
type ReviewAgent struct {
	advisor Advisor
	timeout time.Duration
}

// NewReviewAgent builds the agent; advisor may be nil.
func NewReviewAgent(advisor Advisor, timeout time.Duration) *ReviewAgent {
	return &ReviewAgent{advisor: advisor, timeout: timeout}
}

func (a *ReviewAgent) Name() string { return "review" }

func (a *ReviewAgent) CanHandle(text string) bool { return containsAny(text, reviewKeywords) }

func (a *ReviewAgent) Process(ctx context.Context, userID, text string) (string, error) {
	advice, err := advise(ctx, a.advisor, a.timeout, "Give a short buying assessment: "+text)
	if err != nil {
		lg := logger.Component("review")
		lg.Warn().Err(err).Str("user_id", userID).Msg("advice unavailable, using checklist")
		return reviewChecklist, nil
	}
	return advice, nil
}

// RecommendationAgent suggests the cheapest listings the user's tracked
// products have produced, with advice when available.
type RecommendationAgent struct {
	index        ListingSearcher
	observations ObservationFinder
	advisor      Advisor
	timeout      time.Duration
	limit        int
}

// NewRecommendationAgent builds the agent. index and advisor may be nil.
func NewRecommendationAgent(index ListingSearcher, observations ObservationFinder, advisor Advisor, timeout time.Duration) *RecommendationAgent {
	return &RecommendationAgent{
		index:        index,
		observations: observations,
		advisor:      advisor,
		timeout:      timeout,
		limit:        5,
	}
}

func (a *RecommendationAgent) Name() string { return "recommendation" }

func (a *RecommendationAgent) CanHandle(text string) bool { return containsAny(text, recommendKeywords) }

func (a *RecommendationAgent) Process(ctx context.Context, userID, text string) (string, error) {
	log := logger.Component("recommendation")
	query := stripKeywords(text, recommendKeywords)
	if query == "" {
		query = text
	}

	var sections []string
	if a.index != nil && a.observations != nil {
		matches, err := a.matches(ctx, userID, query)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("listing search failed")
		} else if len(matches) > 0 {
			sections = append(sections, formatMatches(matches))
		}
	}

	advice, err := advise(ctx, a.advisor, a.timeout, "Recommend what to buy and why: "+text)
	if err != nil {
		log.Debug().Err(err).Msg("advice unavailable")
	} else {
		sections = append(sections, advice)
	}

	if len(sections) == 0 {
		return recommendNoIndex, nil
	}
	return strings.Join(sections, "\n\n"), nil
}

func (a *RecommendationAgent) matches(ctx context.Context, userID, query string) ([]*pricedomain.PriceObservation, error) {
	ids, _, err := a.index.Search(ctx, userID, query, a.limit*2)
	if err != nil {
		return nil, apperror.Classify("listing search", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := a.observations.FindObservations(ids)
	if err != nil {
		return nil, apperror.Store(err)
	}

	// Keep one listing per title, cheapest first.
	sort.SliceStable(found, func(i, j int) bool { return found[i].Price < found[j].Price })
	seen := make(map[string]bool, len(found))
	out := make([]*pricedomain.PriceObservation, 0, a.limit)
	for _, o := range found {
		key := strings.ToLower(o.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
		if len(out) == a.limit {
			break
		}
	}
	return out, nil
}

func formatMatches(matches []*pricedomain.PriceObservation) string {
	var b strings.Builder
	b.WriteString("Best deals from products you track:")
	for i, o := range matches {
		fmt.Fprintf(&b, "\n%d. %s %s (%s)", i+1, money.FormatTWD(o.Price), o.Title, o.Platform)
		if o.URL != "" {
			fmt.Fprintf(&b, "\n   %s", o.URL)
		}
	}
	return b.String()
}

func advise(ctx context.Context, advisor Advisor, timeout time.Duration, question string) (string, error) {
	if advisor == nil {
		return "", apperror.Upstream("advice", fmt.Errorf("no advisor configured"))
	}
	var advice string
	err := apperror.RetryOnTimeout(ctx, "advice", timeout, func(ctx context.Context) error {
		var err error
		advice, err = advisor.Advise(ctx, question)
		return err
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(advice) == "" {
		return "", apperror.Upstream("advice", fmt.Errorf("empty advice"))
	}
	return advice, nil
}

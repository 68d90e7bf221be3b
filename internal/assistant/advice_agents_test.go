package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	pricedomain "smartshop-backend/internal/price/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdvisor struct {
	reply     string
	err       error
	questions []string
}

func (s *stubAdvisor) Advise(ctx context.Context, question string) (string, error) {
	s.questions = append(s.questions, question)
	return s.reply, s.err
}

type stubIndex struct {
	ids   []string
	err   error
	query string
}

func (s *stubIndex) Search(ctx context.Context, userID, query string, limit int) ([]string, []float64, error) {
	s.query = query
	return s.ids, make([]float64, len(s.ids)), s.err
}

type stubObservations map[string]*pricedomain.PriceObservation

func (s stubObservations) FindObservations(ids []string) ([]*pricedomain.PriceObservation, error) {
	var out []*pricedomain.PriceObservation
	for _, id := range ids {
		if o, ok := s[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func TestReviewAgentUsesAdvice(t *testing.T) {
	t.Parallel()

	adv := &stubAdvisor{reply: "Solid battery, wait for 11.11."}
	a := NewReviewAgent(adv, time.Second)
	assert.True(t, a.CanHandle("Is the Kindle worth it?"))
	assert.True(t, a.CanHandle("AirPods 值得買嗎"))

	reply, err := a.Process(context.Background(), "u1", "Is the Kindle worth it?")
	require.NoError(t, err)
	assert.Equal(t, "Solid battery, wait for 11.11.", reply)
	require.Len(t, adv.questions, 1)
	assert.Contains(t, adv.questions[0], "Kindle")
}

func TestReviewAgentFallsBackToChecklist(t *testing.T) {
	t.Parallel()

	reply, err := NewReviewAgent(&stubAdvisor{err: errors.New("quota")}, time.Second).Process(context.Background(), "u1", "review switch")
	require.NoError(t, err)
	assert.Equal(t, reviewChecklist, reply)

	reply, err = NewReviewAgent(nil, time.Second).Process(context.Background(), "u1", "review switch")
	require.NoError(t, err)
	assert.Equal(t, reviewChecklist, reply)
}

func TestRecommendationAgentListsCheapestMatches(t *testing.T) {
	t.Parallel()

	idx := &stubIndex{ids: []string{"o1", "o2", "o3"}}
	obs := stubObservations{
		"o1": {ID: "o1", Title: "Sony WH-1000XM5", Platform: "momo", Price: 9990, URL: "https://m.example/1"},
		"o2": {ID: "o2", Title: "Sony WH-1000XM4", Platform: "pchome", Price: 7490},
		"o3": {ID: "o3", Title: "sony wh-1000xm5", Platform: "pchome", Price: 10490},
	}
	a := NewRecommendationAgent(idx, obs, nil, time.Second)
	assert.True(t, a.CanHandle("推薦 降噪耳機"))

	reply, err := a.Process(context.Background(), "u1", "recommend noise cancelling headphones")
	require.NoError(t, err)
	assert.Equal(t, "noise cancelling headphones", idx.query)
	assert.Equal(t, "Best deals from products you track:\n1. NT$7,490 Sony WH-1000XM4 (pchome)\n2. NT$9,990 Sony WH-1000XM5 (momo)\n   https://m.example/1", reply)
}

func TestRecommendationAgentAppendsAdvice(t *testing.T) {
	t.Parallel()

	idx := &stubIndex{ids: []string{"o1"}}
	obs := stubObservations{"o1": {ID: "o1", Title: "Kindle Paperwhite", Platform: "momo", Price: 4290}}
	a := NewRecommendationAgent(idx, obs, &stubAdvisor{reply: "Paperwhite is the sweet spot."}, time.Second)

	reply, err := a.Process(context.Background(), "u1", "recommend an e-reader")
	require.NoError(t, err)
	assert.Contains(t, reply, "1. NT$4,290 Kindle Paperwhite (momo)")
	assert.Contains(t, reply, "\n\nPaperwhite is the sweet spot.")
}

func TestRecommendationAgentWithoutIndexOrAdvice(t *testing.T) {
	t.Parallel()

	reply, err := NewRecommendationAgent(nil, nil, &stubAdvisor{err: errors.New("down")}, time.Second).
		Process(context.Background(), "u1", "recommend a phone")
	require.NoError(t, err)
	assert.Equal(t, recommendNoIndex, reply)

	reply, err = NewRecommendationAgent(&stubIndex{err: errors.New("chroma down")}, stubObservations{}, &stubAdvisor{reply: "Pixel 8a."}, time.Second).
		Process(context.Background(), "u1", "recommend a phone")
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8a.", reply)
}

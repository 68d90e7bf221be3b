package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	priceusecase "smartshop-backend/internal/price/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct{ calls atomic.Int32 }

func (f *fakeRefresher) RefreshAll(ctx context.Context) (priceusecase.RefreshSummary, error) {
	f.calls.Add(1)
	return priceusecase.RefreshSummary{Products: 2, Updated: 2}, nil
}

type fakeRenewer struct{ calls atomic.Int32 }

func (f *fakeRenewer) RenewWatches(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return 1, nil
}

func TestNewSchedulerRegistersJobs(t *testing.T) {
	s, err := NewScheduler(Config{PriceRefreshSchedule: "@every 6h", WatchRenewSchedule: "@daily"}, &fakeRefresher{}, &fakeRenewer{})
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	s, err = NewScheduler(Config{PriceRefreshSchedule: "@every 6h"}, &fakeRefresher{}, &fakeRenewer{})
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(Config{PriceRefreshSchedule: "every six hours"}, &fakeRefresher{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price-refresh")
}

func TestJobsRunThroughScheduler(t *testing.T) {
	refresher := &fakeRefresher{}
	renewer := &fakeRenewer{}
	s, err := NewScheduler(Config{PriceRefreshSchedule: "@every 1s", WatchRenewSchedule: "@every 1s"}, refresher, renewer)
	require.NoError(t, err)

	s.Start()
	defer s.Stop()
	require.Eventually(t, func() bool {
		return refresher.calls.Load() > 0 && renewer.calls.Load() > 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestJobDoesNotOverlap(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	j := &job{
		name:    "slow",
		timeout: time.Minute,
		parent:  context.Background(),
		fn: func(ctx context.Context) error {
			runs.Add(1)
			<-release
			return nil
		},
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		j.Run()
	}()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// A tick while the first run is active is skipped.
	j.Run()
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	wg.Wait()

	j.fn = func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("failed")
	}
	j.Run()
	assert.Equal(t, int32(2), runs.Load())
}

func TestJobRecoversPanic(t *testing.T) {
	j := &job{name: "boom", timeout: time.Second, parent: context.Background(), fn: func(ctx context.Context) error {
		panic("boom")
	}}
	assert.NotPanics(t, j.Run)
	assert.False(t, j.running.Load())
}

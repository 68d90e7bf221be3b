package repository

import (
	"sync"
	"testing"
	"time"

	"smartshop-backend/internal/price/domain"
	"smartshop-backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (TrackingRepository, *gorm.DB) {
	db := database.NewTestDB(t, &domain.TrackedProduct{}, &domain.PriceObservation{})
	return NewGormTrackingRepository(db), db
}

func TestUpsertKeepsOneRowWithLatestTarget(t *testing.T) {
	repo, db := newTestRepo(t)

	first, err := repo.Upsert("u1", "iPhone 15", 30000)
	require.NoError(t, err)
	_, err = repo.Deactivate(first.ID)
	require.NoError(t, err)
	_, err = repo.MarkNotified(first.ID)
	require.NoError(t, err)

	second, err := repo.Upsert("u1", "iPhone 15", 28000)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 28000.0, second.TargetPrice)
	assert.True(t, second.Active)
	assert.False(t, second.NotificationSent)

	var count int64
	require.NoError(t, db.Model(&domain.TrackedProduct{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertKeyIgnoresCase(t *testing.T) {
	repo, db := newTestRepo(t)

	first, err := repo.Upsert("u1", "iPhone 15", 30000)
	require.NoError(t, err)
	second, err := repo.Upsert("u1", "iphone 15", 28000)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "iphone 15", second.ProductName)
	assert.Equal(t, 28000.0, second.TargetPrice)

	var count int64
	require.NoError(t, db.Model(&domain.TrackedProduct{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConcurrentUpsertsNeverDuplicate(t *testing.T) {
	repo, db := newTestRepo(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Upsert("u1", "Switch OLED", float64(9000+i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var count int64
	require.NoError(t, db.Model(&domain.TrackedProduct{}).Where("user_id = ?", "u1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestNotificationFlagIsCompareAndSet(t *testing.T) {
	repo, _ := newTestRepo(t)
	p, err := repo.Upsert("u1", "AirPods Pro", 6000)
	require.NoError(t, err)

	changed, err := repo.MarkNotified(p.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkNotified(p.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.ResetNotified(p.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.ResetNotified(p.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRecordRound(t *testing.T) {
	repo, _ := newTestRepo(t)
	p, err := repo.Upsert("u1", "dyson v12", 15000)
	require.NoError(t, err)

	now := time.Now()
	err = repo.RecordRound(domain.RoundUpdate{
		ProductID: p.ID,
		Observations: []*domain.PriceObservation{
			{ID: "o1", TrackedProductID: p.ID, Platform: "pchome", Price: 16900, ObservedAt: now},
			{ID: "o2", TrackedProductID: p.ID, Platform: "momo", Price: 15990, ObservedAt: now},
		},
		Lowest:        &domain.LowestPrice{Price: 15990, Platform: "momo", URL: "https://m/1"},
		CanonicalName: "Dyson V12 Detect Slim",
	})
	require.NoError(t, err)

	// canonical name is only written once
	require.NoError(t, repo.RecordRound(domain.RoundUpdate{ProductID: p.ID, CanonicalName: "other"}))

	got, err := repo.FindByID(p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentLowestPrice)
	assert.Equal(t, 15990.0, *got.CurrentLowestPrice)
	assert.Equal(t, "momo", got.LowestPricePlatform)
	assert.Equal(t, "Dyson V12 Detect Slim", got.CanonicalName)

	obs, err := repo.FindObservations([]string{"o2", "missing"})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "momo", obs[0].Platform)
}

func TestListAndDeactivate(t *testing.T) {
	repo, _ := newTestRepo(t)
	a, err := repo.Upsert("u1", "a", 1)
	require.NoError(t, err)
	_, err = repo.Upsert("u1", "b", 1)
	require.NoError(t, err)
	_, err = repo.Upsert("u2", "c", 1)
	require.NoError(t, err)

	ok, err := repo.Deactivate(a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := repo.ListActiveByUser("u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ProductName)

	n, err := repo.DeactivateAll("u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := repo.ListAllActive()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "u2", all[0].UserID)
}

package usecase

import (
	"context"

	"smartshop-backend/internal/price/domain"
	"smartshop-backend/pkg/chroma"
	"smartshop-backend/pkg/platform"
)

// PriceUsecase is the price tracker engine.
type PriceUsecase interface {
	StartTracking(ctx context.Context, userID, productName string, targetPrice float64) (*domain.TrackedProduct, error)
	AggregatePrices(ctx context.Context, product *domain.TrackedProduct) (*domain.TrackedProduct, error)
	EvaluateThreshold(ctx context.Context, product *domain.TrackedProduct) (bool, error)
	ListTracking(ctx context.Context, userID string) ([]*domain.TrackedProduct, error)
	StopTracking(ctx context.Context, userID, productName string) (*domain.TrackedProduct, error)
	StopAll(ctx context.Context, userID string) (int64, error)
	QueryPrices(ctx context.Context, productName string) ([]platform.Listing, error)
	RefreshAll(ctx context.Context) (RefreshSummary, error)
}

// Notifier delivers threshold-crossing events to the user.
type Notifier interface {
	NotifyPriceDrop(ctx context.Context, event domain.PriceDropEvent) error
}

// ListingIndexer receives observed listings for semantic search.
type ListingIndexer interface {
	Upsert(ctx context.Context, doc chroma.ListingDocument) error
}

// RefreshSummary reports one scheduled refresh over all active entries.
type RefreshSummary struct {
	Products int
	Updated  int
	Failed   int
	Notified int
}

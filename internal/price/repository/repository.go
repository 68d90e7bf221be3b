package repository

import "smartshop-backend/internal/price/domain"

// TrackingRepository defines the interface for tracked product data access.
// Mutual exclusion lives in the store: the upsert is keyed on the unique
// (user_id, name_key) index and the notification flag only moves through
// conditional updates.
type TrackingRepository interface {
	Upsert(userID, productName string, targetPrice float64) (*domain.TrackedProduct, error)
	FindByID(id string) (*domain.TrackedProduct, error)
	ListActiveByUser(userID string) ([]*domain.TrackedProduct, error)
	ListAllActive() ([]*domain.TrackedProduct, error)
	Deactivate(id string) (bool, error)
	DeactivateAll(userID string) (int64, error)

	// RecordRound appends the round's observations and applies its price
	// update in one transaction.
	RecordRound(update domain.RoundUpdate) error

	// MarkNotified flips notification_sent false -> true and reports whether
	// this call made the change.
	MarkNotified(id string) (bool, error)
	// ResetNotified flips notification_sent true -> false.
	ResetNotified(id string) (bool, error)

	FindObservations(ids []string) ([]*domain.PriceObservation, error)
}

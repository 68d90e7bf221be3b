package repository

import (
	"time"

	financedomain "smartshop-backend/internal/finance/domain"
	"smartshop-backend/internal/mail/domain"
)

// IngestionRepository holds the dedup ledger, shopping records and the
// pending candidates of the Gmail pipeline.
type IngestionRepository interface {
	IsProcessed(userID, messageID string) (bool, error)
	// MarkDiscarded records a rejected candidate as processed. It returns
	// false when the message was already processed.
	MarkDiscarded(userID, messageID string) (bool, error)
	// CommitExtraction writes the shopping record, its derived expense and the
	// processed mark in one transaction. It returns false, writing nothing,
	// when the message was already committed.
	CommitExtraction(record *domain.ShoppingRecord, expense *financedomain.Expense) (bool, error)

	AddPending(userID, messageID, reason string) error
	// ListPending returns message ids still below maxAttempts, oldest first.
	ListPending(userID string, maxAttempts, limit int) ([]string, error)

	ShoppingStats(userID string, since time.Time, topVendors int) (*domain.ShoppingStats, error)
}

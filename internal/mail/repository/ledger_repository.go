package repository

import (
	"time"

	financedomain "smartshop-backend/internal/finance/domain"
	"smartshop-backend/internal/mail/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ingestionRepository struct {
	db *gorm.DB
}

func NewIngestionRepository(db *gorm.DB) IngestionRepository {
	return &ingestionRepository{db: db}
}

var userMessageColumns = []clause.Column{{Name: "user_id"}, {Name: "message_id"}}

func (r *ingestionRepository) IsProcessed(userID, messageID string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.ProcessedMessage{}).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Count(&count).Error
	return count > 0, err
}

func markProcessed(tx *gorm.DB, userID, messageID, outcome string) (bool, error) {
	res := tx.Clauses(clause.OnConflict{Columns: userMessageColumns, DoNothing: true}).
		Create(&domain.ProcessedMessage{
			ID:          uuid.New().String(),
			UserID:      userID,
			MessageID:   messageID,
			Outcome:     outcome,
			ProcessedAt: time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

func clearPending(tx *gorm.DB, userID, messageID string) error {
	return tx.Where("user_id = ? AND message_id = ?", userID, messageID).Delete(&domain.PendingMessage{}).Error
}

func (r *ingestionRepository) MarkDiscarded(userID, messageID string) (bool, error) {
	inserted := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = markProcessed(tx, userID, messageID, domain.OutcomeDiscarded)
		if err != nil {
			return err
		}
		return clearPending(tx, userID, messageID)
	})
	return inserted, err
}

func (r *ingestionRepository) CommitExtraction(record *domain.ShoppingRecord, expense *financedomain.Expense) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	committed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// The unique (user_id, message_id) index is the idempotency signal.
		res := tx.Clauses(clause.OnConflict{Columns: userMessageColumns, DoNothing: true}).Create(record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if _, err := markProcessed(tx, record.UserID, record.MessageID, domain.OutcomeCommitted); err != nil {
				return err
			}
			return clearPending(tx, record.UserID, record.MessageID)
		}

		if expense.ID == "" {
			expense.ID = uuid.New().String()
		}
		if expense.CreatedAt.IsZero() {
			expense.CreatedAt = record.CreatedAt
		}
		expense.ShoppingRecordID = &record.ID
		if err := tx.Create(expense).Error; err != nil {
			return err
		}
		if _, err := markProcessed(tx, record.UserID, record.MessageID, domain.OutcomeCommitted); err != nil {
			return err
		}
		committed = true
		return clearPending(tx, record.UserID, record.MessageID)
	})
	if err != nil {
		return false, err
	}
	return committed, nil
}

func (r *ingestionRepository) AddPending(userID, messageID, reason string) error {
	now := time.Now()
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: userMessageColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"attempts":   gorm.Expr("pending_messages.attempts + 1"),
			"last_error": reason,
			"updated_at": now,
		}),
	}).Create(&domain.PendingMessage{
		ID:        uuid.New().String(),
		UserID:    userID,
		MessageID: messageID,
		Attempts:  1,
		LastError: reason,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
}

func (r *ingestionRepository) ListPending(userID string, maxAttempts, limit int) ([]string, error) {
	var ids []string
	query := r.db.Model(&domain.PendingMessage{}).
		Where("user_id = ? AND attempts < ?", userID, maxAttempts).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Pluck("message_id", &ids).Error
	return ids, err
}

func (r *ingestionRepository) ShoppingStats(userID string, since time.Time, topVendors int) (*domain.ShoppingStats, error) {
	stats := &domain.ShoppingStats{TopVendors: []domain.VendorTotal{}}

	var totals struct {
		Count int64
		Total float64
	}
	err := r.db.Model(&domain.ShoppingRecord{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND mail_date >= ?", userID, since).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	stats.Count = totals.Count
	stats.Total = totals.Total

	err = r.db.Model(&domain.ShoppingRecord{}).
		Select("vendor, SUM(amount) AS amount, COUNT(*) AS count").
		Where("user_id = ? AND mail_date >= ?", userID, since).
		Group("vendor").
		Order("amount DESC, vendor ASC").
		Limit(topVendors).
		Scan(&stats.TopVendors).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

package repository

import (
	"errors"
	"time"

	"smartshop-backend/internal/price/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormTrackingRepository struct {
	db *gorm.DB
}

func NewGormTrackingRepository(db *gorm.DB) TrackingRepository {
	return &gormTrackingRepository{db: db}
}

func (r *gormTrackingRepository) Upsert(userID, productName string, targetPrice float64) (*domain.TrackedProduct, error) {
	now := time.Now()
	product := &domain.TrackedProduct{
		ID:          uuid.New().String(),
		UserID:      userID,
		ProductName: productName,
		NameKey:     domain.NameKey(productName),
		TargetPrice: targetPrice,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "name_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"product_name":      productName,
			"target_price":      targetPrice,
			"active":            true,
			"notification_sent": false,
			"updated_at":        now,
		}),
	}).Create(product).Error
	if err != nil {
		return nil, err
	}

	var stored domain.TrackedProduct
	if err := r.db.Where("user_id = ? AND name_key = ?", userID, product.NameKey).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *gormTrackingRepository) FindByID(id string) (*domain.TrackedProduct, error) {
	var product domain.TrackedProduct
	if err := r.db.Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *gormTrackingRepository) ListActiveByUser(userID string) ([]*domain.TrackedProduct, error) {
	var products []*domain.TrackedProduct
	err := r.db.Where("user_id = ? AND active = ?", userID, true).
		Order("created_at DESC").
		Find(&products).Error
	return products, err
}

func (r *gormTrackingRepository) ListAllActive() ([]*domain.TrackedProduct, error) {
	var products []*domain.TrackedProduct
	err := r.db.Where("active = ?", true).Order("created_at ASC").Find(&products).Error
	return products, err
}

func (r *gormTrackingRepository) Deactivate(id string) (bool, error) {
	res := r.db.Model(&domain.TrackedProduct{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()})
	return res.RowsAffected == 1, res.Error
}

func (r *gormTrackingRepository) DeactivateAll(userID string) (int64, error) {
	res := r.db.Model(&domain.TrackedProduct{}).
		Where("user_id = ? AND active = ?", userID, true).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *gormTrackingRepository) RecordRound(update domain.RoundUpdate) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if len(update.Observations) > 0 {
			if err := tx.Create(update.Observations).Error; err != nil {
				return err
			}
		}

		if update.Lowest != nil {
			if err := tx.Model(&domain.TrackedProduct{}).
				Where("id = ?", update.ProductID).
				Updates(map[string]interface{}{
					"current_lowest_price":  update.Lowest.Price,
					"lowest_price_platform": update.Lowest.Platform,
					"lowest_price_url":      update.Lowest.URL,
					"updated_at":            time.Now(),
				}).Error; err != nil {
				return err
			}
		}

		if update.CanonicalName != "" {
			if err := tx.Model(&domain.TrackedProduct{}).
				Where("id = ? AND (canonical_name = '' OR canonical_name IS NULL)", update.ProductID).
				Update("canonical_name", update.CanonicalName).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *gormTrackingRepository) MarkNotified(id string) (bool, error) {
	res := r.db.Model(&domain.TrackedProduct{}).
		Where("id = ? AND notification_sent = ?", id, false).
		Update("notification_sent", true)
	return res.RowsAffected == 1, res.Error
}

func (r *gormTrackingRepository) ResetNotified(id string) (bool, error) {
	res := r.db.Model(&domain.TrackedProduct{}).
		Where("id = ? AND notification_sent = ?", id, true).
		Update("notification_sent", false)
	return res.RowsAffected == 1, res.Error
}

func (r *gormTrackingRepository) FindObservations(ids []string) ([]*domain.PriceObservation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var observations []*domain.PriceObservation
	err := r.db.Where("id IN ?", ids).Find(&observations).Error
	return observations, err
}

package repository

import (
	"time"

	authdomain "smartshop-backend/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type fcmTokenRepository struct {
	db *gorm.DB
}

func NewFCMTokenRepository(db *gorm.DB) FCMTokenRepository {
	return &fcmTokenRepository{db: db}
}

// SaveToken registers a device; a token that moves to another user follows it.
func (r *fcmTokenRepository) SaveToken(userID, token, platform string) error {
	now := time.Now()
	fcmToken := &authdomain.FCMToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     token,
		Platform:  platform,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
	}).Create(fcmToken).Error
}

func (r *fcmTokenRepository) GetTokensByUserID(userID string) ([]authdomain.FCMToken, error) {
	var tokens []authdomain.FCMToken
	if err := r.db.Where("user_id = ?", userID).Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteTokens removes tokens FCM reported as invalid.
func (r *fcmTokenRepository) DeleteTokens(tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.Where("token IN ?", tokens).Delete(&authdomain.FCMToken{}).Error
}

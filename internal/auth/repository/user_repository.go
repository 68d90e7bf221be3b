package repository

import (
	"errors"
	"time"

	authdomain "smartshop-backend/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new instance of userRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) FindOrCreateByExternalID(externalID, displayName string) (*authdomain.User, error) {
	now := time.Now()
	candidate := &authdomain.User{
		ID:                   uuid.New().String(),
		ExternalID:           externalID,
		DisplayName:          displayName,
		NotifyThresholdRatio: authdomain.DefaultNotifyThresholdRatio,
		NotificationsEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	// INSERT ... ON CONFLICT (external_id) DO NOTHING, then read whichever row won.
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(candidate).Error; err != nil {
		return nil, err
	}

	var user authdomain.User
	if err := r.db.Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByID(id string) (*authdomain.User, error) {
	var user authdomain.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) TouchActivity(id string, at time.Time) error {
	return r.db.Model(&authdomain.User{}).
		Where("id = ?", id).
		Update("last_active_at", at).Error
}

func (r *userRepository) UpdateSettings(id string, settings authdomain.UserSettings) error {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if settings.NotifyThresholdRatio != nil {
		updates["notify_threshold_ratio"] = *settings.NotifyThresholdRatio
	}
	if settings.NotificationsEnabled != nil {
		updates["notifications_enabled"] = *settings.NotificationsEnabled
	}
	return r.db.Model(&authdomain.User{}).Where("id = ?", id).Updates(updates).Error
}

func (r *userRepository) SetTelegramChatID(id string, chatID int64) error {
	return r.db.Model(&authdomain.User{}).
		Where("id = ? AND telegram_chat_id <> ?", id, chatID).
		Updates(map[string]interface{}{
			"telegram_chat_id": chatID,
			"updated_at":       time.Now(),
		}).Error
}

package repository

import (
	"time"

	authdomain "smartshop-backend/internal/auth/domain"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// FindOrCreateByExternalID is race-free: concurrent first messages from the
	// same external user resolve to the same row.
	FindOrCreateByExternalID(externalID, displayName string) (*authdomain.User, error)
	FindByID(id string) (*authdomain.User, error)
	TouchActivity(id string, at time.Time) error
	UpdateSettings(id string, settings authdomain.UserSettings) error
	SetTelegramChatID(id string, chatID int64) error
}

// FCMTokenRepository defines the interface for FCM token operations
type FCMTokenRepository interface {
	SaveToken(userID, token, platform string) error
	GetTokensByUserID(userID string) ([]authdomain.FCMToken, error)
	DeleteTokens(tokens []string) error
}

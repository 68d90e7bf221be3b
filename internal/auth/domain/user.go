package domain

import "time"

const DefaultNotifyThresholdRatio = 0.1

// User is created on the first observed interaction from a chat transport and
// never deleted. ExternalID is transport-scoped, e.g. "telegram:123".
type User struct {
	ID                   string     `json:"id" gorm:"primaryKey"`
	ExternalID           string     `json:"external_id" gorm:"uniqueIndex;not null"`
	DisplayName          string     `json:"display_name"`
	NotifyThresholdRatio float64    `json:"notify_threshold_ratio" gorm:"not null;default:0.1"`
	NotificationsEnabled bool       `json:"notifications_enabled" gorm:"not null;default:true"`
	TelegramChatID       int64      `json:"-" gorm:"index"`
	LastActiveAt         *time.Time `json:"last_active_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// UserSettings is a partial preference update; nil fields are left as is.
type UserSettings struct {
	NotifyThresholdRatio *float64 `json:"notify_threshold_ratio"`
	NotificationsEnabled *bool    `json:"notifications_enabled"`
}

package domain

import "time"

// FCMToken is a device registered for price-drop pushes.
type FCMToken struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	Token     string    `json:"-" gorm:"uniqueIndex;not null"`
	Platform  string    `json:"platform"` // android, ios, web
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package domain

import (
	"strings"
	"time"
)

// TrackedProduct is one user's watch on a product name. (UserID, NameKey) is
// unique; a repeated track reactivates the row instead of duplicating it.
// ProductName keeps the spelling of the latest track for display.
type TrackedProduct struct {
	ID                  string    `json:"id" gorm:"primaryKey"`
	UserID              string    `json:"user_id" gorm:"not null;uniqueIndex:idx_tracked_user_product"`
	ProductName         string    `json:"product_name" gorm:"not null"`
	NameKey             string    `json:"-" gorm:"not null;uniqueIndex:idx_tracked_user_product"`
	CanonicalName       string    `json:"canonical_name"`
	TargetPrice         float64   `json:"target_price" gorm:"not null"`
	CurrentLowestPrice  *float64  `json:"current_lowest_price"`
	LowestPricePlatform string    `json:"lowest_price_platform"`
	LowestPriceURL      string    `json:"lowest_price_url"`
	Active              bool      `json:"active" gorm:"not null;default:true;index"`
	NotificationSent    bool      `json:"notification_sent" gorm:"not null;default:false"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PriceObservation is append-only price history.
type PriceObservation struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	TrackedProductID string    `json:"tracked_product_id" gorm:"not null;index"`
	Platform         string    `json:"platform" gorm:"not null"`
	Vendor           string    `json:"vendor"`
	Title            string    `json:"title"`
	Price            float64   `json:"price" gorm:"not null"`
	URL              string    `json:"url"`
	ObservedAt       time.Time `json:"observed_at" gorm:"not null;index"`
}

// LowestPrice is the winning listing of an aggregation round.
type LowestPrice struct {
	Price    float64
	Platform string
	URL      string
}

// RoundUpdate is everything one aggregation round writes, committed together.
type RoundUpdate struct {
	ProductID     string
	Observations  []*PriceObservation
	Lowest        *LowestPrice // nil when the minimum did not change
	CanonicalName string       // applied only while the stored one is empty
}

// PriceDropEvent is emitted once per threshold crossing.
type PriceDropEvent struct {
	UserID      string
	ProductID   string
	ProductName string
	TargetPrice float64
	Price       float64
	Platform    string
	URL         string
}

// NormalizeName trims and collapses inner whitespace so that "iPhone  15 "
// and "iPhone 15" key the same entry.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// NameKey is the case-folded identity of a product name: "iPhone 15" and
// "IPHONE  15" are the same tracking entry.
func NameKey(name string) string {
	return strings.ToLower(NormalizeName(name))
}

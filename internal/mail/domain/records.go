package domain

import "time"

// Outcome of a processed candidate.
const (
	OutcomeCommitted = "committed"
	OutcomeDiscarded = "discarded"
)

// ProcessedMessage is the dedup ledger. (UserID, MessageID) is unique and is
// checked before any fetch or classification.
type ProcessedMessage struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"not null;uniqueIndex:idx_processed_user_message"`
	MessageID   string    `json:"message_id" gorm:"not null;uniqueIndex:idx_processed_user_message"`
	Outcome     string    `json:"outcome" gorm:"not null"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ShoppingRecord is a purchase read from a mail. (UserID, MessageID) is unique
// so a replayed commit collides instead of duplicating.
type ShoppingRecord struct {
	ID                   string    `json:"id" gorm:"primaryKey"`
	UserID               string    `json:"user_id" gorm:"not null;uniqueIndex:idx_shopping_user_message;index:idx_shopping_user_date"`
	MessageID            string    `json:"message_id" gorm:"not null;uniqueIndex:idx_shopping_user_message"`
	Vendor               string    `json:"vendor"`
	Amount               float64   `json:"amount" gorm:"not null"`
	Category             string    `json:"category"`
	MailDate             time.Time `json:"mail_date" gorm:"index:idx_shopping_user_date"`
	Subject              string    `json:"subject"`
	Snippet              string    `json:"snippet"`
	Confidence           float64   `json:"confidence"`
	ClassificationSource string    `json:"classification_source"`
	CreatedAt            time.Time `json:"created_at"`
}

// PendingMessage is a candidate whose fetch or classification failed. It is
// offered again on later passes until it is processed.
type PendingMessage struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"not null;uniqueIndex:idx_pending_user_message"`
	MessageID string    `json:"message_id" gorm:"not null;uniqueIndex:idx_pending_user_message"`
	Attempts  int       `json:"attempts" gorm:"not null;default:0"`
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncMode selects how a pass finds candidates.
type SyncMode string

const (
	// ModeCheckpoint lists mailbox history since the stored history id.
	ModeCheckpoint SyncMode = "checkpoint"
	// ModeSearch runs the shopping subject query over the last N days.
	ModeSearch SyncMode = "search"
)

// SyncResult counts what one sync request did, summed over resync passes.
type SyncResult struct {
	Mode            SyncMode `json:"mode"`
	Passes          int      `json:"passes"`
	Candidates      int      `json:"candidates"`
	Committed       int      `json:"committed"`
	Discarded       int      `json:"discarded"`
	Duplicates      int      `json:"duplicates"`
	Failed          int      `json:"failed"`
	CommittedAmount float64  `json:"committed_amount"`
}

// VendorTotal is one row of the shopping statistics.
type VendorTotal struct {
	Vendor string  `json:"vendor"`
	Amount float64 `json:"amount"`
	Count  int64   `json:"count"`
}

// ShoppingStats summarises shopping records over a window.
type ShoppingStats struct {
	Days       int           `json:"days"`
	Count      int64         `json:"count"`
	Total      float64       `json:"total"`
	TopVendors []VendorTotal `json:"top_vendors"`
}

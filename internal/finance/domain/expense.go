package domain

import (
	"strings"
	"time"
)

// ExpenseSource tags where an expense came from.
type ExpenseSource string

const (
	SourceManual  ExpenseSource = "manual"
	SourceDerived ExpenseSource = "derived"
)

const DefaultCategory = "other"

// Expense is one ledger entry. OccurredAt is when the money was spent, which
// for mail-derived entries is the mail date rather than the insert time.
type Expense struct {
	ID               string        `json:"id" gorm:"primaryKey"`
	UserID           string        `json:"user_id" gorm:"not null;index:idx_expense_user_occurred"`
	Amount           float64       `json:"amount" gorm:"not null"`
	Category         string        `json:"category" gorm:"not null;default:other"`
	Description      string        `json:"description"`
	Source           ExpenseSource `json:"source" gorm:"not null;default:manual"`
	ShoppingRecordID *string       `json:"shopping_record_id,omitempty" gorm:"uniqueIndex"`
	OccurredAt       time.Time     `json:"occurred_at" gorm:"not null;index:idx_expense_user_occurred"`
	CreatedAt        time.Time     `json:"created_at"`
}

// Budget is the single current monthly budget of a user.
type Budget struct {
	UserID    string    `json:"user_id" gorm:"primaryKey"`
	Amount    float64   `json:"amount" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryTotal is one row of a monthly summary.
type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Count    int64   `json:"count"`
}

// MonthlySummary groups a month's expenses by category, largest first.
type MonthlySummary struct {
	Month      string          `json:"month"` // YYYY-MM
	Total      float64         `json:"total"`
	Count      int64           `json:"count"`
	Categories []CategoryTotal `json:"categories"`
}

// BudgetStatus compares the current month's spending with the budget.
// HasBudget is false when the user never set one; the other fields except
// Spent are zero then.
type BudgetStatus struct {
	Month      string  `json:"month"`
	HasBudget  bool    `json:"has_budget"`
	Budget     float64 `json:"budget"`
	Spent      float64 `json:"spent"`
	Remaining  float64 `json:"remaining"`
	Percentage float64 `json:"percentage"`
	Warning    bool    `json:"warning"`
	Over       bool    `json:"over"`
}

// WarningPercentage is the share of the budget above which replies warn.
const WarningPercentage = 80.0

// MonthBounds returns [first day 00:00, first day of next month) for the
// month containing t, in t's location.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// NormalizeCategory lowercases and trims; empty becomes "other".
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return DefaultCategory
	}
	return c
}

var categoryHints = []struct {
	category string
	words    []string
}{
	{"food", []string{"food", "lunch", "dinner", "breakfast", "coffee", "tea", "meal", "snack", "餐", "飯", "吃", "咖啡", "飲料", "便當", "麵"}},
	{"transport", []string{"taxi", "uber", "bus", "mrt", "train", "gas", "fuel", "parking", "transport", "捷運", "公車", "計程車", "高鐵", "火車", "加油", "停車", "車資"}},
	{"bills", []string{"bill", "rent", "electric", "water", "phone", "internet", "帳單", "房租", "電費", "水費", "電話費", "網路"}},
	{"health", []string{"doctor", "clinic", "medicine", "pharmacy", "health", "醫", "藥", "診所"}},
	{"entertainment", []string{"movie", "game", "concert", "netflix", "spotify", "電影", "遊戲", "演唱會"}},
	{"shopping", []string{"shopping", "clothes", "shoes", "amazon", "momo", "pchome", "shopee", "購物", "衣服", "鞋"}},
}

// GuessCategory picks a category from free text for manual entries.
func GuessCategory(description string) string {
	lower := strings.ToLower(description)
	for _, h := range categoryHints {
		for _, w := range h.words {
			if strings.Contains(lower, w) {
				return h.category
			}
		}
	}
	return DefaultCategory
}

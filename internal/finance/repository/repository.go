package repository

import (
	"time"

	"smartshop-backend/internal/finance/domain"
)

// LedgerRepository stores expenses and budgets.
type LedgerRepository interface {
	CreateExpense(expense *domain.Expense) error
	// SumByCategory totals expenses with OccurredAt in [from, to).
	SumByCategory(userID string, from, to time.Time) ([]domain.CategoryTotal, error)
	ListExpenses(userID string, from, to time.Time, limit int) ([]*domain.Expense, error)
	UpsertBudget(userID string, amount float64) (*domain.Budget, error)
	// FindBudget returns (nil, nil) when the user has no budget.
	FindBudget(userID string) (*domain.Budget, error)
}

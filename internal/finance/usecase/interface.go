package usecase

import (
	"context"
	"time"

	"smartshop-backend/internal/finance/domain"
)

// LedgerUsecase records expenses and reports budgets and monthly views.
type LedgerUsecase interface {
	RecordExpense(ctx context.Context, userID string, amount float64, category, description string, occurredAt time.Time) (*domain.Expense, error)
	// MonthlySummary covers the calendar month containing month.
	MonthlySummary(ctx context.Context, userID string, month time.Time) (*domain.MonthlySummary, error)
	SetBudget(ctx context.Context, userID string, amount float64) (*domain.Budget, error)
	GetBudget(ctx context.Context, userID string) (*domain.Budget, error)
	BudgetStatus(ctx context.Context, userID string) (*domain.BudgetStatus, error)
	// Now is the ledger clock in the server location.
	Now() time.Time
}

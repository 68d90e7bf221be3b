package usecase

import (
	"context"
	"math"
	"time"

	"smartshop-backend/internal/finance/domain"
	"smartshop-backend/internal/finance/repository"
	"smartshop-backend/pkg/apperror"
)

type ledgerUsecase struct {
	repo repository.LedgerRepository
	loc  *time.Location
	now  func() time.Time
}

// NewLedgerUsecase builds the ledger. Month bounds are computed in loc; a nil
// loc means the server's local zone.
func NewLedgerUsecase(repo repository.LedgerRepository, loc *time.Location) LedgerUsecase {
	if loc == nil {
		loc = time.Local
	}
	return &ledgerUsecase{repo: repo, loc: loc, now: time.Now}
}

func (u *ledgerUsecase) Now() time.Time {
	return u.now().In(u.loc)
}

func (u *ledgerUsecase) RecordExpense(ctx context.Context, userID string, amount float64, category, description string, occurredAt time.Time) (*domain.Expense, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, apperror.Validation("Amount must be greater than 0.")
	}

	now := u.Now()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	expense := &domain.Expense{
		UserID:      userID,
		Amount:      amount,
		Category:    domain.NormalizeCategory(category),
		Description: description,
		Source:      domain.SourceManual,
		OccurredAt:  occurredAt,
		CreatedAt:   now,
	}
	if err := u.repo.CreateExpense(expense); err != nil {
		return nil, apperror.Store(err)
	}
	return expense, nil
}

func (u *ledgerUsecase) MonthlySummary(ctx context.Context, userID string, month time.Time) (*domain.MonthlySummary, error) {
	from, to := domain.MonthBounds(month.In(u.loc))
	rows, err := u.repo.SumByCategory(userID, from, to)
	if err != nil {
		return nil, apperror.Store(err)
	}

	summary := &domain.MonthlySummary{Month: from.Format("2006-01"), Categories: rows}
	for _, r := range rows {
		summary.Total += r.Amount
		summary.Count += r.Count
	}
	if summary.Categories == nil {
		summary.Categories = []domain.CategoryTotal{}
	}
	return summary, nil
}

func (u *ledgerUsecase) SetBudget(ctx context.Context, userID string, amount float64) (*domain.Budget, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, apperror.Validation("Budget must be greater than 0.")
	}
	budget, err := u.repo.UpsertBudget(userID, amount)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return budget, nil
}

func (u *ledgerUsecase) GetBudget(ctx context.Context, userID string) (*domain.Budget, error) {
	budget, err := u.repo.FindBudget(userID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return budget, nil
}

func (u *ledgerUsecase) BudgetStatus(ctx context.Context, userID string) (*domain.BudgetStatus, error) {
	budget, err := u.GetBudget(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary, err := u.MonthlySummary(ctx, userID, u.Now())
	if err != nil {
		return nil, err
	}

	status := &domain.BudgetStatus{Month: summary.Month, Spent: summary.Total}
	if budget == nil {
		return status, nil
	}
	status.HasBudget = true
	status.Budget = budget.Amount
	status.Remaining = budget.Amount - summary.Total
	status.Percentage = summary.Total / budget.Amount * 100
	status.Warning = status.Percentage > domain.WarningPercentage
	status.Over = summary.Total > budget.Amount
	return status, nil
}

package repository

import (
	"errors"
	"time"

	"smartshop-backend/internal/finance/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormLedgerRepository struct {
	db *gorm.DB
}

func NewGormLedgerRepository(db *gorm.DB) LedgerRepository {
	return &gormLedgerRepository{db: db}
}

func (r *gormLedgerRepository) CreateExpense(expense *domain.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now()
	}
	return r.db.Create(expense).Error
}

func (r *gormLedgerRepository) SumByCategory(userID string, from, to time.Time) ([]domain.CategoryTotal, error) {
	var rows []domain.CategoryTotal
	err := r.db.Model(&domain.Expense{}).
		Select("category, SUM(amount) AS amount, COUNT(*) AS count").
		Where("user_id = ? AND occurred_at >= ? AND occurred_at < ?", userID, from, to).
		Group("category").
		Order("amount DESC, category ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *gormLedgerRepository) ListExpenses(userID string, from, to time.Time, limit int) ([]*domain.Expense, error) {
	var expenses []*domain.Expense
	query := r.db.Where("user_id = ? AND occurred_at >= ? AND occurred_at < ?", userID, from, to).
		Order("occurred_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&expenses).Error
	return expenses, err
}

func (r *gormLedgerRepository) UpsertBudget(userID string, amount float64) (*domain.Budget, error) {
	budget := &domain.Budget{UserID: userID, Amount: amount, UpdatedAt: time.Now()}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(budget).Error
	if err != nil {
		return nil, err
	}
	return budget, nil
}

func (r *gormLedgerRepository) FindBudget(userID string) (*domain.Budget, error) {
	var budget domain.Budget
	err := r.db.Where("user_id = ?", userID).First(&budget).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &budget, nil
}

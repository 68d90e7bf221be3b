package delivery

import (
	"net/http"
	"time"

	authdelivery "smartshop-backend/internal/auth/delivery"
	"smartshop-backend/internal/finance/usecase"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// FinanceHandler serves the ledger REST API.
type FinanceHandler struct {
	ledgerUsecase usecase.LedgerUsecase
}

func NewFinanceHandler(ledgerUsecase usecase.LedgerUsecase) *FinanceHandler {
	return &FinanceHandler{ledgerUsecase: ledgerUsecase}
}

type expenseRequest struct {
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	// RFC 3339 timestamp or YYYY-MM-DD; empty means now.
	OccurredAt string `json:"occurred_at"`
}

type budgetRequest struct {
	Amount float64 `json:"amount"`
}

// CreateExpense records a manual expense.
// POST /api/expenses
func (h *FinanceHandler) CreateExpense(c *gin.Context) {
	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	occurredAt, err := parseOccurredAt(req.OccurredAt, h.ledgerUsecase.Now().Location())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "occurred_at must be RFC 3339 or YYYY-MM-DD"})
		return
	}

	expense, err := h.ledgerUsecase.RecordExpense(c.Request.Context(), authdelivery.UserID(c), req.Amount, req.Category, req.Description, occurredAt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

// GetSummary returns one month's totals by category.
// GET /api/finance/summary?month=YYYY-MM
func (h *FinanceHandler) GetSummary(c *gin.Context) {
	now := h.ledgerUsecase.Now()
	month := now
	if m := c.Query("month"); m != "" {
		parsed, err := time.ParseInLocation("2006-01", m, now.Location())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "month must be YYYY-MM"})
			return
		}
		month = parsed
	}

	summary, err := h.ledgerUsecase.MonthlySummary(c.Request.Context(), authdelivery.UserID(c), month)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// PutBudget overwrites the monthly budget.
// PUT /api/finance/budget
func (h *FinanceHandler) PutBudget(c *gin.Context) {
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	budget, err := h.ledgerUsecase.SetBudget(c.Request.Context(), authdelivery.UserID(c), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, budget)
}

// GetBudgetStatus compares this month's spending with the budget.
// GET /api/finance/budget/status
func (h *FinanceHandler) GetBudgetStatus(c *gin.Context) {
	status, err := h.ledgerUsecase.BudgetStatus(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if !status.HasBudget {
		c.JSON(http.StatusOK, gin.H{"status": status, "message": "no budget set"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func parseOccurredAt(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		lg := logger.Component("finance")
		lg.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": apperror.UserMessage(err)})
}

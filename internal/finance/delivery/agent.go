package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smartshop-backend/internal/finance/domain"
	"smartshop-backend/internal/finance/usecase"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/money"
)

const usage = `Finance commands:
• spent <amount> [on] <what>  (花了 120 午餐)
• budget <amount>  (設定預算 20000)
• budget status  (預算)
• this month  (本月)
• last month  (上個月)`

var (
	expensePrefixes   = []string{"spent", "spend", "expense", "記帳", "支出", "花了", "花費"}
	budgetSetPrefixes = []string{"set budget", "budget", "設定預算", "預算"}
	statusWords       = []string{"budget status", "budget", "預算", "預算狀態", "預算狀況"}
	thisMonthWords    = []string{"this month", "本月", "這個月", "本月支出"}
	lastMonthWords    = []string{"last month", "上個月", "上月"}
	descFillers       = []string{"on ", "for ", "買", "在"}

	keywords = []string{"spent", "spend", "expense", "budget", "this month", "last month", "記帳", "支出", "花了", "花費", "預算", "本月", "上個月", "上月"}
)

// Agent handles ledger chat commands.
type Agent struct {
	ledgerUsecase usecase.LedgerUsecase
}

func NewAgent(ledgerUsecase usecase.LedgerUsecase) *Agent {
	return &Agent{ledgerUsecase: ledgerUsecase}
}

func (a *Agent) Name() string { return "finance" }

func (a *Agent) CanHandle(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (a *Agent) Process(ctx context.Context, userID, text string) (string, error) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	now := a.ledgerUsecase.Now()
	switch {
	case containsAny(lower, lastMonthWords):
		// The last day of the previous month.
		return a.summary(ctx, userID, now.AddDate(0, 0, -now.Day()), "Last month")
	case containsAny(lower, thisMonthWords):
		return a.summary(ctx, userID, now, "This month")
	case equalsAny(lower, statusWords):
		return a.status(ctx, userID)
	}

	if rest, ok := cutPrefixFold(text, budgetSetPrefixes...); ok {
		if amount, found := money.ParseAmount(rest); found {
			return a.setBudget(ctx, userID, amount)
		}
		return a.status(ctx, userID)
	}
	if rest, ok := cutPrefixFold(text, expensePrefixes...); ok {
		return a.record(ctx, userID, rest)
	}
	return usage, nil
}

func (a *Agent) record(ctx context.Context, userID, rest string) (string, error) {
	amount, before, after, ok := money.CutAmount(rest)
	if !ok {
		return "", apperror.Validation("Please include an amount, e.g. spent 120 on lunch")
	}
	description := strings.TrimSpace(strings.TrimSpace(before) + " " + strings.TrimSpace(after))
	for _, f := range descFillers {
		description = strings.TrimSpace(strings.TrimPrefix(description, f))
	}

	expense, err := a.ledgerUsecase.RecordExpense(ctx, userID, amount, domain.GuessCategory(description), description, a.ledgerUsecase.Now())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recorded %s", money.FormatTWD(expense.Amount))
	if expense.Description != "" {
		fmt.Fprintf(&b, " for %s", expense.Description)
	}
	fmt.Fprintf(&b, " (%s).", expense.Category)

	// The warning is best-effort; the expense is already stored.
	if status, err := a.ledgerUsecase.BudgetStatus(ctx, userID); err == nil {
		if line := warningLine(status); line != "" {
			b.WriteString("\n" + line)
		}
	}
	return b.String(), nil
}

func (a *Agent) setBudget(ctx context.Context, userID string, amount float64) (string, error) {
	budget, err := a.ledgerUsecase.SetBudget(ctx, userID, amount)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Monthly budget set to %s.", money.FormatTWD(budget.Amount)), nil
}

func (a *Agent) status(ctx context.Context, userID string) (string, error) {
	status, err := a.ledgerUsecase.BudgetStatus(ctx, userID)
	if err != nil {
		return "", err
	}
	if !status.HasBudget {
		return fmt.Sprintf("No budget set. Spent %s so far this month. Try: budget 20000", money.FormatTWD(status.Spent)), nil
	}

	reply := fmt.Sprintf("Budget %s, spent %s (%.1f%%), remaining %s.",
		money.FormatTWD(status.Budget), money.FormatTWD(status.Spent), status.Percentage, money.FormatTWD(status.Remaining))
	if line := warningLine(status); line != "" {
		reply += "\n" + line
	}
	return reply, nil
}

func (a *Agent) summary(ctx context.Context, userID string, month time.Time, label string) (string, error) {
	summary, err := a.ledgerUsecase.MonthlySummary(ctx, userID, month)
	if err != nil {
		return "", err
	}
	if summary.Count == 0 {
		return fmt.Sprintf("%s (%s): no expenses recorded.", label, summary.Month), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): %s across %d expense(s)", label, summary.Month, money.FormatTWD(summary.Total), summary.Count)
	for _, c := range summary.Categories {
		fmt.Fprintf(&b, "\n• %s %s (%d)", c.Category, money.FormatTWD(c.Amount), c.Count)
	}
	return b.String(), nil
}

func warningLine(status *domain.BudgetStatus) string {
	switch {
	case status == nil || !status.HasBudget:
		return ""
	case status.Over:
		return fmt.Sprintf("⚠ You are over budget by %s.", money.FormatTWD(-status.Remaining))
	case status.Warning:
		return fmt.Sprintf("⚠ You have used %.0f%% of your monthly budget.", status.Percentage)
	default:
		return ""
	}
}

func cutPrefixFold(text string, prefixes ...string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(strings.TrimLeft(text[len(p):], ":：")), true
		}
	}
	return text, false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func equalsAny(s string, words []string) bool {
	for _, w := range words {
		if s == w {
			return true
		}
	}
	return false
}

package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/internal/mail/usecase"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/money"
)

const usage = `Gmail commands:
• connect gmail  (連接)
• scan [7|14|30]  (掃描 30)
• stats  (統計)
• status
• disconnect gmail`

const defaultScanDays = 30

var (
	disconnectWords = []string{"disconnect", "解除連接", "中斷連接", "取消連接", "取消綁定"}
	connectWords    = []string{"connect", "連接", "綁定"}
	scanPrefixes    = []string{"scan", "sync", "掃描"}
	statsWords      = []string{"stats", "statistics", "統計", "購物統計"}
	statusWords     = []string{"status", "gmail status", "狀態", "信箱狀態"}

	keywords = []string{"gmail", "mail", "scan", "stats", "郵件", "信箱", "連接", "掃描", "統計"}

	scanDays = map[int]bool{7: true, 14: true, 30: true}
)

// Agent handles the Gmail link and sync chat commands.
type Agent struct {
	connectionUsecase usecase.ConnectionUsecase
	syncUsecase       usecase.SyncUsecase
}

func NewAgent(connectionUsecase usecase.ConnectionUsecase, syncUsecase usecase.SyncUsecase) *Agent {
	return &Agent{connectionUsecase: connectionUsecase, syncUsecase: syncUsecase}
}

func (a *Agent) Name() string { return "gmail" }

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
	lower := strings.ToLower(strings.TrimSpace(text))

	// "disconnect" contains "connect", so it is checked first.
	switch {
	case containsAny(lower, disconnectWords):
		return a.disconnect(ctx, userID)
	case containsAny(lower, connectWords):
		return a.connect(ctx, userID)
	case equalsAny(lower, statusWords):
		return a.status(ctx, userID)
	case containsAny(lower, statsWords):
		return a.stats(ctx, userID)
	}

	if rest, ok := cutPrefix(lower, scanPrefixes...); ok {
		days, err := parseDays(rest)
		if err != nil {
			return "", err
		}
		return a.scan(ctx, userID, days)
	}
	return usage, nil
}

func (a *Agent) connect(ctx context.Context, userID string) (string, error) {
	url, err := a.connectionUsecase.ConnectURL(ctx, userID)
	if err != nil {
		return "", err
	}
	return "Open this link to connect your Gmail (valid for 15 minutes):\n" + url, nil
}

func (a *Agent) disconnect(ctx context.Context, userID string) (string, error) {
	if err := a.connectionUsecase.Disconnect(ctx, userID); err != nil {
		return "", err
	}
	return "Gmail disconnected. Records already imported are kept.", nil
}

func (a *Agent) status(ctx context.Context, userID string) (string, error) {
	conn, err := a.connectionUsecase.Status(ctx, userID)
	if err != nil {
		return "", err
	}
	return describeStatus(conn), nil
}

func describeStatus(conn *domain.MailConnection) string {
	switch conn.State {
	case domain.StateDisconnected:
		msg := "Gmail is not connected. Send \"connect gmail\" to link it."
		if conn.LastError != "" {
			msg += "\nLast attempt failed: " + conn.LastError
		}
		return msg
	case domain.StateAuthorizationPending:
		return "Waiting for you to finish the Gmail authorization. Send \"connect gmail\" for a fresh link."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Gmail connected: %s", conn.GmailAddress)
	if conn.State == domain.StateSyncing {
		b.WriteString("\nA sync is running right now.")
	}
	if conn.LastSyncAt != nil {
		fmt.Fprintf(&b, "\nLast sync: %s", conn.LastSyncAt.Format("2006-01-02 15:04"))
	} else {
		b.WriteString("\nNot synced yet. Try: scan 30")
	}
	if conn.LastError != "" {
		fmt.Fprintf(&b, "\nLast error: %s", conn.LastError)
	}
	return b.String()
}

func (a *Agent) scan(ctx context.Context, userID string, days int) (string, error) {
	result, err := a.syncUsecase.Sync(ctx, userID, domain.ModeSearch, days)
	if errors.Is(err, apperror.ErrDuplicateSuppressed) {
		return "A sync is already running. New mail will be included when it finishes.", nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scanned the last %d days: %d candidate mail(s).", days, result.Candidates)
	if result.Committed > 0 {
		fmt.Fprintf(&b, "\nNew purchases: %d, total %s.", result.Committed, money.FormatTWD(result.CommittedAmount))
	} else {
		b.WriteString("\nNo new purchases found.")
	}
	if skipped := result.Discarded + result.Duplicates; skipped > 0 {
		fmt.Fprintf(&b, "\nSkipped: %d.", skipped)
	}
	if result.Failed > 0 {
		fmt.Fprintf(&b, "\n%d mail(s) could not be read and will be retried.", result.Failed)
	}
	return b.String(), nil
}

func (a *Agent) stats(ctx context.Context, userID string) (string, error) {
	stats, err := a.syncUsecase.Stats(ctx, userID, defaultScanDays)
	if err != nil {
		return "", err
	}
	if stats.Count == 0 {
		return fmt.Sprintf("No shopping records in the last %d days. Try: scan %d", stats.Days, stats.Days), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Shopping in the last %d days: %d purchase(s), %s", stats.Days, stats.Count, money.FormatTWD(stats.Total))
	if len(stats.TopVendors) > 0 {
		b.WriteString("\nTop vendors:")
		for i, v := range stats.TopVendors {
			fmt.Fprintf(&b, "\n%d. %s %s (%d)", i+1, v.Vendor, money.FormatTWD(v.Amount), v.Count)
		}
	}
	return b.String(), nil
}

func parseDays(rest string) (int, error) {
	rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "gmail"))
	rest = strings.TrimSpace(strings.TrimSuffix(rest, "days"))
	rest = strings.TrimSpace(strings.TrimSuffix(rest, "天"))
	if rest == "" {
		return defaultScanDays, nil
	}
	days, err := strconv.Atoi(rest)
	if err != nil || !scanDays[days] {
		return 0, apperror.Validation("Scan supports 7, 14 or 30 days, e.g. scan 14")
	}
	return days, nil
}

func cutPrefix(text string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(text, p) {
			return strings.TrimSpace(text[len(p):]), true
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

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	financedomain "smartshop-backend/internal/finance/domain"
	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/internal/mail/repository"
	"smartshop-backend/pkg/ai"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/gmail"
	"smartshop-backend/pkg/logger"

	"github.com/rs/zerolog"
)

const (
	shoppingSubjectQuery = "subject:(訂單 OR 收據 OR 發票 OR 付款 OR 購買 OR order OR receipt OR invoice OR payment)"
	classificationSource = "ai"
	maxPendingAttempts   = 5
	maxPendingPerPass    = 50
	maxResyncPasses      = 3
)

// SyncConfig holds the tunables of a sync pass. Acceptance is read on every
// candidate so runtime updates apply to the next message.
type SyncConfig struct {
	Acceptance        func() float64
	FetchTimeout      time.Duration
	ClassifierTimeout time.Duration
	Lease             time.Duration
	ScanMaxResults    int
	DefaultScanDays   int
}

type syncUsecase struct {
	connections repository.ConnectionRepository
	ingestion   repository.IngestionRepository
	api         MailAPI
	extractor   ExpenseExtractor
	queue       JobQueue
	cfg         SyncConfig
	now         func() time.Time
}

func NewSyncUsecase(connections repository.ConnectionRepository, ingestion repository.IngestionRepository, api MailAPI, extractor ExpenseExtractor, cfg SyncConfig) SyncUsecase {
	if cfg.Acceptance == nil {
		cfg.Acceptance = func() float64 { return 0.6 }
	}
	if cfg.DefaultScanDays <= 0 {
		cfg.DefaultScanDays = 30
	}
	if cfg.ScanMaxResults <= 0 {
		cfg.ScanMaxResults = 100
	}
	return &syncUsecase{
		connections: connections,
		ingestion:   ingestion,
		api:         api,
		extractor:   extractor,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetJobQueue wires the worker pool that push notifications are queued on.
func (u *syncUsecase) SetJobQueue(queue JobQueue) {
	u.queue = queue
}

// SearchQuery builds the search-mode Gmail query for the last days.
func SearchQuery(days int) string {
	return fmt.Sprintf("newer_than:%dd %s", days, shoppingSubjectQuery)
}

func (u *syncUsecase) Sync(ctx context.Context, userID string, mode domain.SyncMode, days int) (*domain.SyncResult, error) {
	log := logger.Component("mail-sync").With().Str("user_id", userID).Logger()

	conn, err := u.connections.FindByUserID(userID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if conn == nil || !conn.State.Linked() {
		return nil, apperror.Validation("Gmail is not connected. Send \"connect gmail\" first.")
	}

	acquired, err := u.acquire(userID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		log.Debug().Msg("sync already running, resync requested")
		return nil, apperror.Duplicate("sync request")
	}

	result := &domain.SyncResult{Mode: mode}
	for pass := 1; ; pass++ {
		conn, err := u.connections.FindByUserID(userID)
		if err != nil {
			// The lease expires on its own.
			return nil, apperror.Store(err)
		}
		if conn == nil {
			return nil, ErrNotConnected
		}

		newest, passErr := u.runPass(ctx, log, conn, mode, days, result)
		result.Passes++

		lastError := ""
		if passErr != nil {
			lastError = passErr.Error()
			newest = 0
		}
		resync, err := u.connections.FinishSync(userID, newest, lastError, u.now(), passErr == nil && pass < maxResyncPasses)
		if err != nil {
			return nil, apperror.Store(err)
		}
		if passErr != nil {
			log.Warn().Err(passErr).Msg("sync pass failed")
			return result, passErr
		}
		if !resync {
			break
		}
		// Requests that arrived during the pass are served from the checkpoint.
		mode = domain.ModeCheckpoint
	}

	log.Info().
		Int("candidates", result.Candidates).
		Int("committed", result.Committed).
		Int("discarded", result.Discarded).
		Int("duplicates", result.Duplicates).
		Int("failed", result.Failed).
		Int("passes", result.Passes).
		Msg("sync finished")
	return result, nil
}

// acquire takes the sync lease or leaves a resync request for the running
// pass. A request that finds the pass already finished tries once more.
func (u *syncUsecase) acquire(userID string) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := u.connections.BeginSync(userID, u.now(), u.cfg.Lease)
		if err != nil {
			return false, apperror.Store(err)
		}
		if ok {
			return true, nil
		}
		requested, err := u.connections.RequestResync(userID)
		if err != nil {
			return false, apperror.Store(err)
		}
		if requested {
			return false, nil
		}
	}
	return false, nil
}

// runPass processes one candidate set and returns the history id the
// checkpoint may advance to, or 0 to keep it.
func (u *syncUsecase) runPass(ctx context.Context, log zerolog.Logger, conn *domain.MailConnection, mode domain.SyncMode, days int, result *domain.SyncResult) (uint64, error) {
	cred := credentials(conn)
	onRefresh := tokenCallback(u.connections, conn.UserID)

	ids, newest, err := u.candidates(ctx, log, conn, cred, onRefresh, mode, days)
	if err != nil {
		return 0, err
	}

	pending, err := u.ingestion.ListPending(conn.UserID, maxPendingAttempts, maxPendingPerPass)
	if err != nil {
		return 0, apperror.Store(err)
	}
	ids = mergeIDs(ids, pending)
	result.Candidates += len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			// Unvisited candidates are listed again from the old checkpoint.
			return 0, apperror.Classify("sync pass", ctx.Err())
		}
		if err := u.processCandidate(ctx, log, conn.UserID, id, cred, onRefresh, result); err != nil {
			return 0, err
		}
	}
	return newest, nil
}

func (u *syncUsecase) candidates(ctx context.Context, log zerolog.Logger, conn *domain.MailConnection, cred gmail.Credentials, onRefresh gmail.TokenUpdateFunc, mode domain.SyncMode, days int) ([]string, uint64, error) {
	var newest uint64

	if mode == domain.ModeCheckpoint {
		if conn.HistoryID > 0 {
			var ids []string
			err := apperror.RetryOnTimeout(ctx, "gmail history", u.cfg.FetchTimeout, func(ctx context.Context) error {
				var err error
				ids, newest, err = u.api.ListHistory(ctx, cred, conn.HistoryID, onRefresh)
				return err
			})
			if err == nil {
				return ids, newest, nil
			}
			if !errors.Is(err, gmail.ErrHistoryExpired) {
				return nil, 0, err
			}
			log.Info().Uint64("history_id", conn.HistoryID).Msg("history expired, falling back to search")
		}

		// Reseed the checkpoint from the mailbox's current position.
		var profile *gmail.Profile
		err := apperror.RetryOnTimeout(ctx, "gmail profile", u.cfg.FetchTimeout, func(ctx context.Context) error {
			var err error
			profile, err = u.api.GetProfile(ctx, cred, onRefresh)
			return err
		})
		if err != nil {
			return nil, 0, err
		}
		newest = profile.HistoryID
		days = u.cfg.DefaultScanDays
	}

	if days <= 0 {
		days = u.cfg.DefaultScanDays
	}
	var ids []string
	err := apperror.RetryOnTimeout(ctx, "gmail search", u.cfg.FetchTimeout, func(ctx context.Context) error {
		var err error
		ids, err = u.api.SearchMessages(ctx, cred, SearchQuery(days), u.cfg.ScanMaxResults, onRefresh)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return ids, newest, nil
}

// processCandidate runs the dedup gate, fetch, classification and commit for
// one message. Upstream failures park the message as pending and return nil;
// only store failures abort the pass.
func (u *syncUsecase) processCandidate(ctx context.Context, log zerolog.Logger, userID, messageID string, cred gmail.Credentials, onRefresh gmail.TokenUpdateFunc, result *domain.SyncResult) error {
	done, err := u.ingestion.IsProcessed(userID, messageID)
	if err != nil {
		return apperror.Store(err)
	}
	if done {
		result.Duplicates++
		log.Debug().Str("message_id", messageID).Msg("already processed")
		return nil
	}

	var msg *gmail.Message
	err = apperror.RetryOnTimeout(ctx, "gmail fetch", u.cfg.FetchTimeout, func(ctx context.Context) error {
		var err error
		msg, err = u.api.FetchMessage(ctx, cred, messageID, onRefresh)
		return err
	})
	if err != nil {
		return u.park(log, userID, messageID, err, result)
	}

	var extraction ai.ExpenseExtraction
	err = apperror.RetryOnTimeout(ctx, "expense extraction", u.cfg.ClassifierTimeout, func(ctx context.Context) error {
		var err error
		extraction, err = u.extractor.ExtractExpense(ctx, msg.ClassificationText())
		return err
	})
	if err != nil {
		return u.park(log, userID, messageID, err, result)
	}

	if extraction.Confidence < u.cfg.Acceptance() || extraction.Amount <= 0 {
		inserted, err := u.ingestion.MarkDiscarded(userID, messageID)
		if err != nil {
			return apperror.Store(err)
		}
		if inserted {
			result.Discarded++
		} else {
			result.Duplicates++
		}
		log.Debug().Str("message_id", messageID).Float64("confidence", extraction.Confidence).Msg("candidate discarded")
		return nil
	}

	mailDate := msg.Date
	if mailDate.IsZero() {
		mailDate = u.now()
	}
	vendor := strings.TrimSpace(extraction.Vendor)
	if vendor == "" {
		vendor = msg.From
	}
	category := financedomain.NormalizeCategory(extraction.Category)

	record := &domain.ShoppingRecord{
		UserID:               userID,
		MessageID:            messageID,
		Vendor:               vendor,
		Amount:               extraction.Amount,
		Category:             category,
		MailDate:             mailDate,
		Subject:              msg.Subject,
		Snippet:              msg.Snippet,
		Confidence:           extraction.Confidence,
		ClassificationSource: classificationSource,
	}
	expense := &financedomain.Expense{
		UserID:      userID,
		Amount:      extraction.Amount,
		Category:    category,
		Description: describe(vendor, msg.Subject),
		Source:      financedomain.SourceDerived,
		OccurredAt:  mailDate,
	}
	committed, err := u.ingestion.CommitExtraction(record, expense)
	if err != nil {
		return apperror.Store(err)
	}
	if !committed {
		result.Duplicates++
		log.Debug().Str("message_id", messageID).Msg("commit suppressed, already committed")
		return nil
	}
	result.Committed++
	result.CommittedAmount += extraction.Amount
	return nil
}

func (u *syncUsecase) park(log zerolog.Logger, userID, messageID string, cause error, result *domain.SyncResult) error {
	result.Failed++
	log.Warn().Err(cause).Str("message_id", messageID).Msg("candidate failed, kept pending")
	if err := u.ingestion.AddPending(userID, messageID, cause.Error()); err != nil {
		return apperror.Store(err)
	}
	return nil
}

func (u *syncUsecase) HandlePush(ctx context.Context, n domain.PushNotification) error {
	log := logger.Component("mail-push")
	address := strings.ToLower(strings.TrimSpace(n.EmailAddress))
	if address == "" {
		log.Warn().Msg("push without email address ignored")
		return nil
	}

	conn, err := u.connections.FindByAddress(address)
	if err != nil {
		return apperror.Store(err)
	}
	if conn == nil {
		log.Debug().Uint64("history_id", n.HistoryID).Msg("push for unknown mailbox ignored")
		return nil
	}
	if u.queue == nil || !u.queue.QueueJob(SyncJob{UserID: conn.UserID, Mode: domain.ModeCheckpoint}) {
		return ErrQueueFull
	}
	log.Debug().Str("user_id", conn.UserID).Uint64("history_id", n.HistoryID).Msg("sync queued")
	return nil
}

func (u *syncUsecase) Stats(ctx context.Context, userID string, days int) (*domain.ShoppingStats, error) {
	if days <= 0 {
		days = u.cfg.DefaultScanDays
	}
	stats, err := u.ingestion.ShoppingStats(userID, u.now().AddDate(0, 0, -days), 3)
	if err != nil {
		return nil, apperror.Store(err)
	}
	stats.Days = days
	return stats, nil
}

func mergeIDs(ids, extra []string) []string {
	seen := make(map[string]bool, len(ids)+len(extra))
	out := make([]string, 0, len(ids)+len(extra))
	for _, list := range [][]string{ids, extra} {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func describe(vendor, subject string) string {
	desc := vendor
	if subject != "" {
		desc = vendor + ": " + subject
	}
	if r := []rune(desc); len(r) > 200 {
		desc = string(r[:200])
	}
	return desc
}

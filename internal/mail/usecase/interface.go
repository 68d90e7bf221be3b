package usecase

import (
	"context"
	"errors"
	"time"

	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/pkg/ai"
	"smartshop-backend/pkg/gmail"

	"golang.org/x/oauth2"
)

var (
	ErrInvalidState = errors.New("invalid oauth state")
	ErrQueueFull    = errors.New("sync queue full")
	ErrNotConnected = errors.New("gmail not connected")
)

// MailAPI is the Gmail surface the pipeline uses. *gmail.Service implements it.
type MailAPI interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	GetProfile(ctx context.Context, cred gmail.Credentials, onTokenRefresh gmail.TokenUpdateFunc) (*gmail.Profile, error)
	ListHistory(ctx context.Context, cred gmail.Credentials, startHistoryID uint64, onTokenRefresh gmail.TokenUpdateFunc) ([]string, uint64, error)
	SearchMessages(ctx context.Context, cred gmail.Credentials, query string, maxResults int, onTokenRefresh gmail.TokenUpdateFunc) ([]string, error)
	FetchMessage(ctx context.Context, cred gmail.Credentials, messageID string, onTokenRefresh gmail.TokenUpdateFunc) (*gmail.Message, error)
	Watch(ctx context.Context, cred gmail.Credentials, topicName string, onTokenRefresh gmail.TokenUpdateFunc) (uint64, time.Time, error)
	Stop(ctx context.Context, cred gmail.Credentials, onTokenRefresh gmail.TokenUpdateFunc) error
}

// ExpenseExtractor reads purchase data out of mail text. ai.Classifier
// implements it.
type ExpenseExtractor interface {
	ExtractExpense(ctx context.Context, text string) (ai.ExpenseExtraction, error)
}

// ConnectionUsecase owns the OAuth state machine of a user's Gmail link.
type ConnectionUsecase interface {
	// ConnectURL moves the user to AuthorizationPending and returns the
	// consent URL carrying a signed state token.
	ConnectURL(ctx context.Context, userID string) (string, error)
	// HandleCallback completes or fails the pending authorization.
	// errReason is the provider's error parameter, empty on success.
	HandleCallback(ctx context.Context, code, state, errReason string) (*domain.MailConnection, error)
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*domain.MailConnection, error)
	// RenewWatches re-issues Gmail watches for every linked mailbox.
	RenewWatches(ctx context.Context) (int, error)
}

// SyncUsecase runs sync passes and receives push notifications.
type SyncUsecase interface {
	// Sync runs a pass for the user. days is only used in search mode.
	Sync(ctx context.Context, userID string, mode domain.SyncMode, days int) (*domain.SyncResult, error)
	// HandlePush resolves the mailbox and queues a checkpoint sync. A nil
	// error means the notification can be acknowledged.
	HandlePush(ctx context.Context, n domain.PushNotification) error
	Stats(ctx context.Context, userID string, days int) (*domain.ShoppingStats, error)
	SetJobQueue(queue JobQueue)
}

// JobQueue accepts background sync jobs.
type JobQueue interface {
	QueueJob(job SyncJob) bool
}

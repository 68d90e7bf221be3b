package repository

import (
	"time"

	"smartshop-backend/internal/mail/domain"

	"golang.org/x/oauth2"
)

// ConnectionRepository stores Gmail links. State changes that race across
// instances are conditional updates; the bool results report whether this
// caller won.
type ConnectionRepository interface {
	FindByUserID(userID string) (*domain.MailConnection, error)
	FindByAddress(address string) (*domain.MailConnection, error)
	ListLinked() ([]*domain.MailConnection, error)

	// BeginAuthorization creates or resets the row to AuthorizationPending
	// with a fresh nonce.
	BeginAuthorization(userID, nonce string) (*domain.MailConnection, error)
	// CompleteAuthorization applies the grant only while the row is still
	// pending with the same nonce.
	CompleteAuthorization(userID, nonce string, grant domain.Grant) (bool, error)
	// FailAuthorization moves a pending row back to Disconnected.
	FailAuthorization(userID, reason string) error
	// Disconnect clears credentials and the checkpoint.
	Disconnect(userID string) (bool, error)

	UpdateToken(userID string, token *oauth2.Token) error
	SetWatchExpiry(userID string, expiresAt time.Time) error

	// BeginSync takes the sync lease from connected or idle, or from a
	// syncing row whose lease started before now-lease.
	BeginSync(userID string, now time.Time, lease time.Duration) (bool, error)
	// RequestResync flags a running sync to run again. It returns false when
	// no sync is running any more.
	RequestResync(userID string) (bool, error)
	// FinishSync ends a pass. When a resync was requested and allowResync is
	// set, the lease is renewed instead and true is returned.
	FinishSync(userID string, historyID uint64, lastError string, now time.Time, allowResync bool) (bool, error)
}

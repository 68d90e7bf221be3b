package domain

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionState is the per-user Gmail link state.
type ConnectionState string

const (
	StateDisconnected         ConnectionState = "disconnected"
	StateAuthorizationPending ConnectionState = "authorization_pending"
	StateConnected            ConnectionState = "connected"
	StateSyncing              ConnectionState = "syncing"
	StateIdle                 ConnectionState = "idle"
)

// ConnectionEvent drives ConnectionState transitions.
type ConnectionEvent string

const (
	EventAuthorize  ConnectionEvent = "authorize"
	EventGrant      ConnectionEvent = "grant"
	EventDeny       ConnectionEvent = "deny"
	EventSyncStart  ConnectionEvent = "sync_start"
	EventSyncDone   ConnectionEvent = "sync_done"
	EventDisconnect ConnectionEvent = "disconnect"
)

var ErrInvalidTransition = errors.New("invalid connection state transition")

var transitions = map[ConnectionState]map[ConnectionEvent]ConnectionState{
	StateDisconnected: {
		EventAuthorize: StateAuthorizationPending,
	},
	StateAuthorizationPending: {
		EventAuthorize:  StateAuthorizationPending,
		EventGrant:      StateConnected,
		EventDeny:       StateDisconnected,
		EventDisconnect: StateDisconnected,
	},
	StateConnected: {
		EventAuthorize:  StateAuthorizationPending,
		EventSyncStart:  StateSyncing,
		EventDisconnect: StateDisconnected,
	},
	StateSyncing: {
		EventSyncDone:   StateIdle,
		EventDisconnect: StateDisconnected,
	},
	StateIdle: {
		EventAuthorize:  StateAuthorizationPending,
		EventSyncStart:  StateSyncing,
		EventDisconnect: StateDisconnected,
	},
}

// Next returns the state reached from s on event e, or ErrInvalidTransition.
func (s ConnectionState) Next(e ConnectionEvent) (ConnectionState, error) {
	next, ok := transitions[s][e]
	if !ok {
		return s, fmt.Errorf("%s on %s: %w", e, s, ErrInvalidTransition)
	}
	return next, nil
}

// Linked reports whether the state holds a usable credential.
func (s ConnectionState) Linked() bool {
	return s == StateConnected || s == StateSyncing || s == StateIdle
}

// MailConnection is a user's Gmail link. One row per user; the store enforces
// the sync lease and the authorization nonce with conditional updates.
type MailConnection struct {
	ID              string          `json:"id" gorm:"primaryKey"`
	UserID          string          `json:"user_id" gorm:"not null;uniqueIndex"`
	State           ConnectionState `json:"state" gorm:"not null;default:disconnected;index"`
	StateNonce      string          `json:"-"`
	GmailAddress    string          `json:"gmail_address" gorm:"index"`
	AccessToken     string          `json:"-"`
	RefreshToken    string          `json:"-"`
	TokenExpiry     *time.Time      `json:"-"`
	HistoryID       uint64          `json:"history_id"`
	SyncStartedAt   *time.Time      `json:"sync_started_at,omitempty"`
	ResyncRequested bool            `json:"resync_requested" gorm:"not null;default:false"`
	LastSyncAt      *time.Time      `json:"last_sync_at,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	WatchExpiresAt  *time.Time      `json:"watch_expires_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Grant is what a successful authorization persists.
type Grant struct {
	GmailAddress string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	HistoryID    uint64
}

package repository

import (
	"errors"
	"strings"
	"time"

	"smartshop-backend/internal/mail/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type connectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

var linkedStates = []domain.ConnectionState{domain.StateConnected, domain.StateSyncing, domain.StateIdle}

func (r *connectionRepository) find(query string, args ...any) (*domain.MailConnection, error) {
	var conn domain.MailConnection
	err := r.db.Where(query, args...).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) FindByUserID(userID string) (*domain.MailConnection, error) {
	return r.find("user_id = ?", userID)
}

func (r *connectionRepository) FindByAddress(address string) (*domain.MailConnection, error) {
	return r.find("gmail_address = ? AND state IN ?", address, linkedStates)
}

func (r *connectionRepository) ListLinked() ([]*domain.MailConnection, error) {
	var conns []*domain.MailConnection
	err := r.db.Where("state IN ?", linkedStates).Find(&conns).Error
	return conns, err
}

func (r *connectionRepository) BeginAuthorization(userID, nonce string) (*domain.MailConnection, error) {
	now := time.Now()
	conn := &domain.MailConnection{
		ID:         uuid.New().String(),
		UserID:     userID,
		State:      domain.StateAuthorizationPending,
		StateNonce: nonce,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "state_nonce", "updated_at"}),
	}).Create(conn).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUserID(userID)
}

func (r *connectionRepository) CompleteAuthorization(userID, nonce string, grant domain.Grant) (bool, error) {
	expiry := grant.TokenExpiry
	res := r.db.Model(&domain.MailConnection{}).
		Where("user_id = ? AND state = ? AND state_nonce = ?", userID, domain.StateAuthorizationPending, nonce).
		Updates(map[string]any{
			"state":            domain.StateConnected,
			"state_nonce":      "",
			"gmail_address":    strings.ToLower(grant.GmailAddress),
			"access_token":     grant.AccessToken,
			"refresh_token":    grant.RefreshToken,
			"token_expiry":     &expiry,
			"history_id":       grant.HistoryID,
			"resync_requested": false,
			"sync_started_at":  nil,
			"last_error":       "",
			"updated_at":       time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// FailAuthorization drops any credential left from an earlier link, since a
// re-authorization starts from a connected row.
func (r *connectionRepository) FailAuthorization(userID, reason string) error {
	return r.db.Model(&domain.MailConnection{}).
		Where("user_id = ? AND state = ?", userID, domain.StateAuthorizationPending).
		Updates(map[string]any{
			"state":            domain.StateDisconnected,
			"state_nonce":      "",
			"gmail_address":    "",
			"access_token":     "",
			"refresh_token":    "",
			"token_expiry":     nil,
			"history_id":       0,
			"sync_started_at":  nil,
			"resync_requested": false,
			"watch_expires_at": nil,
			"last_error":       reason,
			"updated_at":       time.Now(),
		}).Error
}

func (r *connectionRepository) Disconnect(userID string) (bool, error) {
	res := r.db.Model(&domain.MailConnection{}).
		Where("user_id = ? AND state <> ?", userID, domain.StateDisconnected).
		Updates(map[string]any{
			"state":            domain.StateDisconnected,
			"state_nonce":      "",
			"gmail_address":    "",
			"access_token":     "",
			"refresh_token":    "",
			"token_expiry":     nil,
			"history_id":       0,
			"sync_started_at":  nil,
			"resync_requested": false,
			"watch_expires_at": nil,
			"updated_at":       time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *connectionRepository) UpdateToken(userID string, token *oauth2.Token) error {
	updates := map[string]any{
		"access_token": token.AccessToken,
		"updated_at":   time.Now(),
	}
	// Google omits the refresh token on refresh; keep the stored one.
	if token.RefreshToken != "" {
		updates["refresh_token"] = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		updates["token_expiry"] = &expiry
	}
	return r.db.Model(&domain.MailConnection{}).
		Where("user_id = ? AND state IN ?", userID, linkedStates).
		Updates(updates).Error
}

func (r *connectionRepository) SetWatchExpiry(userID string, expiresAt time.Time) error {
	return r.db.Model(&domain.MailConnection{}).
		Where("user_id = ?", userID).
		Update("watch_expires_at", &expiresAt).Error
}

func (r *connectionRepository) BeginSync(userID string, now time.Time, lease time.Duration) (bool, error) {
	res := r.db.Model(&domain.MailConnection{}).
		Where("user_id = ? AND (state IN ? OR (state = ? AND sync_started_at < ?))",
			userID,
			[]domain.ConnectionState{domain.StateConnected, domain.StateIdle},
			domain.StateSyncing, now.Add(-lease)).
		Updates(map[string]any{
			"state":            domain.StateSyncing,
			"sync_started_at":  now,
			"resync_requested": false,
			"updated_at":       now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *connectionRepository) RequestResync(userID string) (bool, error) {
	res := r.db.Model(&domain.MailConnection{}).
		Where("user_id = ? AND state = ?", userID, domain.StateSyncing).
		Updates(map[string]any{"resync_requested": true, "updated_at": time.Now()})
	return res.RowsAffected == 1, res.Error
}

func (r *connectionRepository) FinishSync(userID string, historyID uint64, lastError string, now time.Time, allowResync bool) (bool, error) {
	resync := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if historyID > 0 {
			if err := tx.Model(&domain.MailConnection{}).
				Where("user_id = ? AND state = ? AND history_id < ?", userID, domain.StateSyncing, historyID).
				Update("history_id", historyID).Error; err != nil {
				return err
			}
		}

		if allowResync {
			res := tx.Model(&domain.MailConnection{}).
				Where("user_id = ? AND state = ? AND resync_requested = ?", userID, domain.StateSyncing, true).
				Updates(map[string]any{
					"resync_requested": false,
					"sync_started_at":  now,
					"last_error":       lastError,
					"updated_at":       now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				resync = true
				return nil
			}
		}

		return tx.Model(&domain.MailConnection{}).
			Where("user_id = ? AND state = ?", userID, domain.StateSyncing).
			Updates(map[string]any{
				"state":            domain.StateIdle,
				"sync_started_at":  nil,
				"resync_requested": false,
				"last_sync_at":     now,
				"last_error":       lastError,
				"updated_at":       now,
			}).Error
	})
	return resync, err
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/internal/mail/repository"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/gmail"
	"smartshop-backend/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	stateTokenTTL  = 15 * time.Minute
	stateTokenType = "gmail_oauth_state"
)

// ConnectionConfig holds the settings of the OAuth flow.
type ConnectionConfig struct {
	JWTSecret    string
	OAuthTimeout time.Duration
	// WatchTopic is the full Pub/Sub topic path; empty disables watches.
	WatchTopic string
}

type connectionUsecase struct {
	repo repository.ConnectionRepository
	api  MailAPI
	cfg  ConnectionConfig
	now  func() time.Time
}

func NewConnectionUsecase(repo repository.ConnectionRepository, api MailAPI, cfg ConnectionConfig) ConnectionUsecase {
	return &connectionUsecase{repo: repo, api: api, cfg: cfg, now: time.Now}
}

// The state token is signed with a key derived from the API secret so that it
// can never pass as an API bearer token.
func (u *connectionUsecase) stateKey() []byte {
	return []byte(u.cfg.JWTSecret + ":" + stateTokenType)
}

func (u *connectionUsecase) signState(userID, nonce string) (string, error) {
	now := u.now()
	claims := jwt.MapClaims{
		"typ":     stateTokenType,
		"user_id": userID,
		"nonce":   nonce,
		"iat":     now.Unix(),
		"exp":     now.Add(stateTokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.stateKey())
}

func (u *connectionUsecase) parseState(state string) (userID, nonce string, err error) {
	token, err := jwt.Parse(state, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return u.stateKey(), nil
	}, jwt.WithTimeFunc(u.now))
	if err != nil || !token.Valid {
		return "", "", ErrInvalidState
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["typ"] != stateTokenType {
		return "", "", ErrInvalidState
	}
	userID, _ = claims["user_id"].(string)
	nonce, _ = claims["nonce"].(string)
	if userID == "" || nonce == "" {
		return "", "", ErrInvalidState
	}
	return userID, nonce, nil
}

func currentState(conn *domain.MailConnection) domain.ConnectionState {
	if conn == nil {
		return domain.StateDisconnected
	}
	return conn.State
}

func (u *connectionUsecase) ConnectURL(ctx context.Context, userID string) (string, error) {
	conn, err := u.repo.FindByUserID(userID)
	if err != nil {
		return "", apperror.Store(err)
	}
	if _, err := currentState(conn).Next(domain.EventAuthorize); err != nil {
		return "", apperror.Validation("A mail sync is running right now, please try again in a minute.")
	}

	nonce := uuid.New().String()
	if _, err := u.repo.BeginAuthorization(userID, nonce); err != nil {
		return "", apperror.Store(err)
	}
	state, err := u.signState(userID, nonce)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return u.api.AuthCodeURL(state), nil
}

func (u *connectionUsecase) HandleCallback(ctx context.Context, code, state, errReason string) (*domain.MailConnection, error) {
	log := logger.Component("gmail-oauth")

	userID, nonce, err := u.parseState(state)
	if err != nil {
		// Without a verified user there is no row to reset.
		return nil, apperror.Validation("The authorization link is invalid or has expired. Send \"connect gmail\" to get a new one.")
	}

	fail := func(reason string, cause error) (*domain.MailConnection, error) {
		log.Warn().Err(cause).Str("user_id", userID).Str("reason", reason).Msg("authorization failed")
		if err := u.repo.FailAuthorization(userID, reason); err != nil {
			return nil, apperror.Store(err)
		}
		return nil, cause
	}

	if errReason != "" {
		return fail("denied: "+errReason, apperror.Validation("Gmail access was not granted."))
	}

	conn, err := u.repo.FindByUserID(userID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if conn == nil || conn.StateNonce != nonce {
		return fail("state mismatch", apperror.Validation("This authorization link is no longer valid. Send \"connect gmail\" to get a new one."))
	}
	if _, err := conn.State.Next(domain.EventGrant); err != nil {
		return fail("unexpected state "+string(conn.State), apperror.Validation("This authorization link is no longer valid. Send \"connect gmail\" to get a new one."))
	}
	if code == "" {
		return fail("missing code", apperror.Validation("Gmail did not return an authorization code."))
	}

	var token *oauth2.Token
	err = apperror.RetryOnTimeout(ctx, "oauth exchange", u.cfg.OAuthTimeout, func(ctx context.Context) error {
		var err error
		token, err = u.api.Exchange(ctx, code)
		return err
	})
	if err != nil {
		return fail("code exchange failed", err)
	}

	cred := gmail.Credentials{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, Expiry: token.Expiry}
	var profile *gmail.Profile
	err = apperror.RetryOnTimeout(ctx, "gmail profile", u.cfg.OAuthTimeout, func(ctx context.Context) error {
		var err error
		profile, err = u.api.GetProfile(ctx, cred, nil)
		return err
	})
	if err != nil {
		return fail("profile lookup failed", err)
	}

	ok, err := u.repo.CompleteAuthorization(userID, nonce, domain.Grant{
		GmailAddress: profile.EmailAddress,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		HistoryID:    profile.HistoryID,
	})
	if err != nil {
		return nil, apperror.Store(err)
	}
	if !ok {
		// A newer connect attempt replaced the nonce while we were exchanging.
		return nil, apperror.Validation("This authorization link is no longer valid. Send \"connect gmail\" to get a new one.")
	}
	log.Info().Str("user_id", userID).Msg("gmail connected")

	conn, err = u.repo.FindByUserID(userID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	u.startWatch(ctx, conn)
	return conn, nil
}

// startWatch is best-effort; the scheduled renewal retries it.
func (u *connectionUsecase) startWatch(ctx context.Context, conn *domain.MailConnection) bool {
	if u.cfg.WatchTopic == "" || conn == nil {
		return false
	}
	log := logger.Component("gmail-oauth")
	var expiresAt time.Time
	err := apperror.RetryOnTimeout(ctx, "gmail watch", u.cfg.OAuthTimeout, func(ctx context.Context) error {
		var err error
		_, expiresAt, err = u.api.Watch(ctx, credentials(conn), u.cfg.WatchTopic, tokenCallback(u.repo, conn.UserID))
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", conn.UserID).Msg("failed to start gmail watch")
		return false
	}
	if err := u.repo.SetWatchExpiry(conn.UserID, expiresAt); err != nil {
		log.Warn().Err(err).Str("user_id", conn.UserID).Msg("failed to store watch expiry")
	}
	return true
}

func (u *connectionUsecase) Disconnect(ctx context.Context, userID string) error {
	conn, err := u.repo.FindByUserID(userID)
	if err != nil {
		return apperror.Store(err)
	}
	if _, err := currentState(conn).Next(domain.EventDisconnect); err != nil {
		return apperror.Validation("Gmail is not connected.")
	}

	if conn.State.Linked() && u.cfg.WatchTopic != "" {
		err := apperror.RetryOnTimeout(ctx, "gmail stop", u.cfg.OAuthTimeout, func(ctx context.Context) error {
			return u.api.Stop(ctx, credentials(conn), nil)
		})
		if err != nil {
			lg := logger.Component("gmail-oauth")
			lg.Warn().Err(err).Str("user_id", userID).Msg("failed to stop gmail watch")
		}
	}
	if _, err := u.repo.Disconnect(userID); err != nil {
		return apperror.Store(err)
	}
	return nil
}

func (u *connectionUsecase) Status(ctx context.Context, userID string) (*domain.MailConnection, error) {
	conn, err := u.repo.FindByUserID(userID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if conn == nil {
		return &domain.MailConnection{UserID: userID, State: domain.StateDisconnected}, nil
	}
	return conn, nil
}

func (u *connectionUsecase) RenewWatches(ctx context.Context) (int, error) {
	if u.cfg.WatchTopic == "" {
		return 0, nil
	}
	conns, err := u.repo.ListLinked()
	if err != nil {
		return 0, apperror.Store(err)
	}

	renewed := 0
	for _, conn := range conns {
		if ctx.Err() != nil {
			break
		}
		if u.startWatch(ctx, conn) {
			renewed++
		}
	}
	lg := logger.Component("gmail-oauth")
	lg.Info().Int("mailboxes", len(conns)).Int("renewed", renewed).Msg("gmail watches renewed")
	return renewed, nil
}

func credentials(conn *domain.MailConnection) gmail.Credentials {
	cred := gmail.Credentials{AccessToken: conn.AccessToken, RefreshToken: conn.RefreshToken}
	if conn.TokenExpiry != nil {
		cred.Expiry = *conn.TokenExpiry
	}
	return cred
}

// tokenCallback persists refreshed tokens for userID.
func tokenCallback(repo repository.ConnectionRepository, userID string) gmail.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		if err := repo.UpdateToken(userID, token); err != nil {
			return fmt.Errorf("failed to persist refreshed token: %w", err)
		}
		return nil
	}
}

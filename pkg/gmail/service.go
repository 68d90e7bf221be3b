package gmail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"smartshop-backend/pkg/logger"
)

const user = "me"

// ErrHistoryExpired is returned by ListHistory when the start id is older
// than Gmail keeps history for.
var ErrHistoryExpired = errors.New("gmail history expired")

// Credentials is the stored OAuth credential reference of one mailbox.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// TokenUpdateFunc is called whenever the token source refreshed the access token.
type TokenUpdateFunc func(token *oauth2.Token) error

// Profile is the mailbox identity returned after the grant.
type Profile struct {
	EmailAddress string
	HistoryID    uint64
}

type Service struct {
	oauthConfig *oauth2.Config
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			lg := logger.Component("gmail")
			lg.Error().Err(err).Msg("failed to persist refreshed token")
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret, redirectURI string) *Service {
	return &Service{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				gmail.GmailReadonlyScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
	}
}

// AuthCodeURL returns the consent URL carrying state. Offline access with a
// forced consent prompt makes Google return a refresh token every time.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// GetGmailService creates Gmail service with user's credentials
func (s *Service) GetGmailService(ctx context.Context, cred Credentials, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cred.Expiry,
	}

	wrappedSource := &notifyTokenSource{
		src:      s.oauthConfig.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// GetProfile returns the mailbox address and its current history id.
func (s *Service) GetProfile(ctx context.Context, cred Credentials, onTokenRefresh TokenUpdateFunc) (*Profile, error) {
	srv, err := s.GetGmailService(ctx, cred, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	profile, err := srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get profile: %w", err)
	}
	return &Profile{EmailAddress: profile.EmailAddress, HistoryID: profile.HistoryId}, nil
}

// ListHistory returns ids of messages added to INBOX since startHistoryID,
// oldest first without duplicates, plus the newest history id seen.
func (s *Service) ListHistory(ctx context.Context, cred Credentials, startHistoryID uint64, onTokenRefresh TokenUpdateFunc) ([]string, uint64, error) {
	srv, err := s.GetGmailService(ctx, cred, onTokenRefresh)
	if err != nil {
		return nil, 0, err
	}

	var ids []string
	seen := make(map[string]struct{})
	latest := startHistoryID

	call := srv.Users.History.List(user).
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded").
		LabelId("INBOX")
	err = call.Pages(ctx, func(resp *gmail.ListHistoryResponse) error {
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil {
					continue
				}
				if _, dup := seen[added.Message.Id]; dup {
					continue
				}
				seen[added.Message.Id] = struct{}{}
				ids = append(ids, added.Message.Id)
			}
		}
		if resp.HistoryId > latest {
			latest = resp.HistoryId
		}
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrHistoryExpired
		}
		return nil, 0, fmt.Errorf("unable to list history: %w", err)
	}
	return ids, latest, nil
}

// SearchMessages returns ids of messages matching a Gmail search query.
func (s *Service) SearchMessages(ctx context.Context, cred Credentials, query string, maxResults int, onTokenRefresh TokenUpdateFunc) ([]string, error) {
	srv, err := s.GetGmailService(ctx, cred, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	resp, err := srv.Users.Messages.List(user).Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to search messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// FetchMessage downloads the raw message and parses it.
func (s *Service) FetchMessage(ctx context.Context, cred Credentials, messageID string, onTokenRefresh TokenUpdateFunc) (*Message, error) {
	srv, err := s.GetGmailService(ctx, cred, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	raw, err := srv.Users.Messages.Get(user, messageID).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to fetch message %s: %w", messageID, err)
	}

	data, err := decodeRaw(raw.Raw)
	if err != nil {
		return nil, fmt.Errorf("unable to decode message %s: %w", messageID, err)
	}

	msg, err := ParseMessage(messageID, data)
	if err != nil {
		return nil, err
	}
	if msg.Date.IsZero() && raw.InternalDate > 0 {
		msg.Date = time.UnixMilli(raw.InternalDate)
	}
	if msg.Snippet == "" {
		msg.Snippet = raw.Snippet
	}
	return msg, nil
}

// Watch sets up push notifications for the user's INBOX and returns the
// watch's history id and expiration.
func (s *Service) Watch(ctx context.Context, cred Credentials, topicName string, onTokenRefresh TokenUpdateFunc) (uint64, time.Time, error) {
	srv, err := s.GetGmailService(ctx, cred, onTokenRefresh)
	if err != nil {
		return 0, time.Time{}, err
	}

	// Only one push client per mailbox is allowed; clear any previous one.
	_ = srv.Users.Stop(user).Context(ctx).Do()

	resp, err := srv.Users.Watch(user, &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("unable to watch mailbox: %w", err)
	}
	return resp.HistoryId, time.UnixMilli(resp.Expiration), nil
}

// Stop stops push notifications for the user's mailbox
func (s *Service) Stop(ctx context.Context, cred Credentials, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.GetGmailService(ctx, cred, onTokenRefresh)
	if err != nil {
		return err
	}

	if err := srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 404
}

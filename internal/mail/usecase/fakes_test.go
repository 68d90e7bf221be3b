package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	financedomain "smartshop-backend/internal/finance/domain"
	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/internal/mail/repository"
	"smartshop-backend/pkg/ai"
	"smartshop-backend/pkg/database"
	"smartshop-backend/pkg/gmail"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type fakeMailAPI struct {
	mu sync.Mutex

	token       *oauth2.Token
	exchangeErr error
	profile     gmail.Profile
	history     []string
	newest      uint64
	historyErr  error
	search      []string
	messages    map[string]*gmail.Message
	fetchErr    map[string]error

	// hang makes Watch and Stop block until their context ends.
	hang bool

	queries     []string
	historyFrom []uint64
	fetched     []string
	watches     int
	stops       int
}

func newFakeMailAPI() *fakeMailAPI {
	return &fakeMailAPI{
		token:    &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)},
		profile:  gmail.Profile{EmailAddress: "Shopper@gmail.com", HistoryID: 500},
		messages: map[string]*gmail.Message{},
		fetchErr: map[string]error{},
	}
}

func (f *fakeMailAPI) AuthCodeURL(state string) string {
	return "https://accounts.example/o/oauth2/auth?state=" + state
}

func (f *fakeMailAPI) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.token, nil
}

func (f *fakeMailAPI) GetProfile(ctx context.Context, cred gmail.Credentials, onTokenRefresh gmail.TokenUpdateFunc) (*gmail.Profile, error) {
	p := f.profile
	return &p, nil
}

func (f *fakeMailAPI) ListHistory(ctx context.Context, cred gmail.Credentials, startHistoryID uint64, onTokenRefresh gmail.TokenUpdateFunc) ([]string, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyFrom = append(f.historyFrom, startHistoryID)
	if f.historyErr != nil {
		return nil, 0, f.historyErr
	}
	return f.history, f.newest, nil
}

func (f *fakeMailAPI) SearchMessages(ctx context.Context, cred gmail.Credentials, query string, maxResults int, onTokenRefresh gmail.TokenUpdateFunc) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.search, nil
}

func (f *fakeMailAPI) FetchMessage(ctx context.Context, cred gmail.Credentials, messageID string, onTokenRefresh gmail.TokenUpdateFunc) (*gmail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, messageID)
	if err := f.fetchErr[messageID]; err != nil {
		return nil, err
	}
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, errors.New("not found")
	}
	return msg, nil
}

func (f *fakeMailAPI) Watch(ctx context.Context, cred gmail.Credentials, topicName string, onTokenRefresh gmail.TokenUpdateFunc) (uint64, time.Time, error) {
	f.mu.Lock()
	f.watches++
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return 0, time.Time{}, ctx.Err()
	}
	return f.profile.HistoryID, time.Now().Add(7 * 24 * time.Hour), nil
}

func (f *fakeMailAPI) Stop(ctx context.Context, cred gmail.Credentials, onTokenRefresh gmail.TokenUpdateFunc) error {
	f.mu.Lock()
	f.stops++
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// fakeExtractor answers by subject keyword.
type fakeExtractor struct {
	results map[string]ai.ExpenseExtraction
	err     error
	calls   int
}

func (f *fakeExtractor) ExtractExpense(ctx context.Context, text string) (ai.ExpenseExtraction, error) {
	f.calls++
	if f.err != nil {
		return ai.ExpenseExtraction{}, f.err
	}
	for key, r := range f.results {
		if strings.Contains(text, key) {
			return r, nil
		}
	}
	return ai.ExpenseExtraction{Confidence: 0.1}, nil
}

type fakeQueue struct {
	jobs []SyncJob
	full bool
}

func (q *fakeQueue) QueueJob(job SyncJob) bool {
	if q.full {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

type testStores struct {
	db          *gorm.DB
	connections repository.ConnectionRepository
	ingestion   repository.IngestionRepository
}

func newTestStores(t *testing.T) testStores {
	db := database.NewTestDB(t,
		&domain.MailConnection{},
		&domain.ProcessedMessage{},
		&domain.ShoppingRecord{},
		&domain.PendingMessage{},
		&financedomain.Expense{},
	)
	return testStores{
		db:          db,
		connections: repository.NewConnectionRepository(db),
		ingestion:   repository.NewIngestionRepository(db),
	}
}

// link puts userID into the connected state with a checkpoint of historyID.
func (s testStores) link(t *testing.T, userID string, historyID uint64) {
	t.Helper()
	_, err := s.connections.BeginAuthorization(userID, "n")
	require.NoError(t, err)
	ok, err := s.connections.CompleteAuthorization(userID, "n", domain.Grant{
		GmailAddress: userID + "@gmail.com",
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenExpiry:  time.Now().Add(time.Hour),
		HistoryID:    historyID,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func (s testStores) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(model).Count(&n).Error)
	return n
}

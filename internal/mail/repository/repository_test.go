package repository

import (
	"sync"
	"testing"
	"time"

	financedomain "smartshop-backend/internal/finance/domain"
	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	return database.NewTestDB(t,
		&domain.MailConnection{},
		&domain.ProcessedMessage{},
		&domain.ShoppingRecord{},
		&domain.PendingMessage{},
		&financedomain.Expense{},
	)
}

func connect(t *testing.T, repo ConnectionRepository, userID string) {
	t.Helper()
	_, err := repo.BeginAuthorization(userID, "nonce-1")
	require.NoError(t, err)
	ok, err := repo.CompleteAuthorization(userID, "nonce-1", domain.Grant{
		GmailAddress: userID + "@gmail.com",
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenExpiry:  time.Now().Add(time.Hour),
		HistoryID:    100,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAuthorizationRequiresMatchingNonce(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))

	conn, err := repo.BeginAuthorization("u1", "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAuthorizationPending, conn.State)

	// A second connect attempt replaces the nonce.
	_, err = repo.BeginAuthorization("u1", "n2")
	require.NoError(t, err)

	ok, err := repo.CompleteAuthorization("u1", "n1", domain.Grant{GmailAddress: "a@gmail.com"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.CompleteAuthorization("u1", "n2", domain.Grant{GmailAddress: "a@gmail.com", HistoryID: 7})
	require.NoError(t, err)
	assert.True(t, ok)

	conn, err = repo.FindByAddress("a@gmail.com")
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, domain.StateConnected, conn.State)
	assert.Equal(t, uint64(7), conn.HistoryID)
	assert.Empty(t, conn.StateNonce)
}

func TestFailAuthorizationLeavesNoCredential(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))

	_, err := repo.BeginAuthorization("u1", "n1")
	require.NoError(t, err)
	require.NoError(t, repo.FailAuthorization("u1", "access_denied"))

	conn, err := repo.FindByUserID("u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDisconnected, conn.State)
	assert.Equal(t, "access_denied", conn.LastError)
	assert.Empty(t, conn.AccessToken)

	ok, err := repo.CompleteAuthorization("u1", "n1", domain.Grant{AccessToken: "late"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailedReauthorizationDropsOldCredential(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	connect(t, repo, "u1")

	_, err := repo.BeginAuthorization("u1", "n2")
	require.NoError(t, err)
	require.NoError(t, repo.FailAuthorization("u1", "denied: access_denied"))

	conn, err := repo.FindByUserID("u1")
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, domain.StateDisconnected, conn.State)
	assert.Empty(t, conn.AccessToken)
	assert.Empty(t, conn.RefreshToken)
	assert.Empty(t, conn.GmailAddress)
	assert.Zero(t, conn.HistoryID)
	assert.Nil(t, conn.TokenExpiry)

	found, err := repo.FindByAddress("u1@gmail.com")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSyncLease(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	connect(t, repo, "u1")
	now := time.Now()

	ok, err := repo.BeginSync("u1", now, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second pass loses and asks for a resync instead.
	ok, err = repo.BeginSync("u1", now.Add(time.Minute), 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	requested, err := repo.RequestResync("u1")
	require.NoError(t, err)
	assert.True(t, requested)

	resync, err := repo.FinishSync("u1", 150, "", now.Add(2*time.Minute), true)
	require.NoError(t, err)
	assert.True(t, resync)

	conn, err := repo.FindByUserID("u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSyncing, conn.State)
	assert.Equal(t, uint64(150), conn.HistoryID)

	resync, err = repo.FinishSync("u1", 120, "", now.Add(3*time.Minute), true)
	require.NoError(t, err)
	assert.False(t, resync)

	conn, err = repo.FindByUserID("u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, conn.State)
	assert.Equal(t, uint64(150), conn.HistoryID, "checkpoint never moves backwards")
	assert.NotNil(t, conn.LastSyncAt)

	requested, err = repo.RequestResync("u1")
	require.NoError(t, err)
	assert.False(t, requested)
}

func TestExpiredLeaseCanBeTaken(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	connect(t, repo, "u1")
	start := time.Now().Add(-time.Hour)

	ok, err := repo.BeginSync("u1", start, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.BeginSync("u1", time.Now(), 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentBeginSyncHasOneWinner(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	connect(t, repo, "u1")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.BeginSync("u1", time.Now(), time.Minute)
			if assert.NoError(t, err) && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestUpdateTokenKeepsRefreshToken(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	connect(t, repo, "u1")

	require.NoError(t, repo.UpdateToken("u1", &oauth2.Token{AccessToken: "at2", Expiry: time.Now().Add(time.Hour)}))
	conn, err := repo.FindByUserID("u1")
	require.NoError(t, err)
	assert.Equal(t, "at2", conn.AccessToken)
	assert.Equal(t, "rt", conn.RefreshToken)
}

func TestDisconnectClearsCredentials(t *testing.T) {
	repo := NewConnectionRepository(newTestDB(t))
	connect(t, repo, "u1")

	ok, err := repo.Disconnect("u1")
	require.NoError(t, err)
	assert.True(t, ok)

	conn, err := repo.FindByUserID("u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDisconnected, conn.State)
	assert.Empty(t, conn.RefreshToken)
	assert.Zero(t, conn.HistoryID)

	ok, err = repo.Disconnect("u1")
	require.NoError(t, err)
	assert.False(t, ok)

	linked, err := repo.ListLinked()
	require.NoError(t, err)
	assert.Empty(t, linked)
}

func shoppingRecord(userID, messageID string, amount float64) (*domain.ShoppingRecord, *financedomain.Expense) {
	date := time.Now().Add(-24 * time.Hour)
	return &domain.ShoppingRecord{
			UserID:    userID,
			MessageID: messageID,
			Vendor:    "momo",
			Amount:    amount,
			Category:  "shopping",
			MailDate:  date,
		}, &financedomain.Expense{
			UserID:     userID,
			Amount:     amount,
			Category:   "shopping",
			Source:     financedomain.SourceDerived,
			OccurredAt: date,
		}
}

func TestCommitExtractionIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewIngestionRepository(db)

	rec, exp := shoppingRecord("u1", "m1", 1280)
	committed, err := repo.CommitExtraction(rec, exp)
	require.NoError(t, err)
	assert.True(t, committed)

	rec2, exp2 := shoppingRecord("u1", "m1", 1280)
	committed, err = repo.CommitExtraction(rec2, exp2)
	require.NoError(t, err)
	assert.False(t, committed)

	var shopping, expenses, processed int64
	require.NoError(t, db.Model(&domain.ShoppingRecord{}).Count(&shopping).Error)
	require.NoError(t, db.Model(&financedomain.Expense{}).Count(&expenses).Error)
	require.NoError(t, db.Model(&domain.ProcessedMessage{}).Count(&processed).Error)
	assert.Equal(t, int64(1), shopping)
	assert.Equal(t, int64(1), expenses)
	assert.Equal(t, int64(1), processed)

	var expense financedomain.Expense
	require.NoError(t, db.First(&expense).Error)
	require.NotNil(t, expense.ShoppingRecordID)
	assert.Equal(t, rec.ID, *expense.ShoppingRecordID)

	done, err := repo.IsProcessed("u1", "m1")
	require.NoError(t, err)
	assert.True(t, done)

	// Another user may hold the same message id.
	rec3, exp3 := shoppingRecord("u2", "m1", 99)
	committed, err = repo.CommitExtraction(rec3, exp3)
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestPendingLifecycle(t *testing.T) {
	repo := NewIngestionRepository(newTestDB(t))

	require.NoError(t, repo.AddPending("u1", "m1", "timeout"))
	require.NoError(t, repo.AddPending("u1", "m1", "timeout again"))
	require.NoError(t, repo.AddPending("u1", "m2", "quota"))

	ids, err := repo.ListPending("u1", 5, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, ids)

	ids, err = repo.ListPending("u1", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, ids, "m1 has used its attempts")

	inserted, err := repo.MarkDiscarded("u1", "m2")
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = repo.MarkDiscarded("u1", "m2")
	require.NoError(t, err)
	assert.False(t, inserted)

	ids, err = repo.ListPending("u1", 5, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)
}

func TestShoppingStats(t *testing.T) {
	repo := NewIngestionRepository(newTestDB(t))

	for i, amount := range []float64{500, 1500, 300} {
		rec, exp := shoppingRecord("u1", string(rune('a'+i)), amount)
		if i == 1 {
			rec.Vendor = "PChome"
		}
		_, err := repo.CommitExtraction(rec, exp)
		require.NoError(t, err)
	}

	stats, err := repo.ShoppingStats("u1", time.Now().AddDate(0, 0, -30), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, 2300.0, stats.Total)
	require.Len(t, stats.TopVendors, 2)
	assert.Equal(t, domain.VendorTotal{Vendor: "PChome", Amount: 1500, Count: 1}, stats.TopVendors[0])
	assert.Equal(t, domain.VendorTotal{Vendor: "momo", Amount: 800, Count: 2}, stats.TopVendors[1])
}

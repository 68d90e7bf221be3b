package delivery

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	authdelivery "smartshop-backend/internal/auth/delivery"
	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/internal/mail/usecase"
	"smartshop-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(conn *fakeConnectionUsecase, syncUC *fakeSyncUsecase, pushToken string) *gin.Engine {
	h := NewMailHandler(conn, syncUC, pushToken)
	r := gin.New()
	r.GET("/api/gmail/callback", h.Callback)
	r.POST("/api/gmail/push", h.Push)

	authed := r.Group("/api", func(c *gin.Context) {
		c.Set(authdelivery.ContextUserID, "u1")
		c.Next()
	})
	authed.GET("/gmail/connect", h.Connect)
	authed.GET("/gmail/status", h.Status)
	authed.POST("/gmail/sync", h.Sync)
	authed.DELETE("/gmail", h.Disconnect)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func pushBody(payload string) string {
	data := base64.StdEncoding.EncodeToString([]byte(payload))
	return `{"message":{"data":"` + data + `","messageId":"1"},"subscription":"projects/p/subscriptions/gmail-sub"}`
}

func TestConnectEndpoint(t *testing.T) {
	r := newTestRouter(&fakeConnectionUsecase{url: "https://consent.example"}, &fakeSyncUsecase{}, "")

	w := do(r, http.MethodGet, "/api/gmail/connect", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"https://consent.example"}`, w.Body.String())
}

func TestCallbackEndpoint(t *testing.T) {
	conn := &fakeConnectionUsecase{conn: &domain.MailConnection{State: domain.StateConnected, GmailAddress: "a@gmail.com"}}
	r := newTestRouter(conn, &fakeSyncUsecase{}, "")

	w := do(r, http.MethodGet, "/api/gmail/callback?code=c1&state=s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"c1", "s1", ""}, conn.callbackArgs)
	assert.Contains(t, w.Body.String(), "a@gmail.com")

	conn.err = apperror.Validation("The authorization link is invalid or has expired.")
	w = do(r, http.MethodGet, "/api/gmail/callback?error=access_denied&state=s1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"", "s1", "access_denied"}, conn.callbackArgs)
}

func TestSyncEndpoint(t *testing.T) {
	syncUC := &fakeSyncUsecase{result: &domain.SyncResult{Mode: domain.ModeSearch, Committed: 1}}
	r := newTestRouter(&fakeConnectionUsecase{}, syncUC, "")

	w := do(r, http.MethodPost, "/api/gmail/sync", `{"days":14}`)
	require.Equal(t, http.StatusOK, w.Code)
	var result domain.SyncResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Committed)

	w = do(r, http.MethodPost, "/api/gmail/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []syncCall{
		{userID: "u1", mode: domain.ModeSearch, days: 14},
		{userID: "u1", mode: domain.ModeCheckpoint, days: 0},
	}, syncUC.calls)

	w = do(r, http.MethodPost, "/api/gmail/sync", `{"days":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	syncUC.err = apperror.Duplicate("sync request")
	w = do(r, http.MethodPost, "/api/gmail/sync", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPushEndpoint(t *testing.T) {
	syncUC := &fakeSyncUsecase{}
	r := newTestRouter(&fakeConnectionUsecase{}, syncUC, "")

	w := do(r, http.MethodPost, "/api/gmail/push", pushBody(`{"emailAddress":"a@gmail.com","historyId":77}`))
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, syncUC.pushes, 1)
	assert.Equal(t, domain.PushNotification{EmailAddress: "a@gmail.com", HistoryID: 77}, syncUC.pushes[0])

	// Bad payloads are acked so Pub/Sub stops redelivering them.
	w = do(r, http.MethodPost, "/api/gmail/push", pushBody(`garbage`))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, syncUC.pushes, 1)

	syncUC.pushErr = usecase.ErrQueueFull
	w = do(r, http.MethodPost, "/api/gmail/push", pushBody(`{"emailAddress":"a@gmail.com","historyId":78}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	syncUC.pushErr = apperror.Store(errors.New("db down"))
	w = do(r, http.MethodPost, "/api/gmail/push", pushBody(`{"emailAddress":"a@gmail.com","historyId":79}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPushEndpointChecksToken(t *testing.T) {
	syncUC := &fakeSyncUsecase{}
	r := newTestRouter(&fakeConnectionUsecase{}, syncUC, "secret")

	w := do(r, http.MethodPost, "/api/gmail/push", pushBody(`{"emailAddress":"a@gmail.com","historyId":1}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/gmail/push?token=secret", pushBody(`{"emailAddress":"a@gmail.com","historyId":1}`))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, syncUC.pushes, 1)
}

func TestDisconnectEndpoint(t *testing.T) {
	conn := &fakeConnectionUsecase{}
	r := newTestRouter(conn, &fakeSyncUsecase{}, "")

	w := do(r, http.MethodDelete, "/api/gmail", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"u1"}, conn.disconnected)

	conn.err = apperror.Validation("Gmail is not connected.")
	w = do(r, http.MethodDelete, "/api/gmail", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Gmail is not connected."}`, w.Body.String())
}

package delivery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	authdomain "smartshop-backend/internal/auth/domain"
	authdto "smartshop-backend/internal/auth/dto"
	"smartshop-backend/internal/auth/repository"
	"smartshop-backend/internal/auth/usecase"
	"smartshop-backend/pkg/config"
	"smartshop-backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testGatewayKey = "gateway-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T) (*gin.Engine, repository.FCMTokenRepository) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testGatewayKey), bcrypt.MinCost)
	require.NoError(t, err)

	db := database.NewTestDB(t, &authdomain.User{}, &authdomain.FCMToken{})
	fcmRepo := repository.NewFCMTokenRepository(db)
	authUC := usecase.NewAuthUsecase(repository.NewUserRepository(db), fcmRepo, &config.Config{
		JWTSecret:       "test-secret",
		JWTAccessExpiry: time.Hour,
		GatewayKeyHash:  string(hash),
	})

	h := NewAuthHandler(authUC)
	r := gin.New()
	r.POST("/api/auth/token", h.IssueToken)
	r.GET("/api/auth/me", AuthMiddleware(authUC), h.Me)
	r.PUT("/api/auth/settings", AuthMiddleware(authUC), h.UpdateSettings)
	r.POST("/api/fcm/register", AuthMiddleware(authUC), h.RegisterFCMToken)
	r.POST("/api/webhook", GatewayKeyMiddleware(authUC), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, fcmRepo
}

func do(r *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func issue(t *testing.T, r *gin.Engine) authdto.TokenResponse {
	t.Helper()
	w := do(r, http.MethodPost, "/api/auth/token",
		`{"gateway_key":"`+testGatewayKey+`","external_user_id":"telegram:42","display_name":"Mei"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp authdto.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestTokenMeAndSettings(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := issue(t, r)
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "telegram:42", resp.User.ExternalID)
	bearer := map[string]string{"Authorization": "Bearer " + resp.AccessToken}

	w := do(r, http.MethodGet, "/api/auth/me", "", bearer)
	require.Equal(t, http.StatusOK, w.Code)
	var me authdomain.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, resp.User.ID, me.ID)
	assert.True(t, me.NotificationsEnabled)

	w = do(r, http.MethodPut, "/api/auth/settings", `{"notifications_enabled":false,"notify_threshold_ratio":0.2}`, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.False(t, me.NotificationsEnabled)
	assert.InDelta(t, 0.2, me.NotifyThresholdRatio, 1e-9)

	w = do(r, http.MethodPut, "/api/auth/settings", `{"notify_threshold_ratio":1.5}`, bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokenIsStableForSameExternalUser(t *testing.T) {
	r, _ := newTestRouter(t)

	first := issue(t, r)
	second := issue(t, r)
	assert.Equal(t, first.User.ID, second.User.ID)
}

func TestTokenRejectsWrongGatewayKey(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/auth/token", `{"gateway_key":"nope","external_user_id":"telegram:1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/auth/token", `{"external_user_id":"telegram:1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthMiddlewareRejectsBadHeaders(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/api/auth/me", "", map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/api/auth/me", "", map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGatewayKeyMiddleware(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/webhook", "", map[string]string{"X-Gateway-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/webhook", "", map[string]string{"X-Gateway-Key": testGatewayKey})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRegisterFCMToken(t *testing.T) {
	r, fcmRepo := newTestRouter(t)
	resp := issue(t, r)
	bearer := map[string]string{"Authorization": "Bearer " + resp.AccessToken}

	w := do(r, http.MethodPost, "/api/fcm/register", `{"token":"device-1","platform":"Android"}`, bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(r, http.MethodPost, "/api/fcm/register", `{"token":"device-1"}`, bearer)
	require.Equal(t, http.StatusOK, w.Code)

	tokens, err := fcmRepo.GetTokensByUserID(resp.User.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "device-1", tokens[0].Token)

	w = do(r, http.MethodPost, "/api/fcm/register", `{"platform":"web"}`, bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

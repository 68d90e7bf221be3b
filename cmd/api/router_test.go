package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	authdomain "smartshop-backend/internal/auth/domain"
	authdto "smartshop-backend/internal/auth/dto"
	"smartshop-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeAuth struct {
	resolveErr error
}

func (f *fakeAuth) VerifyGatewayKey(key string) bool { return key == "gw" }

func (f *fakeAuth) IssueToken(req *authdto.TokenRequest) (*authdto.TokenResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeAuth) ValidateToken(token string) (string, error) {
	if token == "good" {
		return "u1", nil
	}
	return "", errors.New("invalid token")
}

func (f *fakeAuth) ResolveUser(externalID, displayName string) (*authdomain.User, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &authdomain.User{ID: "user-" + externalID, ExternalID: externalID, DisplayName: displayName}, nil
}

func (f *fakeAuth) GetUser(userID string) (*authdomain.User, error) {
	return &authdomain.User{ID: userID}, nil
}

func (f *fakeAuth) UpdateSettings(userID string, s authdomain.UserSettings) (*authdomain.User, error) {
	return &authdomain.User{ID: userID}, nil
}

func (f *fakeAuth) LinkTelegramChat(userID string, chatID int64) error { return nil }

func (f *fakeAuth) RegisterDevice(userID string, req *authdto.RegisterDeviceRequest) error {
	return nil
}

type echoRouter struct {
	userID string
	text   string
}

func (e *echoRouter) Route(ctx context.Context, userID, text string) string {
	e.userID, e.text = userID, text
	return "echo: " + text
}

func newTestEngine(t *testing.T, auth *fakeAuth, router *echoRouter) *gin.Engine {
	t.Helper()
	InitRuntimeConfig(RuntimeConfig{
		RouterThreshold:     0.5,
		AcceptanceThreshold: 0.6,
		OllamaBaseURL:       "http://localhost:11434",
		OllamaModel:         "llama3",
	})
	return NewHandler(auth, Handlers{Chat: NewChatHandler(router, auth)}).Engine()
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

func TestHealthAndCORS(t *testing.T) {
	r := newTestEngine(t, &fakeAuth{}, &echoRouter{})

	w := do(r, http.MethodGet, "/api/health", "", map[string]string{"Origin": "https://app.example"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(r, http.MethodOptions, "/api/chat", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebhookChat(t *testing.T) {
	router := &echoRouter{}
	r := newTestEngine(t, &fakeAuth{}, router)

	body := `{"external_user_id":"line:9","display_name":"Ann","text":"  track switch 9000 "}`
	w := do(r, http.MethodPost, "/api/webhook/chat", body, map[string]string{"X-Gateway-Key": "gw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "echo: track switch 9000", resp["reply"])
	assert.Equal(t, "user-line:9", router.userID)

	w = do(r, http.MethodPost, "/api/webhook/chat", body, map[string]string{"X-Gateway-Key": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/webhook/chat", `{"text":"hi"}`, map[string]string{"X-Gateway-Key": "gw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	long := `{"external_user_id":"line:9","text":"` + strings.Repeat("a", maxChatTextLen+1) + `"}`
	w = do(r, http.MethodPost, "/api/webhook/chat", long, map[string]string{"X-Gateway-Key": "gw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookChatStoreFailure(t *testing.T) {
	auth := &fakeAuth{resolveErr: apperror.Store(errors.New("db down"))}
	r := newTestEngine(t, auth, &echoRouter{})

	w := do(r, http.MethodPost, "/api/webhook/chat", `{"external_user_id":"line:9","text":"hi"}`, map[string]string{"X-Gateway-Key": "gw"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestAuthenticatedChat(t *testing.T) {
	router := &echoRouter{}
	r := newTestEngine(t, &fakeAuth{}, router)

	w := do(r, http.MethodPost, "/api/chat", `{"text":"budget status"}`, map[string]string{"Authorization": "Bearer good"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reply":"echo: budget status"}`, w.Body.String())
	assert.Equal(t, "u1", router.userID)

	w = do(r, http.MethodPost, "/api/chat", `{"text":"hi"}`, map[string]string{"Authorization": "Bearer bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestThresholdSettings(t *testing.T) {
	r := newTestEngine(t, &fakeAuth{}, &echoRouter{})
	key := map[string]string{"X-Gateway-Key": "gw"}

	w := do(r, http.MethodGet, "/api/settings/thresholds", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPut, "/api/settings/thresholds", `{"acceptance_threshold":0.75}`, key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0.75, GetRuntimeAcceptanceThreshold())
	assert.Equal(t, 0.5, GetRuntimeRouterThreshold())

	w = do(r, http.MethodPut, "/api/settings/thresholds", `{"router_threshold":1.2}`, key)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0.5, GetRuntimeRouterThreshold())

	w = do(r, http.MethodGet, "/api/settings/thresholds", "", key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"router_threshold":0.5,"acceptance_threshold":0.75}`, w.Body.String())
}

func TestOllamaSettings(t *testing.T) {
	r := newTestEngine(t, &fakeAuth{}, &echoRouter{})
	key := map[string]string{"X-Gateway-Key": "gw"}

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/api/tags", req.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer ollama.Close()

	w := do(r, http.MethodPut, "/api/settings/ollama", `{"ollama_base_url":"`+ollama.URL+`/","ollama_model":"qwen2"}`, key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, ollama.URL, GetRuntimeOllamaBaseURL())
	assert.Equal(t, "qwen2", GetRuntimeOllamaModel())

	w = do(r, http.MethodPut, "/api/settings/ollama", `{}`, key)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/settings/ollama/test", "", key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"connected":true`)
}

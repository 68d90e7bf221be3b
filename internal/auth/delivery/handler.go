package delivery

import (
	"errors"
	"net/http"

	authdomain "smartshop-backend/internal/auth/domain"
	authdto "smartshop-backend/internal/auth/dto"
	"smartshop-backend/internal/auth/usecase"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authUsecase usecase.AuthUsecase
}

func NewAuthHandler(authUsecase usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{authUsecase: authUsecase}
}

// IssueToken exchanges a gateway key and an external user id for an API token.
// POST /api/auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req authdto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.authUsecase.IssueToken(&req)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidGatewayKey) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid gateway key"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user with its preferences.
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authUsecase.GetUser(UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateSettings applies a partial preference update.
// PUT /api/auth/settings
func (h *AuthHandler) UpdateSettings(c *gin.Context) {
	var req authdomain.UserSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authUsecase.UpdateSettings(UserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// RegisterFCMToken stores a device token for price-drop pushes.
// POST /api/fcm/register
func (h *AuthHandler) RegisterFCMToken(c *gin.Context) {
	var req authdto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authUsecase.RegisterDevice(UserID(c), &req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device registered"})
}

func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		lg := logger.Component("auth")
		lg.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": apperror.UserMessage(err)})
}

package api

import (
	"context"
	"net/http"
	"strings"

	authdelivery "smartshop-backend/internal/auth/delivery"
	authdomain "smartshop-backend/internal/auth/domain"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// maxChatTextLen bounds one chat message.
const maxChatTextLen = 4000

// ChatRouter answers a chat message. assistant.Router implements it.
type ChatRouter interface {
	Route(ctx context.Context, userID, text string) string
}

// UserResolver creates or loads the account of a gateway user.
type UserResolver interface {
	ResolveUser(externalID, displayName string) (*authdomain.User, error)
}

// ChatHandler exposes the assistant to HTTP chat gateways.
type ChatHandler struct {
	router ChatRouter
	users  UserResolver
}

func NewChatHandler(router ChatRouter, users UserResolver) *ChatHandler {
	return &ChatHandler{router: router, users: users}
}

type webhookChatRequest struct {
	ExternalUserID string `json:"external_user_id" binding:"required"`
	DisplayName    string `json:"display_name"`
	Text           string `json:"text"`
}

type chatRequest struct {
	Text string `json:"text"`
}

// Webhook routes a message relayed by a chat gateway. The gateway key is
// checked by GatewayKeyMiddleware.
// POST /api/webhook/chat
func (h *ChatHandler) Webhook(c *gin.Context) {
	var req webhookChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Text) > maxChatTextLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	user, err := h.users.ResolveUser(req.ExternalUserID, req.DisplayName)
	if err != nil {
		status := apperror.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			lg := logger.Component("chat")
			lg.Error().Err(err).Str("external_id", req.ExternalUserID).Msg("resolve user failed")
		}
		c.JSON(status, gin.H{"error": apperror.UserMessage(err)})
		return
	}

	reply := h.router.Route(c.Request.Context(), user.ID, strings.TrimSpace(req.Text))
	c.JSON(http.StatusOK, gin.H{"reply": reply, "user_id": user.ID})
}

// Chat routes a message from an authenticated API client.
// POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Text) > maxChatTextLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	reply := h.router.Route(c.Request.Context(), authdelivery.UserID(c), strings.TrimSpace(req.Text))
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

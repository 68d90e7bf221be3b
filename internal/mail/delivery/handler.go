package delivery

import (
	"encoding/base64"
	"errors"
	"net/http"

	authdelivery "smartshop-backend/internal/auth/delivery"
	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/internal/mail/usecase"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// MailHandler serves the Gmail link, sync and push endpoints.
type MailHandler struct {
	connectionUsecase usecase.ConnectionUsecase
	syncUsecase       usecase.SyncUsecase
	pushToken         string
}

// NewMailHandler creates the handler. A non-empty pushToken must be passed
// as ?token= on push deliveries.
func NewMailHandler(connectionUsecase usecase.ConnectionUsecase, syncUsecase usecase.SyncUsecase, pushToken string) *MailHandler {
	return &MailHandler{
		connectionUsecase: connectionUsecase,
		syncUsecase:       syncUsecase,
		pushToken:         pushToken,
	}
}

type syncRequest struct {
	Days int `json:"days"`
}

// pushEnvelope is the body Pub/Sub push subscriptions POST.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Connect returns the consent URL for the caller.
// GET /api/gmail/connect
func (h *MailHandler) Connect(c *gin.Context) {
	url, err := h.connectionUsecase.ConnectURL(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Callback completes the OAuth flow. It is public; the signed state names
// the user.
// GET /api/gmail/callback?code=&state= or ?error=&state=
func (h *MailHandler) Callback(c *gin.Context) {
	conn, err := h.connectionUsecase.HandleCallback(c.Request.Context(), c.Query("code"), c.Query("state"), c.Query("error"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        conn.State,
		"gmail_address": conn.GmailAddress,
		"message":       "Gmail connected. You can close this page and send \"scan 30\" in the chat.",
	})
}

// Status reports the caller's link state.
// GET /api/gmail/status
func (h *MailHandler) Status(c *gin.Context) {
	conn, err := h.connectionUsecase.Status(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

// Sync runs a pass synchronously. With days it scans that window, otherwise
// it continues from the checkpoint.
// POST /api/gmail/sync
func (h *MailHandler) Sync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Days < 0 || req.Days > 365 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
		return
	}

	mode := domain.ModeCheckpoint
	if req.Days > 0 {
		mode = domain.ModeSearch
	}
	result, err := h.syncUsecase.Sync(c.Request.Context(), authdelivery.UserID(c), mode, req.Days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Push receives Pub/Sub push deliveries. A 2xx acks the message; anything
// else makes Pub/Sub redeliver it.
// POST /api/gmail/push
func (h *MailHandler) Push(c *gin.Context) {
	log := logger.Component("mail-push")
	if h.pushToken != "" && c.Query("token") != h.pushToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid push token"})
		return
	}

	var env pushEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		log.Warn().Err(err).Msg("malformed push envelope dropped")
		c.Status(http.StatusNoContent)
		return
	}
	n, err := DecodeNotification(env.Message.Data)
	if err != nil {
		// Redelivery cannot fix a bad payload.
		log.Warn().Err(err).Str("pubsub_message_id", env.Message.MessageID).Msg("malformed push payload dropped")
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.syncUsecase.HandlePush(c.Request.Context(), n); err != nil {
		if errors.Is(err, usecase.ErrQueueFull) {
			log.Warn().Str("email", n.EmailAddress).Msg("sync queue full, push nacked")
			c.Status(http.StatusServiceUnavailable)
			return
		}
		log.Error().Err(err).Msg("push handling failed")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// Disconnect unlinks the caller's mailbox.
// DELETE /api/gmail
func (h *MailHandler) Disconnect(c *gin.Context) {
	if err := h.connectionUsecase.Disconnect(c.Request.Context(), authdelivery.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": domain.StateDisconnected})
}

// DecodeNotification decodes the base64 Gmail change payload carried in a
// Pub/Sub message.
func DecodeNotification(data string) (domain.PushNotification, error) {
	var n domain.PushNotification
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(data); err != nil {
			return n, err
		}
	}
	return domain.ParseNotification(raw)
}

func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		lg := logger.Component("mail")
		lg.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": apperror.UserMessage(err)})
}

package notification

import (
	"context"
	"errors"
	"fmt"

	authdomain "smartshop-backend/internal/auth/domain"
	pricedomain "smartshop-backend/internal/price/domain"
	"smartshop-backend/pkg/fcm"
	"smartshop-backend/pkg/logger"
	"smartshop-backend/pkg/money"
)

// UserFinder loads notification preferences.
type UserFinder interface {
	FindByID(id string) (*authdomain.User, error)
}

// DeviceTokens lists and forgets FCM registration tokens.
type DeviceTokens interface {
	GetTokensByUserID(userID string) ([]authdomain.FCMToken, error)
	DeleteTokens(tokens []string) error
}

// PushSender is the FCM surface. *fcm.Client implements it.
type PushSender interface {
	SendMulticast(ctx context.Context, tokens []string, push fcm.Push) ([]string, error)
}

// ChatSender delivers a text message to a chat. The Telegram transport
// implements it.
type ChatSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Dispatcher fans price-drop events out to the user's devices and chat.
type Dispatcher struct {
	users  UserFinder
	tokens DeviceTokens
	push   PushSender
	chat   ChatSender
}

// NewDispatcher creates a dispatcher. push may be nil when FCM is not
// configured.
func NewDispatcher(users UserFinder, tokens DeviceTokens, push PushSender) *Dispatcher {
	return &Dispatcher{users: users, tokens: tokens, push: push}
}

// SetChatSender sets the chat channel, usually the Telegram bot.
func (d *Dispatcher) SetChatSender(chat ChatSender) {
	d.chat = chat
}

// PriceDropText is the message shown for a threshold crossing.
func PriceDropText(e pricedomain.PriceDropEvent) string {
	text := fmt.Sprintf("Price drop: %s is now %s on %s (your target %s).",
		e.ProductName, money.FormatTWD(e.Price), e.Platform, money.FormatTWD(e.TargetPrice))
	if e.URL != "" {
		text += "\n" + e.URL
	}
	return text
}

// NotifyPriceDrop delivers on every configured channel. It fails only when
// no channel succeeded and at least one failed.
func (d *Dispatcher) NotifyPriceDrop(ctx context.Context, event pricedomain.PriceDropEvent) error {
	log := logger.Component("notification").With().Str("user_id", event.UserID).Str("product_id", event.ProductID).Logger()

	user, err := d.users.FindByID(event.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || !user.NotificationsEnabled {
		log.Debug().Msg("notifications disabled, event dropped")
		return nil
	}

	var errs []error
	delivered := 0

	if d.push != nil && d.tokens != nil {
		n, err := d.sendPush(ctx, event)
		if err != nil {
			errs = append(errs, err)
		}
		delivered += n
	}

	if d.chat != nil && user.TelegramChatID != 0 {
		if err := d.chat.SendText(ctx, user.TelegramChatID, PriceDropText(event)); err != nil {
			errs = append(errs, fmt.Errorf("chat: %w", err))
		} else {
			delivered++
		}
	}

	if delivered == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		log.Warn().Err(err).Msg("notification channel failed")
	}
	log.Info().Int("channels", delivered).Msg("price drop delivered")
	return nil
}

// sendPush returns the number of devices reached.
func (d *Dispatcher) sendPush(ctx context.Context, event pricedomain.PriceDropEvent) (int, error) {
	tokens, err := d.tokens.GetTokensByUserID(event.UserID)
	if err != nil {
		return 0, fmt.Errorf("fcm tokens: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failed, err := d.push.SendMulticast(ctx, tokenStrings, fcm.Push{
		Title: "Price drop: " + event.ProductName,
		Body:  fmt.Sprintf("Now %s on %s (target %s)", money.FormatTWD(event.Price), event.Platform, money.FormatTWD(event.TargetPrice)),
		Link:  event.URL,
		Data: map[string]string{
			"type":       "price_drop",
			"product_id": event.ProductID,
			"price":      fmt.Sprintf("%.2f", event.Price),
			"platform":   event.Platform,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("fcm: %w", err)
	}

	if len(failed) > 0 {
		if err := d.tokens.DeleteTokens(failed); err != nil {
			lg := logger.Component("notification")
			lg.Warn().Err(err).Int("tokens", len(failed)).Msg("failed to clean up rejected tokens")
		}
	}
	return len(tokenStrings) - len(failed), nil
}

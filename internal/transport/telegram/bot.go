package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	authdomain "smartshop-backend/internal/auth/domain"
	"smartshop-backend/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ExternalIDPrefix scopes Telegram user ids in User.ExternalID.
const ExternalIDPrefix = "telegram:"

// maxMessageLen stays under Telegram's 4096 character limit.
const maxMessageLen = 4000

// BotAPI is the part of tgbotapi.BotAPI the transport uses, so tests can
// fake it.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type botWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *botWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *botWrapper) StopReceivingUpdates() { w.bot.StopReceivingUpdates() }

func (w *botWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) { return w.bot.Send(c) }

func (w *botWrapper) GetSelf() tgbotapi.User { return w.bot.Self }

// NewBotAPI logs in with token.
func NewBotAPI(token string) (BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, http.DefaultClient)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &botWrapper{bot: bot}, nil
}

// ChatRouter answers a chat message. assistant.Router implements it.
type ChatRouter interface {
	Route(ctx context.Context, userID, text string) string
}

// UserResolver maps transport users to accounts. auth/usecase.AuthUsecase
// implements it.
type UserResolver interface {
	ResolveUser(externalID, displayName string) (*authdomain.User, error)
	LinkTelegramChat(userID string, chatID int64) error
}

// Transport long-polls Telegram, routes each text message and replies in
// the same chat. It also sends notifications.
type Transport struct {
	bot    BotAPI
	router ChatRouter
	users  UserResolver

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTransport(bot BotAPI, router ChatRouter, users UserResolver) *Transport {
	return &Transport{bot: bot, router: router, users: users}
}

// Start begins polling. It returns immediately.
func (t *Transport) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil {
					continue
				}
				t.wg.Add(1)
				go func(msg *tgbotapi.Message) {
					defer t.wg.Done()
					t.handleMessage(ctx, msg)
				}(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	lg := logger.Component("telegram")
	lg.Info().Str("bot", t.bot.GetSelf().UserName).Msg("polling started")
}

// Stop ends polling and waits for in-flight replies.
func (t *Transport) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.bot.StopReceivingUpdates()
	t.wg.Wait()
	lg := logger.Component("telegram")
	lg.Info().Msg("stopped")
}

func (t *Transport) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	log := logger.Component("telegram")
	if msg.From == nil || msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		return
	}

	externalID := ExternalIDPrefix + strconv.FormatInt(msg.From.ID, 10)
	user, err := t.users.ResolveUser(externalID, displayName(msg.From))
	if err != nil {
		log.Error().Err(err).Str("external_id", externalID).Msg("failed to resolve user")
		_ = t.SendText(ctx, msg.Chat.ID, "Sorry, something went wrong on our side, please try again later.")
		return
	}
	if user.TelegramChatID != msg.Chat.ID {
		if err := t.users.LinkTelegramChat(user.ID, msg.Chat.ID); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to store chat id")
		}
	}

	reply := t.router.Route(ctx, user.ID, text)
	if err := t.SendText(ctx, msg.Chat.ID, reply); err != nil {
		log.Warn().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to send reply")
	}
}

// SendText delivers text to chatID in chunks of at most 4000 characters.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range SplitMessage(text, maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// SplitMessage cuts text into chunks of at most max runes, preferring to
// break after a newline.
func SplitMessage(text string, max int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	for len(runes) > max {
		cut := max
		for i := max - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(chunks, string(runes))
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

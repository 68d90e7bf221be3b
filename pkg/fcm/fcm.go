package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"smartshop-backend/pkg/logger"
)

// Client wraps Firebase Cloud Messaging
type Client struct {
	messagingClient *messaging.Client
}

// NewClient creates a new FCM client using the provided credentials file
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	lg := logger.Component("fcm")
	lg.Info().Msg("client initialized")
	return &Client{messagingClient: messagingClient}, nil
}

// Push is a user-facing alert. Link is opened when the notification is tapped.
type Push struct {
	Title string
	Body  string
	Link  string
	Data  map[string]string
}

func (p Push) data() map[string]string {
	data := make(map[string]string, len(p.Data)+1)
	for k, v := range p.Data {
		data[k] = v
	}
	if p.Link != "" {
		data["link"] = p.Link
	}
	return data
}

// SendMulticast delivers the push to every token and returns the tokens FCM
// rejected so the caller can forget them.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, push Push) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: push.Title,
			Body:  push.Body,
		},
		Data: push.data(),
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if push.Link != "" {
		message.Webpush = &messaging.WebpushConfig{
			FCMOptions: &messaging.WebpushFCMOptions{Link: push.Link},
		}
	}

	response, err := c.messagingClient.SendEachForMulticast(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send FCM multicast message: %w", err)
	}

	log := logger.Component("fcm")
	log.Debug().Int("success", response.SuccessCount).Int("failure", response.FailureCount).Msg("multicast sent")

	var failed []string
	for i, resp := range response.Responses {
		if !resp.Success {
			failed = append(failed, tokens[i])
			log.Warn().Err(resp.Error).Str("token_prefix", prefix(tokens[i])).Msg("token rejected")
		}
	}
	return failed, nil
}

func prefix(token string) string {
	if len(token) > 12 {
		return token[:12]
	}
	return token
}

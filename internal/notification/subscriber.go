package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/pkg/logger"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PushHandler receives decoded Gmail change notifications. A nil error acks
// the Pub/Sub message. mail/usecase.SyncUsecase implements it.
type PushHandler interface {
	HandlePush(ctx context.Context, n domain.PushNotification) error
}

// Subscriber pulls Gmail push notifications from the `<topic>-sub`
// subscription. Redelivered messages are passed through; the ingestion
// dedup gate makes them harmless.
type Subscriber struct {
	pubsubClient *pubsub.Client
	handler      PushHandler
	topicName    string
	subName      string
}

func NewSubscriber(projectID, topicName, credentialsFile string, handler PushHandler) (*Subscriber, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Subscriber{
		pubsubClient: client,
		handler:      handler,
		topicName:    topicName,
		subName:      topicName + "-sub",
	}, nil
}

// Start blocks receiving messages until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	log := logger.Component("pubsub")
	log.Info().Str("topic", s.topicName).Str("subscription", s.subName).Msg("starting push subscriber")

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.handle(ctx, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive on %s: %w", s.subName, err)
	}
	return nil
}

// Close releases the Pub/Sub client.
func (s *Subscriber) Close() error {
	return s.pubsubClient.Close()
}

func (s *Subscriber) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	log := logger.Component("pubsub")

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %s: %w", s.subName, err)
	}
	if exists {
		return sub, nil
	}

	topic := s.pubsubClient.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", s.topicName, err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist", s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %s: %w", s.subName, err)
	}
	log.Info().Str("subscription", s.subName).Msg("subscription created")
	return sub, nil
}

// handle reports whether the message should be acked. Undecodable payloads
// are acked since redelivery cannot fix them.
func (s *Subscriber) handle(ctx context.Context, data []byte) bool {
	log := logger.Component("pubsub")

	n, err := domain.ParseNotification(data)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed notification")
		return true
	}
	if err := s.handler.HandlePush(ctx, n); err != nil {
		log.Warn().Err(err).Str("email", n.EmailAddress).Uint64("history_id", n.HistoryID).Msg("notification nacked")
		return false
	}
	return true
}

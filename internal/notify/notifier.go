package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// Mail templates consumed by the mail worker.
const (
	MailWelcome               = "welcome"
	MailSubscriptionActivated = "subscription_activated"
	MailFreeSubscription      = "free_subscription"
)

// MailJob is the message published for every outbound email.
type MailJob struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Data     map[string]string `json:"data,omitempty"`
}

// Publisher defines an interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// PubSubPublisher is an implementation of Publisher using Google Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
}

// NewPublisher creates a new PubSubPublisher for the given GCP project.
func NewPublisher(ctx context.Context, projectID string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Pub/Sub client: %w", err)
	}
	return &PubSubPublisher{client: client}, nil
}

// Publish sends the payload to the given Pub/Sub topic and returns the message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	t := p.client.Topic(topic)
	result := t.Publish(ctx, &pubsub.Message{Data: payload})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish message to topic %s: %w", topic, err)
	}
	return id, nil
}

// Notifier dispatches mail jobs after ledger commits. Dispatch is best-effort:
// a publish failure is logged and never propagated to the caller, so a failed
// email cannot undo a committed mutation.
type Notifier struct {
	publisher Publisher
	topic     string
	logger    zerolog.Logger
}

// NewNotifier creates a Notifier with a scoped logger. A nil publisher yields
// a Notifier that only logs, which keeps local development mail-free.
func NewNotifier(publisher Publisher, topic string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		topic:     topic,
		logger:    logger.With().Str("service", "Notifier").Logger(),
	}
}

// Send publishes a mail job with a short timeout, detached from the caller's
// context so a cancelled request does not drop a post-commit notification.
func (n *Notifier) Send(job MailJob) {
	if n.publisher == nil {
		n.logger.Debug().Str("template", job.Template).Str("to", job.To).Msg("Mail publisher not configured, skipping")
		return
	}
	payload, err := json.Marshal(job)
	if err != nil {
		n.logger.Error().Err(err).Str("template", job.Template).Msg("Failed to marshal mail job")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := n.publisher.Publish(ctx, n.topic, payload); err != nil {
		n.logger.Error().Err(err).Str("template", job.Template).Str("to", job.To).Msg("Failed to publish mail job")
	}
}

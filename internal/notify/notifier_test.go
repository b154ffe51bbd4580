package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	topic   string
	payload []byte
	err     error
}

func (p *capturingPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	p.topic = topic
	p.payload = payload
	return "msg-1", p.err
}

func TestNotifierPublishesMailJob(t *testing.T) {
	pub := &capturingPublisher{}
	n := NewNotifier(pub, "mail_jobs", zerolog.Nop())

	n.Send(MailJob{Template: MailWelcome, To: "a@example.com", Data: map[string]string{"name": "A"}})

	assert.Equal(t, "mail_jobs", pub.topic)
	var job MailJob
	require.NoError(t, json.Unmarshal(pub.payload, &job))
	assert.Equal(t, MailWelcome, job.Template)
	assert.Equal(t, "a@example.com", job.To)
	assert.Equal(t, "A", job.Data["name"])
}

func TestNotifierNilPublisherIsNoop(t *testing.T) {
	n := NewNotifier(nil, "mail_jobs", zerolog.Nop())
	// Must not panic.
	n.Send(MailJob{Template: MailFreeSubscription, To: "a@example.com"})
}

func TestNotifierSwallowsPublishError(t *testing.T) {
	pub := &capturingPublisher{err: errors.New("broker down")}
	n := NewNotifier(pub, "mail_jobs", zerolog.Nop())
	// Best-effort: errors are logged, never returned or panicked.
	n.Send(MailJob{Template: MailSubscriptionActivated, To: "a@example.com"})
	assert.NotNil(t, pub.payload)
}

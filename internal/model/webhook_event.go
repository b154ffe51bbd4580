package model

import "time"

// WebhookEvent marks an external event as applied. The (source, external_id)
// pair is unique, which makes replayed deliveries and promotion reruns no-ops.
type WebhookEvent struct {
	Source     string    `db:"source" json:"source"`
	ExternalID string    `db:"external_id" json:"external_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

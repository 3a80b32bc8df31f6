// Package mq hands poll notifications to an outbound queue. Delivery
// (mail rendering, push) happens downstream.
package mq

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notification is one message about a poll addressed to a set of users.
// Locales carries each recipient's locale for downstream rendering.
type Notification struct {
	ID             string                 `json:"id"`
	Kind           string                 `json:"kind"`
	PollID         uint                   `json:"poll_id"`
	RecipientIDs   []uint                 `json:"recipient_ids"`
	IdempotencyKey string                 `json:"idempotency_key"`
	Locales        map[uint]string        `json:"locales,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewNotification stamps a fresh message id.
func NewNotification(kind string, pollID uint, key string, recipients []uint, payload map[string]interface{}) Notification {
	return Notification{
		ID:             uuid.NewString(),
		Kind:           kind,
		PollID:         pollID,
		RecipientIDs:   recipients,
		IdempotencyKey: key,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}
}

// Dispatcher publishes notifications. Send may be retried by the caller and
// must tolerate seeing the same IdempotencyKey twice.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) error
	Close() error
}

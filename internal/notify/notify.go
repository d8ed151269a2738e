// Package notify delivers price alerts over email or Telegram.
package notify

import (
	"context"

	"easy2trade/internal/types"

	"github.com/pkg/errors"
)

// ErrDelivery wraps every failed send. Sends are never retried.
var ErrDelivery = errors.New("notification delivery failed")

type Message struct {
	To      string
	Subject string
	Body    string
}

type Notifier interface {
	Send(ctx context.Context, m Message) error
	// Channel names the transport, e.g. "email".
	Channel() string
	// RecipientFor picks the address to use from the saved preferences;
	// an empty result means the channel is not configured.
	RecipientFor(p types.NotificationPreferences) string
}

// Package notify publishes user-facing events for the chat surface.
package notify

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/sidestake/exchange/internal/domain"
	"github.com/sidestake/exchange/internal/infra"
)

// Topic carries all chat-surface notifications.
const Topic = "exchange.notifications"

// Notifier delivers user-facing events. Delivery is best effort: a failed
// publish never rolls back the state change it describes.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// KafkaNotifier publishes notifications to Kafka, keyed by recipient so each
// user's events stay ordered.
type KafkaNotifier struct {
	producer *infra.KafkaProducer
	logger   *slog.Logger
}

// NewKafkaNotifier creates a notifier over the given producer.
func NewKafkaNotifier(producer *infra.KafkaProducer, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, logger: logger}
}

func (n *KafkaNotifier) Notify(ctx context.Context, ev domain.Notification) {
	key := []byte(strconv.FormatInt(ev.RecipientExternalID, 10))
	if err := n.producer.Publish(ctx, Topic, key, ev.Encode()); err != nil {
		n.logger.Error("publish notification failed",
			"kind", ev.Kind, "recipient", ev.RecipientExternalID, "error", err)
		return
	}
	if n.producer.Enabled() {
		n.logger.Debug("notification published", "kind", ev.Kind, "recipient", ev.RecipientExternalID)
	}
}

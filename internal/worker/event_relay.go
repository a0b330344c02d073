package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/iam-service/internal/events"
)

// Publisher is the subset of the go-redis client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// EventRelay forwards committed IAM events to a Redis pub/sub channel.
type EventRelay struct {
	publisher Publisher
	channel   string
	logger    *zap.Logger
}

// NewEventRelay builds a relay publishing to channel.
func NewEventRelay(publisher Publisher, channel string, logger *zap.Logger) *EventRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventRelay{publisher: publisher, channel: channel, logger: logger}
}

// StartEventRelay subscribes the relay to every IAM event. A nil publisher
// leaves the dispatcher untouched.
func StartEventRelay(dispatcher events.Dispatcher, relay *EventRelay) {
	if relay == nil || relay.publisher == nil {
		return
	}
	dispatcher.SubscribeAll(relay.Handle)
	relay.logger.Info("event relay started", zap.String("channel", relay.channel))
}

// Handle publishes one event as JSON.
func (r *EventRelay) Handle(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if err := r.publisher.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("publish event failed",
			zap.String("event", string(event.Type)),
			zap.String("entity_id", event.EntityID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-outpass-api/internal/models"
)

// outingEventsChannel is the pub/sub channel carrying committed outing
// transitions for live dashboard views.
const outingEventsChannel = "outings.events"

// OutingStream publishes and consumes the outing change feed over Redis
// pub/sub. The feed is a read fan-out: it is never consulted to decide
// write eligibility.
type OutingStream struct {
	client *redis.Client
	logger *zap.Logger
}

// NewOutingStream constructs the stream.
func NewOutingStream(client *redis.Client, logger *zap.Logger) *OutingStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutingStream{client: client, logger: logger}
}

// Publish emits a change event. Failures are logged, not propagated: the
// transition already committed and must not be rolled back over a feed
// hiccup.
func (s *OutingStream) Publish(ctx context.Context, event models.OutingEvent) {
	if s.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal outing event", zap.Error(err))
		return
	}
	if err := s.client.Publish(ctx, outingEventsChannel, payload).Err(); err != nil {
		s.logger.Warn("failed to publish outing event", zap.String("event", event.Event), zap.Error(err))
	}
}

// Subscribe returns a channel of change events. The subscription ends when
// the context is cancelled; the returned channel is closed on exit.
func (s *OutingStream) Subscribe(ctx context.Context) (<-chan models.OutingEvent, error) {
	if s.client == nil {
		return nil, fmt.Errorf("outing stream requires a redis client")
	}

	sub := s.client.Subscribe(ctx, outingEventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe outing events: %w", err)
	}

	events := make(chan models.OutingEvent, 16)
	go func() {
		defer close(events)
		defer sub.Close()
		raw := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var event models.OutingEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("dropping malformed outing event", zap.Error(err))
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

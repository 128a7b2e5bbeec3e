// Package events fans widget changes out to live subscribers (SSE and
// WebSocket clients) over Watermill.
package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/consultationhouse/site/backend/internal/config"
	"github.com/consultationhouse/site/backend/internal/model/chat"
)

const topicPrefix = "widget."

// Topic returns the topic carrying a widget's events.
func Topic(widgetID string) string {
	return topicPrefix + widgetID
}

// Bus publishes widget events and hands out per-widget subscriptions.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	shared     bool
	redis      *redis.Client
	logger     zerolog.Logger
}

// NewBus builds the transport named by cfg: Redis Streams when an address
// is configured, an in-process Go channel pub/sub otherwise.
func NewBus(cfg config.EventsConfig, logger zerolog.Logger) (*Bus, error) {
	wmLogger := NewWatermillLogger(logger)

	if cfg.RedisAddr == "" {
		return NewChannelBus(logger), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wmLogger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream publisher")
	}

	// No consumer group: every subscriber sees every event (fan-out).
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:       client,
		Unmarshaller: marshaler,
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream subscriber")
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("widget events use redis streams")
	return &Bus{publisher: pub, subscriber: sub, redis: client, logger: logger}, nil
}

// NewChannelBus returns an in-process bus.
func NewChannelBus(logger zerolog.Logger) *Bus {
	// Publish returns once every subscriber has acked. Subscriptions ack on
	// receipt, which keeps a widget's events in publish order without letting
	// a slow consumer hold up the publisher.
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, NewWatermillLogger(logger))
	return &Bus{publisher: pubSub, subscriber: pubSub, shared: true, logger: logger}
}

// Publish sends evt to the widget's topic. Failures are logged and dropped;
// the widget transcript stays authoritative.
func (b *Bus) Publish(evt chat.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error().Err(err).Str("widget", evt.WidgetID).Msg("marshal widget event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.publisher.Publish(Topic(evt.WidgetID), msg); err != nil {
		b.logger.Warn().Err(err).Str("widget", evt.WidgetID).Str("event", string(evt.Type)).Msg("publish widget event")
	}
}

// SubscriptionBuffer is how many undelivered events a subscriber may hold
// before it is cut off.
const SubscriptionBuffer = 16

// Subscribe streams a widget's events until ctx is done. Delivery never
// waits on the consumer: a subscriber that falls SubscriptionBuffer events
// behind has its channel closed and must resubscribe, starting again from a
// snapshot.
func (b *Bus) Subscribe(ctx context.Context, widgetID string) (<-chan chat.Event, error) {
	subCtx, cancel := context.WithCancel(ctx)
	messages, err := b.subscriber.Subscribe(subCtx, Topic(widgetID))
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "subscribe to widget %s", widgetID)
	}

	out := make(chan chat.Event, SubscriptionBuffer)
	go func() {
		defer close(out)
		defer cancel()

		overflowed := false
		for msg := range messages {
			msg.Ack()
			if overflowed {
				continue
			}

			var evt chat.Event
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				b.logger.Warn().Err(err).Str("widget", widgetID).Msg("decode widget event")
				continue
			}

			select {
			case out <- evt:
			default:
				// Keep acking until the transport closes the channel.
				b.logger.Warn().Str("widget", widgetID).Msg("widget subscriber too slow, closing subscription")
				overflowed = true
				cancel()
			}
		}
	}()
	return out, nil
}

// Close shuts down the transport.
func (b *Bus) Close() error {
	var firstErr error
	if err := b.publisher.Close(); err != nil {
		firstErr = err
	}
	if !b.shared {
		if err := b.subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

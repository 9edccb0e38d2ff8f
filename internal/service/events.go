package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/observability"
)

const eventBufferSize = 16

// EventPublisher announces roster changes.
type EventPublisher interface {
	Publish(ctx context.Context, event dto.StudentEvent)
}

// EventBroker fans roster change events out to local stream subscribers and, when configured, to
// other nodes over NATS or Redis pub/sub. NATS wins when both are available.
type EventBroker struct {
	mu          sync.RWMutex
	subscribers map[chan dto.StudentEvent]struct{}

	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

// NewEventBroker constructs an event broker. Either transport may be nil.
func NewEventBroker(redisClient *redis.Client, natsConn *nats.Conn, channel string, logger zerolog.Logger) *EventBroker {
	channel = strings.TrimSpace(channel)
	broker := &EventBroker{
		subscribers: make(map[chan dto.StudentEvent]struct{}),
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "event_broker").Logger(),
	}

	if channel == "" {
		return broker
	}

	if natsConn != nil {
		broker.nats = natsConn
		broker.natsSubject = strings.ReplaceAll(channel, ":", ".")
	} else if redisClient != nil {
		broker.redis = redisClient
		broker.redisChannel = channel
	}

	return broker
}

// NodeID identifies this process as an event source.
func (b *EventBroker) NodeID() string {
	return b.nodeID
}

// Start consumes events published by other nodes until the context is cancelled.
func (b *EventBroker) Start(ctx context.Context) {
	if b.nats != nil {
		go b.consumeNATS(ctx)
		return
	}
	if b.redis != nil {
		go b.consumeRedis(ctx)
	}
}

// Subscribe registers a local listener. The returned function unsubscribes and closes the channel.
func (b *EventBroker) Subscribe() (<-chan dto.StudentEvent, func()) {
	ch := make(chan dto.StudentEvent, eventBufferSize)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// SubscriberCount returns the number of local listeners.
func (b *EventBroker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers the event locally and forwards it to other nodes.
func (b *EventBroker) Publish(ctx context.Context, event dto.StudentEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.Source = b.nodeID

	b.broadcast(event)

	if err := b.forward(ctx, event); err != nil {
		b.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to forward roster event")
	}
}

func (b *EventBroker) broadcast(event dto.StudentEvent) {
	observability.EventsPublished().WithLabelValues(event.Type).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Warn().Str("type", event.Type).Msg("dropping roster event for slow subscriber")
		}
	}
}

func (b *EventBroker) forward(ctx context.Context, event dto.StudentEvent) error {
	if b.nats == nil && b.redis == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if b.nats != nil {
		return b.nats.Publish(b.natsSubject, payload)
	}
	return b.redis.Publish(ctx, b.redisChannel, payload).Err()
}

func (b *EventBroker) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			b.logger.Error().Err(err).Msg("roster redis subscription closed")
			return
		}
		b.handleRemote([]byte(msg.Payload))
	}
}

func (b *EventBroker) consumeNATS(ctx context.Context) {
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleRemote(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to roster nats subject")
		return
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to drain roster nats subscription")
	}
}

func (b *EventBroker) handleRemote(payload []byte) {
	var event dto.StudentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid roster event payload")
		return
	}

	if event.Source == b.nodeID {
		return
	}

	b.broadcast(event)
}

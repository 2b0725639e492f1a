package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"courier/internal/domain"
)

// DefaultChannel is the pub/sub channel carrying persisted messages.
const DefaultChannel = "courier:messages"

// RedisBridge publishes messages through Redis so that every server node
// delivers them to its own hub. It replaces direct hub publication when more
// than one node shares a database.
type RedisBridge struct {
	client  redis.UniversalClient
	channel string
	local   domain.MessagePublisher
	logger  *zap.Logger
}

// NewRedisBridge returns a bridge delivering to local.
func NewRedisBridge(
	client redis.UniversalClient,
	channel string,
	local domain.MessagePublisher,
	logger *zap.Logger,
) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With(zap.String("component", "redis-bridge")),
	}
}

// PublishMessage sends m to the shared channel. When Redis is unreachable the
// message is still delivered to connections joined on this node.
func (b *RedisBridge) PublishMessage(ctx context.Context, m domain.Message) error {
	payload, err := EncodeBridgeMessage(m)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("redis publish failed, delivering locally",
			zap.String("messageID", m.ID.String()),
			zap.Error(err),
		)
		if lerr := b.local.PublishMessage(ctx, m); lerr != nil {
			return fmt.Errorf("redis publish: %w (local: %v)", err, lerr)
		}
	}
	return nil
}

// Run subscribes to the channel and delivers every message to the local hub
// until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.logger.Info("subscribed", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m, err := DecodeBridgeMessage([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping malformed bridge payload", zap.Error(err))
				continue
			}
			if err := b.local.PublishMessage(ctx, m); err != nil {
				b.logger.Warn("local publish failed",
					zap.String("messageID", m.ID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

// EncodeBridgeMessage serialises m for the bridge channel.
func EncodeBridgeMessage(m domain.Message) ([]byte, error) { return json.Marshal(m) }

// DecodeBridgeMessage parses a bridge payload.
func DecodeBridgeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return domain.Message{}, err
	}
	if m.ID == "" || m.ConversationID == "" {
		return domain.Message{}, fmt.Errorf("bridge payload missing ids")
	}
	return m, nil
}

var _ domain.MessagePublisher = (*RedisBridge)(nil)

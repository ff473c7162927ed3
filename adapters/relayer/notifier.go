package relayer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// ReadyEvent announces that the plaintext of a decryption can be polled
type ReadyEvent struct {
	RelayerID string `json:"relayer_id"`
}

// WatermillNotifier implements DecryptionNotifier over a Watermill topic
type WatermillNotifier struct {
	subscriber message.Subscriber
	topic      string
	logger     *zap.Logger
}

// NewWatermillNotifier creates a notifier reading ReadyEvent messages from
// topic
func NewWatermillNotifier(subscriber message.Subscriber, topic string, logger *zap.Logger) *WatermillNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatermillNotifier{
		subscriber: subscriber,
		topic:      topic,
		logger:     logger,
	}
}

// Subscribe streams relayer ids until ctx is done
func (n *WatermillNotifier) Subscribe(ctx context.Context) (<-chan string, error) {
	messages, err := n.subscriber.Subscribe(ctx, n.topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.topic, err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range messages {
			var event ReadyEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil || event.RelayerID == "" {
				n.logger.Warn("dropping malformed ready event", zap.String("message_uuid", msg.UUID), zap.Error(err))
				msg.Ack()
				continue
			}
			select {
			case out <- event.RelayerID:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()

	return out, nil
}

// PublishReady announces relayerID on topic. Relayer-side services use it
// to wake pollers.
func PublishReady(publisher message.Publisher, topic, relayerID string) error {
	payload, err := json.Marshal(ReadyEvent{RelayerID: relayerID})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := publisher.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
)

// DefaultTopic is the topic prefix used when none is configured
const DefaultTopic = "fhevm"

// StatusEvent represents a session status transition
type StatusEvent struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

// DecryptionEvent represents a settled decryption request
type DecryptionEvent struct {
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Type      string `json:"type,omitempty"`
	Value     string `json:"value,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher       message.Publisher
	statusTopic     string
	decryptionTopic string
}

// NewWatermillPublisher creates a new Watermill publisher. Events go to
// "<topic>.status" and "<topic>.decryption".
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher:       publisher,
		statusTopic:     StatusTopic(topic),
		decryptionTopic: DecryptionTopic(topic),
	}
}

// StatusTopic returns the status topic under prefix
func StatusTopic(prefix string) string {
	return prefix + ".status"
}

// DecryptionTopic returns the decryption topic under prefix
func DecryptionTopic(prefix string) string {
	return prefix + ".decryption"
}

// PublishStatus publishes a status event
func (p *WatermillPublisher) PublishStatus(ctx context.Context, sessionID string, status core.Status) error {
	event := StatusEvent{
		SessionID: sessionID,
		Status:    string(status),
		At:        time.Now().UTC(),
	}
	return p.publish(ctx, p.statusTopic, event)
}

// PublishDecryption publishes a decryption event
func (p *WatermillPublisher) PublishDecryption(ctx context.Context, sessionID string, outcome core.DecryptionOutcome) error {
	event := DecryptionEvent{
		SessionID: sessionID,
		RequestID: outcome.RequestID,
		Status:    string(outcome.Status),
		ErrorCode: outcome.ErrCode,
		Error:     outcome.ErrMessage,
	}
	if outcome.Result != nil {
		event.Type = string(outcome.Result.Type)
		if outcome.Result.Value != nil {
			event.Value = outcome.Result.Value.Dec()
		}
	}
	return p.publish(ctx, p.decryptionTopic, event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

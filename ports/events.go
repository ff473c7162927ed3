package ports

import (
	"context"

	"github.com/layer-3/fhevm/core"
)

// EventPublisher publishes client events to other processes
type EventPublisher interface {
	PublishStatus(ctx context.Context, sessionID string, status core.Status) error
	PublishDecryption(ctx context.Context, sessionID string, outcome core.DecryptionOutcome) error
}

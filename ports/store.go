package ports

import (
	"context"
	"time"

	"github.com/layer-3/fhevm/core"
)

// ResultStore archives settled decryption outcomes so that correlator
// entries can be released once a request reaches a terminal status
type ResultStore interface {
	SaveOutcome(ctx context.Context, outcome core.DecryptionOutcome, ttl time.Duration) error
	LoadOutcome(ctx context.Context, requestID string) (*core.DecryptionOutcome, bool, error)
}

package ports

import (
	"time"

	"github.com/layer-3/fhevm/core"
)

// Tokenizer issues and verifies the bearer tokens presented to the gateway
// and to the relayer
type Tokenizer interface {
	Issue(audience, subject string, ttl time.Duration) (string, error)
	Verify(token, audience string) (*core.Principal, error)
}

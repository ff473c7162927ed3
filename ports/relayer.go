package ports

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/layer-3/fhevm/core"
)

// EncryptRequest is the input of a relayer encryption call
type EncryptRequest struct {
	Value           *uint256.Int
	Type            core.EncryptedType
	ChainID         uint64
	ContractAddress string
	UserAddress     string
	Metadata        map[string]any
}

// PollStatus is the relayer-side status of a decryption
type PollStatus string

const (
	PollPending PollStatus = "pending"
	PollReady   PollStatus = "ready"
	PollFailed  PollStatus = "failed"
)

// DecryptionPoll is the answer to a single poll
type DecryptionPoll struct {
	Status PollStatus
	Type   core.EncryptedType
	Value  *uint256.Int
	Reason string
}

// Relayer is the cryptographic and relayer capability
type Relayer interface {
	Encrypt(ctx context.Context, req EncryptRequest) (*core.EncryptedValue, error)
	SubmitDecryption(ctx context.Context, ciphertext core.Ciphertext) (string, error)
	PollDecryption(ctx context.Context, relayerID string) (*DecryptionPoll, error)
}

// DecryptionNotifier pushes the relayer ids of decryptions that became ready.
// The returned channel is closed when ctx is done.
type DecryptionNotifier interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

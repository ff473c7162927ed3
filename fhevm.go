// Package fhevm is a client core for confidential computation on FHE-enabled
// EVM chains. A Client owns one session: it resolves the network, tracks the
// wallet, encrypts plaintexts through a relayer, correlates asynchronous
// decryptions and reads and writes contracts. Every change is published as
// an immutable core.Snapshot to subscribers.
//
// The implementation lives in package service; adapters for relayers,
// chains, wallets, result archives and event buses live under adapters/.
package fhevm

import (
	"context"
	"time"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/reactive"
	"github.com/layer-3/fhevm/service"
)

// Client represents the public interface of a session
type Client interface {
	// Initialize moves an Uninitialized or Error session to Ready
	Initialize(ctx context.Context, cfg core.Config) error

	// Reinitialize re-runs initialization with partial merged over the
	// current config
	Reinitialize(ctx context.Context, partial core.Config) error

	// Reset tears the session down and starts a fresh Uninitialized one
	Reset(ctx context.Context) error

	Snapshot() core.Snapshot
	Subscribe(l reactive.Listener) (unsubscribe func())
	IsInitialized() bool
	GetNetwork() *core.NetworkInfo

	ConnectWallet(ctx context.Context, provider core.WalletProvider) (*core.WalletInfo, error)
	DisconnectWallet()

	Encrypt(ctx context.Context, value any, typ core.EncryptedType, opts core.EncryptOptions) (*core.EncryptedValue, error)
	ResetEncryption()

	RequestDecryption(ctx context.Context, ciphertext core.Ciphertext) (string, error)
	WaitForDecryption(ctx context.Context, id string, timeout time.Duration) (*core.DecryptionResult, error)
	Decrypt(ctx context.Context, ciphertext core.Ciphertext, timeout time.Duration) (*core.DecryptionResult, error)
	ResetDecryption()

	ReadContract(ctx context.Context, params core.ContractCallParams) (*core.ReadResult, error)
	ExecuteContract(ctx context.Context, params core.ContractCallParams) (*core.TransactionReceipt, error)
	WriteContract(ctx context.Context, params core.ContractCallParams) (*core.TransactionReceipt, error)
	WatchContract(params core.ContractCallParams, opts service.WatchOptions) (*service.Watch, error)
	ResetContracts()
}

var _ Client = (*service.Client)(nil)

// New creates a client, see service.Options
func New(opts service.Options) (Client, error) {
	c, err := service.New(opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

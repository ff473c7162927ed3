package ports

import (
	"context"

	"github.com/layer-3/fhevm/core"
)

// NetworkResolver performs the external setup of a session and resolves
// the defaults of an initialization config
type NetworkResolver interface {
	Resolve(ctx context.Context, cfg core.Config) (core.NetworkInfo, error)
}

// ChainClient is the chain-interaction capability.
// Call is a read without side effects; Transact submits a transaction
// signed by the wallet and waits for its receipt.
type ChainClient interface {
	Call(ctx context.Context, params core.ContractCallParams) ([]any, error)
	Transact(ctx context.Context, wallet core.WalletInfo, params core.ContractCallParams) (*core.TransactionReceipt, error)
}

package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/fhevm/core"
)

const (
	DefaultChainID = 31337
	DefaultRPCURL  = "http://127.0.0.1:8545"
)

// Handler implements one contract function of a MemoryChain. from is the
// zero address for reads.
type Handler func(ctx context.Context, from string, args []any) ([]any, error)

// MemoryChain is an in-process chain for tests and dev mode. Contract
// functions are registered as Go handlers; writes are mined immediately.
type MemoryChain struct {
	mu       sync.Mutex
	handlers map[string]Handler
	reverts  map[string]bool
	block    uint64
}

// NewMemoryChain creates an empty chain
func NewMemoryChain() *MemoryChain {
	return &MemoryChain{
		handlers: make(map[string]Handler),
		reverts:  make(map[string]bool),
	}
}

func functionKey(address, function string) string {
	return strings.ToLower(common.HexToAddress(address).Hex()) + "." + function
}

// Register installs handler for function at address
func (m *MemoryChain) Register(address, function string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[functionKey(address, function)] = handler
}

// RevertOn makes writes to function at address mine with a failed status
func (m *MemoryChain) RevertOn(address, function string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reverts[functionKey(address, function)] = true
}

// Resolve fills the defaults of a local development chain
func (m *MemoryChain) Resolve(ctx context.Context, cfg core.Config) (core.NetworkInfo, error) {
	if err := ctx.Err(); err != nil {
		return core.NetworkInfo{}, err
	}
	network := core.NetworkInfo{ChainID: DefaultChainID, RPCURL: DefaultRPCURL}
	if cfg.ChainID != 0 {
		network.ChainID = cfg.ChainID
	}
	if cfg.RPCURL != "" {
		network.RPCURL = cfg.RPCURL
	}
	return network, nil
}

// Call runs the handler of the function
func (m *MemoryChain) Call(ctx context.Context, params core.ContractCallParams) ([]any, error) {
	handler, err := m.handler(params)
	if err != nil {
		return nil, err
	}
	return handler(ctx, common.Address{}.Hex(), params.Args)
}

// Transact runs the handler as wallet and mines a block
func (m *MemoryChain) Transact(ctx context.Context, wallet core.WalletInfo, params core.ContractCallParams) (*core.TransactionReceipt, error) {
	handler, err := m.handler(params)
	if err != nil {
		return nil, err
	}

	status := core.ReceiptSuccessful
	m.mu.Lock()
	revert := m.reverts[functionKey(params.Address, params.FunctionName)]
	m.mu.Unlock()

	if revert {
		status = core.ReceiptFailed
	} else if _, err := handler(ctx, wallet.Address, params.Args); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.block++
	block := m.block
	m.mu.Unlock()

	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%d/%s/%s/%v", block, wallet.Address, params.FunctionName, params.Args)))
	blockHash := crypto.Keccak256Hash([]byte(fmt.Sprintf("block/%d", block)))

	gas := params.GasLimit
	if gas == 0 {
		gas = 21000
	}
	return &core.TransactionReceipt{
		Hash:        hash.Hex(),
		Status:      status,
		BlockNumber: block,
		BlockHash:   blockHash.Hex(),
		GasUsed:     gas,
	}, nil
}

func (m *MemoryChain) handler(params core.ContractCallParams) (Handler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handler, ok := m.handlers[functionKey(params.Address, params.FunctionName)]
	if !ok {
		return nil, fmt.Errorf("no contract function %s at %s", params.FunctionName, params.Address)
	}
	return handler, nil
}

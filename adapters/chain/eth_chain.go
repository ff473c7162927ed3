package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/layer-3/fhevm/core"
)

const defaultReceiptTimeout = 2 * time.Minute

var ErrNotConnected = errors.New("chain client not connected")

// EthChain resolves networks and talks to contracts over an Ethereum
// JSON-RPC endpoint. Writes are signed by the wallet through
// eth_sendTransaction.
type EthChain struct {
	defaultRPCURL  string
	receiptTimeout time.Duration
	logger         *zap.Logger

	mu     sync.RWMutex
	client *ethclient.Client
}

// NewEthChain creates a chain client. defaultRPCURL is used when the
// session config has no RPC URL.
func NewEthChain(defaultRPCURL string, logger *zap.Logger) *EthChain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EthChain{
		defaultRPCURL:  defaultRPCURL,
		receiptTimeout: defaultReceiptTimeout,
		logger:         logger,
	}
}

// Resolve dials the endpoint of cfg and checks the chain id it reports
func (c *EthChain) Resolve(ctx context.Context, cfg core.Config) (core.NetworkInfo, error) {
	url := cfg.RPCURL
	if url == "" {
		url = c.defaultRPCURL
	}
	if url == "" {
		return core.NetworkInfo{}, errors.New("no rpc url configured")
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return core.NetworkInfo{}, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return core.NetworkInfo{}, fmt.Errorf("failed to get chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
		client.Close()
		return core.NetworkInfo{}, fmt.Errorf("endpoint serves chain %d, expected %d", chainID.Uint64(), cfg.ChainID)
	}

	c.mu.Lock()
	previous := c.client
	c.client = client
	c.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	return core.NetworkInfo{ChainID: chainID.Uint64(), RPCURL: url}, nil
}

// Close releases the connection
func (c *EthChain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *EthChain) current() (*ethclient.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// Call packs the arguments, runs eth_call and unpacks the outputs
func (c *EthChain) Call(ctx context.Context, params core.ContractCallParams) ([]any, error) {
	client, err := c.current()
	if err != nil {
		return nil, err
	}
	parsed, data, err := pack(params)
	if err != nil {
		return nil, err
	}

	to := common.HexToAddress(params.Address)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data, Value: params.Value, Gas: params.GasLimit}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call: %w", err)
	}

	values, err := parsed.Unpack(params.FunctionName, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s outputs: %w", params.FunctionName, err)
	}
	return values, nil
}

// Transact sends the call through the wallet and waits for its receipt
func (c *EthChain) Transact(ctx context.Context, wallet core.WalletInfo, params core.ContractCallParams) (*core.TransactionReceipt, error) {
	client, err := c.current()
	if err != nil {
		return nil, err
	}
	if wallet.Provider == nil {
		return nil, errors.New("wallet has no provider")
	}
	_, data, err := pack(params)
	if err != nil {
		return nil, err
	}

	tx := map[string]any{
		"from": wallet.Address,
		"to":   common.HexToAddress(params.Address).Hex(),
		"data": hexutil.Encode(data),
	}
	if params.GasLimit > 0 {
		tx["gas"] = hexutil.EncodeUint64(params.GasLimit)
	}
	if params.Value != nil {
		tx["value"] = (*hexutil.Big)(params.Value)
	}

	raw, err := wallet.Provider.Request(ctx, "eth_sendTransaction", tx)
	if err != nil {
		return nil, fmt.Errorf("eth_sendTransaction: %w", err)
	}
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return nil, fmt.Errorf("invalid transaction hash: %w", err)
	}

	receipt, err := c.waitForReceipt(ctx, client, hash)
	if err != nil {
		return nil, err
	}

	result := &core.TransactionReceipt{
		Hash:      hash.Hex(),
		Status:    core.ReceiptFailed,
		BlockHash: receipt.BlockHash.Hex(),
		GasUsed:   receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		result.Status = core.ReceiptSuccessful
	}
	return result, nil
}

func (c *EthChain) waitForReceipt(ctx context.Context, client *ethclient.Client, hash common.Hash) (*types.Receipt, error) {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(c.receiptTimeout),
	)
	notify := func(err error, next time.Duration) {
		c.logger.Debug("receipt not available, retrying",
			zap.String("txHash", hash.Hex()),
			zap.Duration("next", next),
			zap.Error(err),
		)
	}
	operation := func() (*types.Receipt, error) {
		return client.TransactionReceipt(ctx, hash)
	}

	receipt, err := backoff.RetryNotifyWithData(operation, backoff.WithContext(expBackOff, ctx), notify)
	if err != nil {
		c.logger.Error("failed to get transaction receipt", zap.String("txHash", hash.Hex()), zap.Error(err))
		return nil, fmt.Errorf("failed to get receipt of %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

func pack(params core.ContractCallParams) (abi.ABI, []byte, error) {
	parsed, err := abi.JSON(strings.NewReader(params.ABI))
	if err != nil {
		return abi.ABI{}, nil, fmt.Errorf("invalid abi: %w", err)
	}
	data, err := parsed.Pack(params.FunctionName, params.Args...)
	if err != nil {
		return abi.ABI{}, nil, fmt.Errorf("failed to pack %s: %w", params.FunctionName, err)
	}
	return parsed, data, nil
}

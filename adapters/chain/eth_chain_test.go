package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/fhevm/core"
)

const tokenABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const tokenAddress = "0x00000000000000000000000000000000000000aa"

// ethService is the slice of the eth namespace the adapter uses
type ethService struct {
	abi    abi.ABI
	status uint64
}

func (s *ethService) ChainId(ctx context.Context) *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(31337))
}

func (s *ethService) Call(ctx context.Context, args map[string]any, block string) (hexutil.Bytes, error) {
	return s.abi.Methods["balanceOf"].Outputs.Pack(big.NewInt(77))
}

func (s *ethService) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{
		Status:            s.status,
		CumulativeGasUsed: 50000,
		Logs:              []*types.Log{},
		TxHash:            hash,
		GasUsed:           42000,
		BlockHash:         common.HexToHash("0xbb"),
		BlockNumber:       big.NewInt(12),
	}, nil
}

func newEthServer(t *testing.T, status uint64) string {
	parsed, err := abi.JSON(strings.NewReader(tokenABI))
	require.NoError(t, err)

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &ethService{abi: parsed, status: status}))
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return httpServer.URL
}

type recordingWallet struct {
	mu  sync.Mutex
	txs []map[string]any
}

func (w *recordingWallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txs = append(w.txs, params[0].(map[string]any))
	return json.RawMessage(`"0x00000000000000000000000000000000000000000000000000000000000000c1"`), nil
}

func TestEthChainResolve(t *testing.T) {
	url := newEthServer(t, types.ReceiptStatusSuccessful)
	ctx := context.Background()

	c := NewEthChain(url, nil)
	defer c.Close()

	network, err := c.Resolve(ctx, core.Config{})
	require.NoError(t, err)
	require.Equal(t, core.NetworkInfo{ChainID: 31337, RPCURL: url}, network)

	_, err = c.Resolve(ctx, core.Config{ChainID: 1})
	require.ErrorContains(t, err, "expected 1")

	_, err = NewEthChain("", nil).Resolve(ctx, core.Config{})
	require.Error(t, err)
}

func TestEthChainCall(t *testing.T) {
	ctx := context.Background()
	c := NewEthChain(newEthServer(t, types.ReceiptStatusSuccessful), nil)
	defer c.Close()

	params := core.ContractCallParams{
		Address:      tokenAddress,
		ABI:          tokenABI,
		FunctionName: "balanceOf",
		Args:         []any{common.HexToAddress("0x01")},
	}

	_, err := c.Call(ctx, params)
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = c.Resolve(ctx, core.Config{})
	require.NoError(t, err)

	values, err := c.Call(ctx, params)
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.Equal(t, 0, big.NewInt(77).Cmp(values[0].(*big.Int)))

	params.Args = nil
	_, err = c.Call(ctx, params)
	require.ErrorContains(t, err, "failed to pack")
}

func TestEthChainTransact(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	c := NewEthChain(newEthServer(t, types.ReceiptStatusSuccessful), nil)
	defer c.Close()
	_, err := c.Resolve(ctx, core.Config{})
	require.NoError(err)

	wallet := &recordingWallet{}
	params := core.ContractCallParams{
		Address:      tokenAddress,
		ABI:          tokenABI,
		FunctionName: "transfer",
		Args:         []any{common.HexToAddress("0x02"), big.NewInt(5)},
		GasLimit:     100000,
	}

	receipt, err := c.Transact(ctx, core.WalletInfo{Address: "0x0000000000000000000000000000000000000001", Provider: wallet}, params)
	require.NoError(err)
	require.Equal(core.ReceiptSuccessful, receipt.Status)
	require.Equal(uint64(12), receipt.BlockNumber)
	require.Equal(uint64(42000), receipt.GasUsed)
	require.Equal(common.HexToHash("0xc1").Hex(), receipt.Hash)

	require.Len(wallet.txs, 1)
	require.Equal(hexutil.EncodeUint64(100000), wallet.txs[0]["gas"])
	require.Equal(common.HexToAddress(tokenAddress).Hex(), wallet.txs[0]["to"])
}

func TestEthChainTransactReverted(t *testing.T) {
	ctx := context.Background()
	c := NewEthChain(newEthServer(t, types.ReceiptStatusFailed), nil)
	defer c.Close()
	_, err := c.Resolve(ctx, core.Config{})
	require.NoError(t, err)

	params := core.ContractCallParams{
		Address:      tokenAddress,
		ABI:          tokenABI,
		FunctionName: "transfer",
		Args:         []any{common.HexToAddress("0x02"), big.NewInt(5)},
	}
	receipt, err := c.Transact(ctx, core.WalletInfo{Address: "0x0000000000000000000000000000000000000001", Provider: &recordingWallet{}}, params)
	require.NoError(t, err)
	require.Equal(t, core.ReceiptFailed, receipt.Status)
}

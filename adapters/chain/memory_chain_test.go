package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/layer-3/fhevm/core"
)

func TestMemoryChainResolveDefaults(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryChain()

	network, err := m.Resolve(ctx, core.Config{ChainID: 31337})
	require.NoError(t, err)
	require.Equal(t, core.NetworkInfo{ChainID: 31337, RPCURL: DefaultRPCURL}, network)

	network, err = m.Resolve(ctx, core.Config{ChainID: 9000, RPCURL: "http://node:8545"})
	require.NoError(t, err)
	require.Equal(t, core.NetworkInfo{ChainID: 9000, RPCURL: "http://node:8545"}, network)
}

func TestMemoryChainCallAndTransact(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := NewMemoryChain()

	var callers []string
	m.Register(tokenAddress, "balanceOf", func(ctx context.Context, from string, args []any) ([]any, error) {
		callers = append(callers, from)
		return []any{uint64(10)}, nil
	})
	m.Register(tokenAddress, "fail", func(ctx context.Context, from string, args []any) ([]any, error) {
		return nil, errors.New("execution reverted")
	})

	params := core.ContractCallParams{Address: tokenAddress, ABI: "[]", FunctionName: "balanceOf"}
	values, err := m.Call(ctx, params)
	require.NoError(err)
	require.Equal([]any{uint64(10)}, values)

	wallet := core.WalletInfo{Address: "0x0000000000000000000000000000000000000001"}
	first, err := m.Transact(ctx, wallet, params)
	require.NoError(err)
	second, err := m.Transact(ctx, wallet, params)
	require.NoError(err)
	require.Equal(core.ReceiptSuccessful, first.Status)
	require.Equal(first.BlockNumber+1, second.BlockNumber)
	require.NotEqual(first.Hash, second.Hash)
	require.Equal(wallet.Address, callers[1])

	params.FunctionName = "fail"
	_, err = m.Transact(ctx, wallet, params)
	require.ErrorContains(err, "execution reverted")

	params.FunctionName = "missing"
	_, err = m.Call(ctx, params)
	require.Error(err)
}

func TestMemoryChainRevert(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryChain()
	m.Register(tokenAddress, "transfer", func(ctx context.Context, from string, args []any) ([]any, error) {
		return []any{true}, nil
	})
	m.RevertOn(tokenAddress, "transfer")

	receipt, err := m.Transact(ctx, core.WalletInfo{Address: "0x0000000000000000000000000000000000000001"},
		core.ContractCallParams{Address: tokenAddress, ABI: "[]", FunctionName: "transfer"})
	require.NoError(t, err)
	require.Equal(t, core.ReceiptFailed, receipt.Status)
}

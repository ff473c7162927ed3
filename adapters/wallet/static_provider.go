package wallet

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// StaticProvider answers for a single fixed account. It is used in dev mode
// and in tests; sent transactions get a deterministic hash and are not
// broadcast anywhere.
type StaticProvider struct {
	address common.Address
	chainID uint64
	nonce   atomic.Uint64
}

// NewStaticProvider creates a provider for address on chainID
func NewStaticProvider(address string, chainID uint64) *StaticProvider {
	return &StaticProvider{address: common.HexToAddress(address), chainID: chainID}
}

// Request implements the account methods of EIP-1193
func (p *StaticProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_requestAccounts", "eth_accounts":
		return json.Marshal([]string{p.address.Hex()})
	case "eth_chainId":
		return json.Marshal(hexutil.EncodeUint64(p.chainID))
	case "eth_sendTransaction":
		nonce := p.nonce.Add(1)
		hash := crypto.Keccak256Hash(p.address.Bytes(), binary.BigEndian.AppendUint64(nil, nonce))
		return json.Marshal(hash.Hex())
	default:
		return nil, fmt.Errorf("unsupported method %s", method)
	}
}

package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// methodNotFound is the JSON-RPC error code of an unsupported method
const methodNotFound = -32601

// RPCProvider is an EIP-1193 style provider backed by a JSON-RPC endpoint
// that manages accounts, such as a node with unlocked accounts or a signer.
type RPCProvider struct {
	client *rpc.Client
}

// NewRPCProvider wraps an established RPC client
func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

// Dial connects to url
func Dial(ctx context.Context, url string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet: %w", err)
	}
	return NewRPCProvider(client), nil
}

// Close closes the underlying client
func (p *RPCProvider) Close() {
	p.client.Close()
}

// Request forwards method to the endpoint. Endpoints without
// eth_requestAccounts are asked for eth_accounts instead.
func (p *RPCProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := p.client.CallContext(ctx, &raw, method, params...)
	if err != nil && method == "eth_requestAccounts" && isMethodNotFound(err) {
		err = p.client.CallContext(ctx, &raw, "eth_accounts")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return raw, nil
}

func isMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == methodNotFound
}

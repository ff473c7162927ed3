package relayer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/layer-3/fhevm/adapters/tokenizer"
	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
)

// tokenTTL is the lifetime of the bearer token attached to each request
const tokenTTL = time.Minute

// EncryptArgs is the wire form of relayer_encrypt
type EncryptArgs struct {
	Type            string         `json:"type"`
	Value           *hexutil.Big   `json:"value"`
	ChainID         hexutil.Uint64 `json:"chainId"`
	ContractAddress string         `json:"contractAddress,omitempty"`
	UserAddress     string         `json:"userAddress,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// EncryptReply is the answer of relayer_encrypt
type EncryptReply struct {
	Type   string        `json:"type"`
	Handle string        `json:"handle"`
	Data   hexutil.Bytes `json:"data"`
}

// SubmitArgs is the wire form of relayer_submitDecryption
type SubmitArgs struct {
	Handle string        `json:"handle,omitempty"`
	Data   hexutil.Bytes `json:"data,omitempty"`
}

// PollReply is the answer of relayer_pollDecryption
type PollReply struct {
	Status string       `json:"status"`
	Type   string       `json:"type,omitempty"`
	Value  *hexutil.Big `json:"value,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// RPCRelayer talks to a relayer over JSON-RPC
type RPCRelayer struct {
	client *rpc.Client
}

// NewRPCRelayer wraps an established RPC client
func NewRPCRelayer(client *rpc.Client) *RPCRelayer {
	return &RPCRelayer{client: client}
}

// DialRPCRelayer connects to url. When tok is set every HTTP request
// carries a fresh bearer token issued to subject.
func DialRPCRelayer(ctx context.Context, url string, tok ports.Tokenizer, subject string) (*RPCRelayer, error) {
	var opts []rpc.ClientOption
	if tok != nil {
		opts = append(opts, rpc.WithHTTPAuth(func(h http.Header) error {
			token, err := tok.Issue(tokenizer.AudienceRelayer, subject, tokenTTL)
			if err != nil {
				return err
			}
			h.Set("Authorization", "Bearer "+token)
			return nil
		}))
	}

	client, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relayer: %w", err)
	}
	return NewRPCRelayer(client), nil
}

// Close closes the underlying client
func (r *RPCRelayer) Close() {
	r.client.Close()
}

// Encrypt calls relayer_encrypt
func (r *RPCRelayer) Encrypt(ctx context.Context, req ports.EncryptRequest) (*core.EncryptedValue, error) {
	if req.Value == nil {
		return nil, errors.New("value is required")
	}
	args := EncryptArgs{
		Type:            string(req.Type),
		Value:           (*hexutil.Big)(req.Value.ToBig()),
		ChainID:         hexutil.Uint64(req.ChainID),
		ContractAddress: req.ContractAddress,
		UserAddress:     req.UserAddress,
		Metadata:        req.Metadata,
	}

	var reply EncryptReply
	if err := r.client.CallContext(ctx, &reply, "relayer_encrypt", args); err != nil {
		return nil, fmt.Errorf("relayer_encrypt: %w", err)
	}

	typ := core.EncryptedType(reply.Type)
	if typ == "" {
		typ = req.Type
	}
	return &core.EncryptedValue{
		Type:     typ,
		Data:     reply.Data,
		Handle:   reply.Handle,
		Metadata: req.Metadata,
	}, nil
}

// SubmitDecryption calls relayer_submitDecryption
func (r *RPCRelayer) SubmitDecryption(ctx context.Context, ciphertext core.Ciphertext) (string, error) {
	var id string
	args := SubmitArgs{Handle: ciphertext.Handle, Data: ciphertext.Data}
	if err := r.client.CallContext(ctx, &id, "relayer_submitDecryption", args); err != nil {
		return "", fmt.Errorf("relayer_submitDecryption: %w", err)
	}
	if id == "" {
		return "", errors.New("relayer returned an empty request id")
	}
	return id, nil
}

// PollDecryption calls relayer_pollDecryption
func (r *RPCRelayer) PollDecryption(ctx context.Context, relayerID string) (*ports.DecryptionPoll, error) {
	var reply PollReply
	if err := r.client.CallContext(ctx, &reply, "relayer_pollDecryption", relayerID); err != nil {
		return nil, fmt.Errorf("relayer_pollDecryption: %w", err)
	}

	poll := &ports.DecryptionPoll{
		Status: ports.PollStatus(reply.Status),
		Type:   core.EncryptedType(reply.Type),
		Reason: reply.Reason,
	}
	switch poll.Status {
	case ports.PollPending, ports.PollFailed:
	case ports.PollReady:
		if reply.Value == nil {
			return nil, errors.New("ready decryption without value")
		}
		value, overflow := uint256.FromBig(reply.Value.ToInt())
		if overflow {
			return nil, errors.New("decrypted value exceeds 256 bits")
		}
		poll.Value = value
	default:
		return nil, fmt.Errorf("unknown decryption status %q", reply.Status)
	}
	return poll, nil
}

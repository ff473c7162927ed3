package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Config is the configuration recognised by Initialize.
// Zero values defer to defaults resolved by the network resolver.
type Config struct {
	ChainID uint64 `json:"chain_id,omitempty"`
	RPCURL  string `json:"rpc_url,omitempty"`
}

// Merge returns c with every non-zero field of partial applied on top
func (c Config) Merge(partial Config) Config {
	if partial.ChainID != 0 {
		c.ChainID = partial.ChainID
	}
	if partial.RPCURL != "" {
		c.RPCURL = partial.RPCURL
	}
	return c
}

// NetworkInfo describes the chain a session targets
type NetworkInfo struct {
	ChainID uint64 `json:"chain_id"`
	RPCURL  string `json:"rpc_url"`
}

// WalletProvider is the external wallet capability (EIP-1193 style)
type WalletProvider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// WalletInfo describes a connected external account
type WalletInfo struct {
	Address  string         `json:"address"`
	ChainID  uint64         `json:"chain_id"`
	Provider WalletProvider `json:"-"`
}

// EncryptedType is one of the fixed set of supported encrypted types
type EncryptedType string

const (
	TypeBool    EncryptedType = "ebool"
	TypeUint8   EncryptedType = "euint8"
	TypeUint16  EncryptedType = "euint16"
	TypeUint32  EncryptedType = "euint32"
	TypeUint64  EncryptedType = "euint64"
	TypeUint128 EncryptedType = "euint128"
	TypeUint256 EncryptedType = "euint256"
)

var typeBits = map[EncryptedType]int{
	TypeBool:    1,
	TypeUint8:   8,
	TypeUint16:  16,
	TypeUint32:  32,
	TypeUint64:  64,
	TypeUint128: 128,
	TypeUint256: 256,
}

// SupportedTypes lists the encrypted types in width order
func SupportedTypes() []EncryptedType {
	return []EncryptedType{TypeBool, TypeUint8, TypeUint16, TypeUint32, TypeUint64, TypeUint128, TypeUint256}
}

// ParseEncryptedType validates s against the supported enumeration
func ParseEncryptedType(s string) (EncryptedType, error) {
	t := EncryptedType(s)
	if !t.Valid() {
		return "", NewValidationError(fmt.Sprintf("unsupported encrypted type %q", s))
	}
	return t, nil
}

func (t EncryptedType) Valid() bool {
	_, ok := typeBits[t]
	return ok
}

// Bits returns the plaintext width of t, or 0 for an unknown type
func (t EncryptedType) Bits() int {
	return typeBits[t]
}

// CheckFits returns a ValidationError when v does not fit in t
func (t EncryptedType) CheckFits(v *uint256.Int) error {
	if !t.Valid() {
		return NewValidationError(fmt.Sprintf("unsupported encrypted type %q", string(t)))
	}
	if v == nil {
		return NewValidationError("plaintext value is required")
	}
	if v.BitLen() > t.Bits() {
		return NewValidationError(fmt.Sprintf("value %s overflows %s", v.Dec(), t))
	}
	return nil
}

// ToPlaintext converts the accepted Go representations of a plaintext into a
// 256-bit unsigned integer. Booleans map to 0 and 1.
func ToPlaintext(value any) (*uint256.Int, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return uint256.NewInt(1), nil
		}
		return uint256.NewInt(0), nil
	case int:
		return fromSigned(int64(v))
	case int8:
		return fromSigned(int64(v))
	case int16:
		return fromSigned(int64(v))
	case int32:
		return fromSigned(int64(v))
	case int64:
		return fromSigned(v)
	case uint:
		return uint256.NewInt(uint64(v)), nil
	case uint8:
		return uint256.NewInt(uint64(v)), nil
	case uint16:
		return uint256.NewInt(uint64(v)), nil
	case uint32:
		return uint256.NewInt(uint64(v)), nil
	case uint64:
		return uint256.NewInt(v), nil
	case *big.Int:
		return fromBig(v)
	case *uint256.Int:
		if v == nil {
			return nil, NewValidationError("plaintext value is required")
		}
		return new(uint256.Int).Set(v), nil
	case string:
		b, ok := new(big.Int).SetString(v, 0)
		if !ok {
			return nil, NewValidationError(fmt.Sprintf("cannot parse plaintext %q", v))
		}
		return fromBig(b)
	default:
		return nil, NewValidationError(fmt.Sprintf("unsupported plaintext type %T", value))
	}
}

func fromSigned(v int64) (*uint256.Int, error) {
	if v < 0 {
		return nil, NewValidationError("plaintext value must not be negative")
	}
	return uint256.NewInt(uint64(v)), nil
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, NewValidationError("plaintext value is required")
	}
	if v.Sign() < 0 {
		return nil, NewValidationError("plaintext value must not be negative")
	}
	z, overflow := uint256.FromBig(v)
	if overflow {
		return nil, NewValidationError("plaintext value exceeds 256 bits")
	}
	return z, nil
}

// EncryptOptions binds an encryption to a contract and a user
type EncryptOptions struct {
	ContractAddress string
	UserAddress     string
	Metadata        map[string]any
}

// EncryptedValue is the immutable result of an encryption call
type EncryptedValue struct {
	Type     EncryptedType  `json:"type"`
	Data     []byte         `json:"data"`
	Handle   string         `json:"handle,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Ciphertext returns the reference used to request decryption of v
func (v EncryptedValue) Ciphertext() Ciphertext {
	return Ciphertext{Handle: v.Handle, Data: v.Data}
}

// Ciphertext references an encrypted value by handle, raw bytes, or both
type Ciphertext struct {
	Handle string `json:"handle,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// Validate checks the reference is well formed before it reaches the relayer
func (c Ciphertext) Validate() error {
	if c.Handle == "" && len(c.Data) == 0 {
		return NewValidationError("ciphertext reference is empty")
	}
	if c.Handle != "" {
		raw, err := hexutil.Decode(c.Handle)
		if err != nil {
			return NewValidationError(fmt.Sprintf("malformed handle %q: %v", c.Handle, err))
		}
		if len(raw) != common.HashLength {
			return NewValidationError(fmt.Sprintf("handle must be %d bytes, got %d", common.HashLength, len(raw)))
		}
	}
	return nil
}

// DecryptionStatus is the status of an outstanding decryption request
type DecryptionStatus string

const (
	DecryptionPending  DecryptionStatus = "pending"
	DecryptionResolved DecryptionStatus = "resolved"
	DecryptionFailed   DecryptionStatus = "failed"
	DecryptionTimedOut DecryptionStatus = "timed_out"
)

// DecryptionRequest is one outstanding decrypt operation
type DecryptionRequest struct {
	ID          string
	Ciphertext  Ciphertext
	RelayerID   string
	SubmittedAt time.Time
	Status      DecryptionStatus
}

// DecryptionResult is the plaintext produced by the relayer
type DecryptionResult struct {
	RequestID string
	Type      EncryptedType
	Value     *uint256.Int
}

// Bool interprets the result as an ebool
func (r DecryptionResult) Bool() bool {
	return r.Value != nil && !r.Value.IsZero()
}

// DecryptionOutcome is the archived terminal outcome of a request
type DecryptionOutcome struct {
	RequestID  string
	Status     DecryptionStatus
	Result     *DecryptionResult
	ErrKind    Kind
	ErrCode    string
	ErrMessage string
	SettledAt  time.Time
}

// Err rebuilds the error of a failed or timed out outcome
func (o DecryptionOutcome) Err() error {
	if o.Status == DecryptionResolved || o.Status == DecryptionPending {
		return nil
	}
	return &Error{Kind: o.ErrKind, Code: o.ErrCode, Message: o.ErrMessage}
}

// ContractCallParams describes a contract invocation
type ContractCallParams struct {
	Address      string   `json:"address"`
	ABI          string   `json:"abi"`
	FunctionName string   `json:"function_name"`
	Args         []any    `json:"args,omitempty"`
	GasLimit     uint64   `json:"gas_limit,omitempty"`
	Value        *big.Int `json:"value,omitempty"`
}

// Validate rejects malformed params before any delegate call
func (p ContractCallParams) Validate() error {
	if !common.IsHexAddress(p.Address) {
		return NewValidationError(fmt.Sprintf("invalid contract address %q", p.Address))
	}
	if p.FunctionName == "" {
		return NewValidationError("function name is required")
	}
	if p.ABI == "" {
		return NewValidationError("contract ABI is required")
	}
	if p.Value != nil && p.Value.Sign() < 0 {
		return NewValidationError("call value must not be negative")
	}
	return nil
}

// ReadResult holds the decoded outputs of a read call
type ReadResult struct {
	Values []any
}

// ReceiptStatus mirrors the EVM receipt status
type ReceiptStatus uint64

const (
	ReceiptFailed     ReceiptStatus = 0
	ReceiptSuccessful ReceiptStatus = 1
)

// TransactionReceipt is the outcome of a write call
type TransactionReceipt struct {
	Hash        string        `json:"hash"`
	Status      ReceiptStatus `json:"status"`
	BlockNumber uint64        `json:"block_number"`
	BlockHash   string        `json:"block_hash"`
	GasUsed     uint64        `json:"gas_used"`
}

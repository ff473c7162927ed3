package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/layer-3/fhevm/core"
)

var bigIntType = reflect.TypeOf(&big.Int{})

// decodeArgs converts JSON arguments into the Go values the ABI packer
// expects for the inputs of function
func decodeArgs(abiJSON, function string, raw []json.RawMessage) ([]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, core.NewValidationError(fmt.Sprintf("invalid abi: %v", err))
	}
	method, ok := parsed.Methods[function]
	if !ok {
		return nil, core.NewValidationError(fmt.Sprintf("abi has no function %q", function))
	}
	if len(raw) != len(method.Inputs) {
		return nil, core.NewValidationError(fmt.Sprintf("%s takes %d arguments, got %d", function, len(method.Inputs), len(raw)))
	}

	args := make([]any, len(raw))
	for i, input := range method.Inputs {
		v, err := decodeArg(input.Type, raw[i])
		if err != nil {
			return nil, core.NewValidationError(fmt.Sprintf("argument %d (%s): %v", i, input.Type.String(), err))
		}
		args[i] = v
	}
	return args, nil
}

func decodeArg(t abi.Type, raw json.RawMessage) (any, error) {
	switch t.T {
	case abi.IntTy, abi.UintTy:
		n, err := parseInteger(raw)
		if err != nil {
			return nil, err
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s", n)
		}

		typ := t.GetType()
		if typ == bigIntType {
			return n, nil
		}
		v := reflect.New(typ).Elem()
		if t.T == abi.UintTy {
			if !n.IsUint64() || v.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("value %s overflows %s", n, t)
			}
			v.SetUint(n.Uint64())
		} else {
			if !n.IsInt64() || v.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("value %s overflows %s", n, t)
			}
			v.SetInt(n.Int64())
		}
		return v.Interface(), nil

	case abi.BytesTy:
		var b hexutil.Bytes
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return []byte(b), nil

	case abi.FixedBytesTy:
		var b hexutil.Bytes
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf([]byte(b)))
		return v.Interface(), nil
	}

	v := reflect.New(t.GetType())
	if err := json.Unmarshal(raw, v.Interface()); err != nil {
		return nil, err
	}
	return v.Elem().Interface(), nil
}

// parseInteger accepts a JSON number or a decimal or 0x-prefixed string
func parseInteger(raw json.RawMessage) (*big.Int, error) {
	text := string(bytes.TrimSpace(raw))
	base := 10
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		base = 0
	}
	n, ok := new(big.Int).SetString(text, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %s", text)
	}
	return n, nil
}

// parsePlaintext turns the JSON value of an encrypt request into one of the
// plaintext forms accepted by the client
func parsePlaintext(raw json.RawMessage) (any, error) {
	text := string(bytes.TrimSpace(raw))
	switch {
	case text == "" || text == "null":
		return nil, core.NewValidationError("plaintext value is required")
	case text == "true":
		return true, nil
	case text == "false":
		return false, nil
	case strings.HasPrefix(text, `"`):
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, core.NewValidationError(fmt.Sprintf("invalid plaintext: %v", err))
		}
		return s, nil
	}
	// numbers are kept as text so values wider than float64 survive
	return text, nil
}

// parseValue reads the wei value of a call
func parseValue(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, core.NewValidationError(fmt.Sprintf("invalid call value %q", s))
	}
	return n, nil
}

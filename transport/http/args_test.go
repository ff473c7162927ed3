package http

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/fhevm/core"
)

const mixedABI = `[{"type":"function","name":"set","inputs":[{"name":"small","type":"uint8"},{"name":"delta","type":"int64"},{"name":"big","type":"uint256"},{"name":"owner","type":"address"},{"name":"flag","type":"bool"},{"name":"tag","type":"bytes32"},{"name":"blob","type":"bytes"},{"name":"name","type":"string"}],"outputs":[]}]`

func rawArgs(values ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		out[i] = json.RawMessage(v)
	}
	return out
}

func TestDecodeArgs(t *testing.T) {
	require := require.New(t)

	tag := "0x" + "11223344556677889900aabbccddeeff11223344556677889900aabbccddeeff"
	args, err := decodeArgs(mixedABI, "set", rawArgs(
		`255`, `-7`, `"0x10"`, `"0x00000000000000000000000000000000000000a1"`, `true`, `"`+tag+`"`, `"0x0102"`, `"hello"`,
	))
	require.NoError(err)
	require.Len(args, 8)

	require.Equal(uint8(255), args[0])
	require.Equal(int64(-7), args[1])
	require.Equal(big.NewInt(16), args[2])
	require.Equal(common.HexToAddress("0xa1"), args[3])
	require.Equal(true, args[4])
	require.Equal(common.HexToHash(tag), common.Hash(args[5].([32]byte)))
	require.Equal([]byte{1, 2}, args[6])
	require.Equal("hello", args[7])
}

func TestDecodeArgsRejects(t *testing.T) {
	valid := []string{`1`, `1`, `1`, `"0x00000000000000000000000000000000000000a1"`, `false`, `"0x` + strings.Repeat("00", 32) + `"`, `"0x"`, `""`}

	tests := []struct {
		name string
		at   int
		arg  string
	}{
		{"uint8 overflow", 0, `256`},
		{"negative unsigned", 2, `-1`},
		{"fraction", 1, `1.5`},
		{"short bytes32", 5, `"0x01"`},
		{"not an address", 3, `42`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values := append([]string(nil), valid...)
			values[tc.at] = tc.arg
			_, err := decodeArgs(mixedABI, "set", rawArgs(values...))
			require.ErrorIs(t, err, core.ErrValidation)
		})
	}

	_, err := decodeArgs(mixedABI, "missing", rawArgs(`1`))
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = decodeArgs(mixedABI, "set", rawArgs(`1`))
	require.ErrorIs(t, err, core.ErrValidation)

	args, err := decodeArgs("not json", "set", nil)
	require.NoError(t, err)
	require.Nil(t, args)
}

func TestParsePlaintext(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{`true`, true},
		{`false`, false},
		{`42`, "42"},
		{`"0xff"`, "0xff"},
	}
	for _, tc := range tests {
		got, err := parsePlaintext(json.RawMessage(tc.raw))
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := parsePlaintext(json.RawMessage(`null`))
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, 400, statusFor(core.NewValidationError("bad")))
	require.Equal(t, 503, statusFor(core.ErrNotInitialized))
	require.Equal(t, 409, statusFor(core.ErrLifecycleBusy))
	require.Equal(t, 504, statusFor(core.NewDecryptionTimeout("id", nil)))
	require.Equal(t, 502, statusFor(core.NewNetworkError("down", nil)))
	require.Equal(t, 504, statusFor(core.NewDecryptionError("wait interrupted", context.DeadlineExceeded)))
	require.Equal(t, 500, statusFor(plainError("plain")))
}

type plainError string

func (e plainError) Error() string { return string(e) }

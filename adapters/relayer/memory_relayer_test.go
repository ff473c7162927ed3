package relayer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
)

func TestMemoryRelayerRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	r, err := NewMemoryRelayer(0)
	require.NoError(err)

	encrypted, err := r.Encrypt(ctx, ports.EncryptRequest{Value: uint256.NewInt(42), Type: core.TypeUint32})
	require.NoError(err)
	require.Equal(core.TypeUint32, encrypted.Type)
	require.NoError(encrypted.Ciphertext().Validate())

	raw, err := hexutil.Decode(encrypted.Handle)
	require.NoError(err)
	require.Len(raw, 32)

	id, err := r.SubmitDecryption(ctx, core.Ciphertext{Handle: encrypted.Handle})
	require.NoError(err)

	poll, err := r.PollDecryption(ctx, id)
	require.NoError(err)
	require.Equal(ports.PollReady, poll.Status)
	require.Equal(core.TypeUint32, poll.Type)
	require.Equal(uint64(42), poll.Value.Uint64())
}

func TestMemoryRelayerDecryptsRawData(t *testing.T) {
	ctx := context.Background()
	r, err := NewMemoryRelayer(0)
	require.NoError(t, err)

	encrypted, err := r.Encrypt(ctx, ports.EncryptRequest{Value: uint256.NewInt(1), Type: core.TypeBool})
	require.NoError(t, err)

	id, err := r.SubmitDecryption(ctx, core.Ciphertext{Data: encrypted.Data})
	require.NoError(t, err)

	poll, err := r.PollDecryption(ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.TypeBool, poll.Type)
	require.True(t, poll.Value.Eq(uint256.NewInt(1)))
}

func TestMemoryRelayerRejects(t *testing.T) {
	ctx := context.Background()
	r, err := NewMemoryRelayer(0)
	require.NoError(t, err)

	_, err = r.Encrypt(ctx, ports.EncryptRequest{Value: uint256.NewInt(256), Type: core.TypeUint8})
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = r.SubmitDecryption(ctx, core.Ciphertext{Handle: "0x" + strings.Repeat("ab", 32)})
	require.ErrorIs(t, err, ErrUnknownCiphertext)

	_, err = r.SubmitDecryption(ctx, core.Ciphertext{Data: []byte("not a ciphertext, but long enough to be parsed as one")})
	require.Error(t, err)

	_, err = r.PollDecryption(ctx, "missing")
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestMemoryRelayerDelayAndNotify(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := NewMemoryRelayer(50 * time.Millisecond)
	require.NoError(err)

	ready, err := r.Subscribe(ctx)
	require.NoError(err)

	encrypted, err := r.Encrypt(ctx, ports.EncryptRequest{Value: uint256.NewInt(9), Type: core.TypeUint64})
	require.NoError(err)
	id, err := r.SubmitDecryption(ctx, encrypted.Ciphertext())
	require.NoError(err)

	poll, err := r.PollDecryption(ctx, id)
	require.NoError(err)
	require.Equal(ports.PollPending, poll.Status)

	select {
	case got := <-ready:
		require.Equal(id, got)
	case <-time.After(time.Second):
		t.Fatal("no ready notification")
	}

	poll, err = r.PollDecryption(ctx, id)
	require.NoError(err)
	require.Equal(ports.PollReady, poll.Status)

	cancel()
	require.Eventually(func() bool {
		_, open := <-ready
		return !open
	}, time.Second, 5*time.Millisecond)
}

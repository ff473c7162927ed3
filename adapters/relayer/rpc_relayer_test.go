package relayer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/fhevm/adapters/tokenizer"
	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
)

// relayerService exposes a MemoryRelayer under the relayer_ namespace
type relayerService struct {
	backend *MemoryRelayer
}

func (s *relayerService) Encrypt(ctx context.Context, args EncryptArgs) (*EncryptReply, error) {
	value, _ := uint256.FromBig(args.Value.ToInt())
	encrypted, err := s.backend.Encrypt(ctx, ports.EncryptRequest{
		Value:       value,
		Type:        core.EncryptedType(args.Type),
		ChainID:     uint64(args.ChainID),
		UserAddress: args.UserAddress,
	})
	if err != nil {
		return nil, err
	}
	return &EncryptReply{Type: string(encrypted.Type), Handle: encrypted.Handle, Data: encrypted.Data}, nil
}

func (s *relayerService) SubmitDecryption(ctx context.Context, args SubmitArgs) (string, error) {
	return s.backend.SubmitDecryption(ctx, core.Ciphertext{Handle: args.Handle, Data: args.Data})
}

func (s *relayerService) PollDecryption(ctx context.Context, id string) (*PollReply, error) {
	poll, err := s.backend.PollDecryption(ctx, id)
	if err != nil {
		return nil, err
	}
	reply := &PollReply{Status: string(poll.Status), Type: string(poll.Type), Reason: poll.Reason}
	if poll.Value != nil {
		reply.Value = (*hexutil.Big)(poll.Value.ToBig())
	}
	return reply, nil
}

func newRPCServer(t *testing.T) *rpc.Server {
	backend, err := NewMemoryRelayer(0)
	require.NoError(t, err)

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("relayer", &relayerService{backend: backend}))
	t.Cleanup(server.Stop)
	return server
}

func TestRPCRelayerRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	r := NewRPCRelayer(rpc.DialInProc(newRPCServer(t)))
	defer r.Close()

	encrypted, err := r.Encrypt(ctx, ports.EncryptRequest{Value: uint256.NewInt(1000), Type: core.TypeUint16, ChainID: 31337})
	require.NoError(err)
	require.Equal(core.TypeUint16, encrypted.Type)
	require.NotEmpty(encrypted.Data)

	id, err := r.SubmitDecryption(ctx, encrypted.Ciphertext())
	require.NoError(err)

	poll, err := r.PollDecryption(ctx, id)
	require.NoError(err)
	require.Equal(ports.PollReady, poll.Status)
	require.Equal(uint64(1000), poll.Value.Uint64())

	_, err = r.PollDecryption(ctx, "missing")
	require.Error(err)
}

func TestDialRPCRelayerSendsBearerToken(t *testing.T) {
	require := require.New(t)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	tok := tokenizer.NewJWTTokenizer(key)

	server := newRPCServer(t)
	var authorized atomic.Int32
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		principal, err := tok.Verify(token, tokenizer.AudienceRelayer)
		if err != nil || principal.Subject != "client-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		authorized.Add(1)
		server.ServeHTTP(w, req)
	}))
	defer httpServer.Close()

	ctx := context.Background()
	r, err := DialRPCRelayer(ctx, httpServer.URL, tok, "client-1")
	require.NoError(err)
	defer r.Close()

	_, err = r.Encrypt(ctx, ports.EncryptRequest{Value: uint256.NewInt(3), Type: core.TypeUint8})
	require.NoError(err)
	require.Equal(int32(1), authorized.Load())

	anonymous, err := DialRPCRelayer(ctx, httpServer.URL, nil, "")
	require.NoError(err)
	defer anonymous.Close()

	_, err = anonymous.Encrypt(ctx, ports.EncryptRequest{Value: uint256.NewInt(3), Type: core.TypeUint8})
	require.Error(err)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/layer-3/fhevm/adapters/chain"
	"github.com/layer-3/fhevm/adapters/relayer"
	"github.com/layer-3/fhevm/adapters/wallet"
	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
)

const (
	testAccount  = "0x00000000000000000000000000000000000000a1"
	testContract = "0x00000000000000000000000000000000000000c0"
)

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()

	if opts.Relayer == nil {
		r, err := relayer.NewMemoryRelayer(0)
		require.NoError(t, err)
		opts.Relayer = r
	}
	if opts.Chain == nil || opts.Network == nil {
		m := chain.NewMemoryChain()
		if opts.Chain == nil {
			opts.Chain = m
		}
		if opts.Network == nil {
			opts.Network = m
		}
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}

	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Reset(context.Background()) })
	return c
}

func readyClient(t *testing.T, opts Options) *Client {
	t.Helper()
	c := newClient(t, opts)
	require.NoError(t, c.Initialize(context.Background(), core.Config{ChainID: 31337}))
	return c
}

func connectedClient(t *testing.T, opts Options) *Client {
	t.Helper()
	c := readyClient(t, opts)
	_, err := c.ConnectWallet(context.Background(), wallet.NewStaticProvider(testAccount, 31337))
	require.NoError(t, err)
	return c
}

// recorder collects the snapshots delivered to a listener
type recorder struct {
	mu    sync.Mutex
	snaps []core.Snapshot
}

func (r *recorder) listen(s core.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) statuses() []core.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Status
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.Status {
			out = append(out, s.Status)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

// stubRelayer counts calls and answers polls with poll
type stubRelayer struct {
	mu       sync.Mutex
	encrypts int
	submits  int
	polls    int
	last     ports.EncryptRequest

	encryptErr error
	submitErr  error
	poll       func(relayerID string) (*ports.DecryptionPoll, error)
}

func (s *stubRelayer) Encrypt(ctx context.Context, req ports.EncryptRequest) (*core.EncryptedValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encrypts++
	s.last = req
	if s.encryptErr != nil {
		return nil, s.encryptErr
	}
	return &core.EncryptedValue{Type: req.Type, Data: req.Value.Bytes()}, nil
}

func (s *stubRelayer) SubmitDecryption(ctx context.Context, ciphertext core.Ciphertext) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "relayer-request", nil
}

func (s *stubRelayer) PollDecryption(ctx context.Context, relayerID string) (*ports.DecryptionPoll, error) {
	s.mu.Lock()
	s.polls++
	poll := s.poll
	s.mu.Unlock()
	if poll == nil {
		return &ports.DecryptionPoll{Status: ports.PollPending}, nil
	}
	return poll(relayerID)
}

func (s *stubRelayer) lastRequest() ports.EncryptRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *stubRelayer) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encrypts, s.submits
}

// blockingResolver holds Resolve until released
type blockingResolver struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingResolver() *blockingResolver {
	return &blockingResolver{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blockingResolver) Resolve(ctx context.Context, cfg core.Config) (core.NetworkInfo, error) {
	b.entered <- struct{}{}
	<-b.release
	return core.NetworkInfo{ChainID: cfg.ChainID, RPCURL: "http://blocked"}, nil
}

type failingResolver struct {
	err error
}

func (f failingResolver) Resolve(ctx context.Context, cfg core.Config) (core.NetworkInfo, error) {
	return core.NetworkInfo{}, f.err
}

type failingWallet struct{}

func (failingWallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	return nil, errors.New("user rejected the request")
}

// eventRecorder implements ports.EventPublisher
type eventRecorder struct {
	mu          sync.Mutex
	statuses    []core.Status
	decryptions []core.DecryptionOutcome
}

func (e *eventRecorder) outcomes() []core.DecryptionOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.DecryptionOutcome(nil), e.decryptions...)
}

func (e *eventRecorder) PublishStatus(ctx context.Context, sessionID string, status core.Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses = append(e.statuses, status)
	return nil
}

func (e *eventRecorder) PublishDecryption(ctx context.Context, sessionID string, outcome core.DecryptionOutcome) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decryptions = append(e.decryptions, outcome)
	return nil
}

func TestNewRequiresPorts(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	m := chain.NewMemoryChain()
	_, err = New(Options{Relayer: &stubRelayer{}, Chain: m})
	require.Error(t, err)

	c, err := New(Options{Relayer: &stubRelayer{}, Chain: m, Network: m})
	require.NoError(t, err)
	require.Equal(t, DefaultDecryptionTimeout, c.decryptionTimeout)
	require.Equal(t, DefaultPollInterval, c.pollInterval)
	require.Equal(t, DefaultMaxPollInterval, c.maxPollInterval)

	snap := c.Snapshot()
	require.Equal(t, core.StatusUninitialized, snap.Status)
	require.Equal(t, core.WalletDisconnected, snap.WalletStatus)
	require.NotEmpty(t, snap.SessionID)
	require.False(t, c.IsInitialized())
	require.Nil(t, c.GetNetwork())
}

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/internal/correlator"
	"github.com/layer-3/fhevm/ports"
	"github.com/layer-3/fhevm/reactive"
)

const (
	DefaultDecryptionTimeout = 30 * time.Second
	DefaultPollInterval      = 250 * time.Millisecond
	DefaultMaxPollInterval   = 5 * time.Second
	DefaultResultTTL         = 10 * time.Minute

	storeTimeout = 5 * time.Second
)

// Options configures a Client. Relayer, Chain and Network are required.
type Options struct {
	Relayer ports.Relayer
	Chain   ports.ChainClient
	Network ports.NetworkResolver

	// Wallet is used by ConnectWallet when no provider is passed
	Wallet core.WalletProvider

	Notifier ports.DecryptionNotifier
	// Results archives settled decryptions. Without it settled entries are
	// kept in memory until Reset.
	Results ports.ResultStore
	Events  ports.EventPublisher
	Logger  *zap.Logger

	DecryptionTimeout time.Duration
	PollInterval      time.Duration
	MaxPollInterval   time.Duration
	ResultTTL         time.Duration

	// AutoConnect connects the default wallet once the session is ready
	AutoConnect bool
}

// counters back the loading flags of the snapshot. They are only read and
// written inside store updates, which the store serializes.
type counters struct {
	encrypting int
	reading    int
	writing    int
	waiting    int
	pending    int
}

type pendingRequest struct {
	req       core.DecryptionRequest
	sessionID string
	polling   bool
}

// Client is the session core: lifecycle, wallet tracking, encryption,
// decryption correlation and the contract gateway, all reflected in one
// observable snapshot.
type Client struct {
	relayer  ports.Relayer
	chain    ports.ChainClient
	network  ports.NetworkResolver
	wallet   core.WalletProvider
	notifier ports.DecryptionNotifier
	results  ports.ResultStore
	events   ports.EventPublisher
	logger   *zap.Logger

	decryptionTimeout time.Duration
	pollInterval      time.Duration
	maxPollInterval   time.Duration
	resultTTL         time.Duration
	autoConnect       bool

	store       *reactive.Store
	decryptions *correlator.Correlator[core.DecryptionResult]
	calls       singleflight.Group
	slots       counters

	// lifecycle is set while Initialize, Reinitialize or Reset runs
	lifecycle atomic.Bool

	mu         sync.Mutex
	baseCtx    context.Context
	baseCancel context.CancelFunc
	session    string
	notifying  bool
	requests   map[string]*pendingRequest
	wake       map[string]chan struct{}
	watches    map[*Watch]struct{}
}

// New creates a client in the Uninitialized status
func New(opts Options) (*Client, error) {
	if opts.Relayer == nil {
		return nil, errors.New("relayer is required")
	}
	if opts.Chain == nil {
		return nil, errors.New("chain client is required")
	}
	if opts.Network == nil {
		return nil, errors.New("network resolver is required")
	}

	c := &Client{
		relayer:           opts.Relayer,
		chain:             opts.Chain,
		network:           opts.Network,
		wallet:            opts.Wallet,
		notifier:          opts.Notifier,
		results:           opts.Results,
		events:            opts.Events,
		logger:            opts.Logger,
		decryptionTimeout: opts.DecryptionTimeout,
		pollInterval:      opts.PollInterval,
		maxPollInterval:   opts.MaxPollInterval,
		resultTTL:         opts.ResultTTL,
		autoConnect:       opts.AutoConnect,
		requests:          make(map[string]*pendingRequest),
		wake:              make(map[string]chan struct{}),
		watches:           make(map[*Watch]struct{}),
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.decryptionTimeout <= 0 {
		c.decryptionTimeout = DefaultDecryptionTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxPollInterval <= 0 {
		c.maxPollInterval = DefaultMaxPollInterval
	}
	if c.maxPollInterval < c.pollInterval {
		c.maxPollInterval = c.pollInterval
	}
	if c.resultTTL <= 0 {
		c.resultTTL = DefaultResultTTL
	}

	initial := freshSnapshot()
	c.session = initial.SessionID
	c.baseCtx, c.baseCancel = context.WithCancel(context.Background())
	c.store = reactive.NewStore(initial)

	c.decryptions = correlator.New[core.DecryptionResult]()
	c.decryptions.OnSettle = c.onDecryptionSettled

	return c, nil
}

func freshSnapshot() core.Snapshot {
	return core.Snapshot{
		SessionID:    uuid.New().String(),
		Status:       core.StatusUninitialized,
		CreatedAt:    time.Now().UTC(),
		WalletStatus: core.WalletDisconnected,
	}
}

// Snapshot returns the current state
func (c *Client) Snapshot() core.Snapshot {
	return c.store.Snapshot()
}

// Subscribe registers a listener, see reactive.Store.Subscribe
func (c *Client) Subscribe(l reactive.Listener) func() {
	return c.store.Subscribe(l)
}

// IsInitialized reports whether the session is Ready
func (c *Client) IsInitialized() bool {
	return c.store.Snapshot().IsInitialized()
}

// GetNetwork returns the network of a ready session, or nil
func (c *Client) GetNetwork() *core.NetworkInfo {
	snap := c.store.Snapshot()
	if snap.Network == nil {
		return nil
	}
	network := *snap.Network
	return &network
}

// begin runs check against a Ready session and applies it in the same
// update. It returns the snapshot the operation starts from.
func (c *Client) begin(check func(*core.Snapshot) error) (core.Snapshot, error) {
	var started core.Snapshot
	_, err := c.store.UpdateErr(func(s *core.Snapshot) error {
		if s.Status != core.StatusReady {
			return core.ErrNotInitialized
		}
		if check != nil {
			if err := check(s); err != nil {
				return err
			}
		}
		started = *s
		return nil
	})
	return started, err
}

// finish applies fn only if sessionID is still the current session.
// Outcomes of operations that outlived a Reset are discarded.
func (c *Client) finish(sessionID string, fn func(*core.Snapshot)) {
	c.store.Update(func(s *core.Snapshot) {
		if s.SessionID != sessionID {
			return
		}
		fn(s)
	})
}

func (c *Client) lifecycleContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseCtx
}

func (c *Client) publishStatus(ctx context.Context, sessionID string, status core.Status) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishStatus(ctx, sessionID, status); err != nil {
		c.logger.Warn("failed to publish status event",
			zap.String("session_id", sessionID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

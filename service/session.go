package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/layer-3/fhevm/core"
)

// Initialize moves an Uninitialized or Error session to Ready
func (c *Client) Initialize(ctx context.Context, cfg core.Config) error {
	if !c.lifecycle.CompareAndSwap(false, true) {
		return core.ErrLifecycleBusy
	}
	defer c.lifecycle.Store(false)

	return c.initialize(ctx, cfg, false)
}

// Reinitialize re-runs initialization of a Ready session with partial
// merged over the current config. The wallet connection is kept unless
// initialization fails.
func (c *Client) Reinitialize(ctx context.Context, partial core.Config) error {
	if !c.lifecycle.CompareAndSwap(false, true) {
		return core.ErrLifecycleBusy
	}
	defer c.lifecycle.Store(false)

	return c.initialize(ctx, partial, true)
}

func (c *Client) initialize(ctx context.Context, cfg core.Config, reinit bool) error {
	var sessionID string
	_, err := c.store.UpdateErr(func(s *core.Snapshot) error {
		if reinit {
			if s.Status != core.StatusReady {
				return core.ErrNotInitialized
			}
			cfg = s.Config.Merge(cfg)
		} else if s.Status == core.StatusReady {
			return core.NewInitializationError("client is already initialized", nil)
		}
		if !s.Status.CanTransition(core.StatusInitializing) {
			return core.NewInitializationError(fmt.Sprintf("cannot initialize from status %s", s.Status), nil)
		}
		s.Status = core.StatusInitializing
		s.Config = cfg
		s.InitError = nil
		sessionID = s.SessionID
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("initializing session",
		zap.String("session_id", sessionID),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Bool("reinitialize", reinit),
	)
	c.publishStatus(ctx, sessionID, core.StatusInitializing)

	network, err := c.network.Resolve(ctx, cfg)
	if err != nil {
		initErr := core.NewInitializationError("failed to resolve network", err)
		// an Error session has no network, so no wallet bound to one either
		c.store.Update(func(s *core.Snapshot) {
			s.Status = core.StatusError
			s.InitError = initErr
			s.Network = nil
			s.Wallet = nil
			s.WalletStatus = core.WalletDisconnected
			s.WalletError = nil
		})
		c.logger.Error("session initialization failed", zap.String("session_id", sessionID), zap.Error(err))
		c.publishStatus(ctx, sessionID, core.StatusError)
		return initErr
	}

	c.store.Update(func(s *core.Snapshot) {
		s.Status = core.StatusReady
		s.Network = &network
		s.Config = cfg
	})
	c.logger.Info("session ready",
		zap.String("session_id", sessionID),
		zap.Uint64("chain_id", network.ChainID),
		zap.String("rpc_url", network.RPCURL),
	)
	c.publishStatus(ctx, sessionID, core.StatusReady)

	c.startNotifier()

	if c.autoConnect && c.wallet != nil && !c.store.Snapshot().IsConnected() {
		if _, err := c.ConnectWallet(ctx, nil); err != nil {
			c.logger.Warn("auto connect failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return nil
}

// Reset tears the session down: every pending decryption is cancelled,
// watches and pollers stop, and a fresh Uninitialized session replaces the
// current one.
func (c *Client) Reset(ctx context.Context) error {
	if !c.lifecycle.CompareAndSwap(false, true) {
		return core.ErrLifecycleBusy
	}
	defer c.lifecycle.Store(false)

	next := freshSnapshot()

	c.mu.Lock()
	previous := c.session
	cancel := c.baseCancel
	watches := make([]*Watch, 0, len(c.watches))
	for w := range c.watches {
		watches = append(watches, w)
	}
	c.baseCtx, c.baseCancel = context.WithCancel(context.Background())
	c.session = next.SessionID
	c.notifying = false
	c.mu.Unlock()

	cancel()
	for _, w := range watches {
		w.Stop()
	}
	cancelled := c.decryptions.CancelAll()

	c.mu.Lock()
	c.requests = make(map[string]*pendingRequest)
	c.wake = make(map[string]chan struct{})
	c.mu.Unlock()

	c.store.Update(func(s *core.Snapshot) {
		c.slots = counters{}
		*s = next
	})

	c.logger.Info("session reset",
		zap.String("previous_session_id", previous),
		zap.String("session_id", next.SessionID),
		zap.Int("cancelled_decryptions", cancelled),
		zap.Int("stopped_watches", len(watches)),
	)
	c.publishStatus(ctx, next.SessionID, core.StatusUninitialized)
	return nil
}

// ConnectWallet asks provider for an account and records it. A nil
// provider uses the default wallet of the client.
func (c *Client) ConnectWallet(ctx context.Context, provider core.WalletProvider) (*core.WalletInfo, error) {
	if provider == nil {
		provider = c.wallet
	}
	if provider == nil {
		return nil, core.NewValidationError("no wallet provider configured")
	}

	started, err := c.begin(func(s *core.Snapshot) error {
		s.Wallet = nil
		s.WalletStatus = core.WalletConnecting
		s.WalletError = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	info, err := requestAccount(ctx, provider)
	if err != nil {
		netErr := core.NewNetworkError("failed to connect wallet", err)
		c.finish(started.SessionID, func(s *core.Snapshot) {
			s.Wallet = nil
			s.WalletStatus = core.WalletDisconnected
			s.WalletError = netErr
		})
		c.logger.Warn("wallet connection failed", zap.String("session_id", started.SessionID), zap.Error(err))
		return nil, netErr
	}

	applied := false
	c.finish(started.SessionID, func(s *core.Snapshot) {
		wallet := *info
		s.Wallet = &wallet
		s.WalletStatus = core.WalletConnected
		s.WalletError = nil
		applied = true
	})
	if !applied {
		return nil, core.ErrNotInitialized
	}

	c.logger.Info("wallet connected",
		zap.String("session_id", started.SessionID),
		zap.String("address", info.Address),
		zap.Uint64("chain_id", info.ChainID),
	)
	return info, nil
}

// DisconnectWallet clears the wallet. It is idempotent.
func (c *Client) DisconnectWallet() {
	c.store.Update(func(s *core.Snapshot) {
		s.Wallet = nil
		s.WalletStatus = core.WalletDisconnected
		s.WalletError = nil
	})
}

func requestAccount(ctx context.Context, provider core.WalletProvider) (*core.WalletInfo, error) {
	raw, err := provider.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, fmt.Errorf("eth_requestAccounts: %w", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, errors.New("wallet returned no accounts")
	}
	if !common.IsHexAddress(accounts[0]) {
		return nil, fmt.Errorf("wallet returned invalid address %q", accounts[0])
	}

	raw, err = provider.Request(ctx, "eth_chainId")
	if err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	var chainHex string
	if err := json.Unmarshal(raw, &chainHex); err != nil {
		return nil, fmt.Errorf("failed to decode chain id: %w", err)
	}
	chainID, err := hexutil.DecodeUint64(chainHex)
	if err != nil {
		return nil, fmt.Errorf("invalid chain id %q: %w", chainHex, err)
	}

	return &core.WalletInfo{
		Address:  common.HexToAddress(accounts[0]).Hex(),
		ChainID:  chainID,
		Provider: provider,
	}, nil
}

func (c *Client) startNotifier() {
	if c.notifier == nil {
		return
	}

	c.mu.Lock()
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true
	ctx := c.baseCtx
	c.mu.Unlock()

	ready, err := c.notifier.Subscribe(ctx)
	if err != nil {
		c.logger.Warn("decryption notifications unavailable, relying on polling", zap.Error(err))
		c.mu.Lock()
		if c.baseCtx == ctx {
			c.notifying = false
		}
		c.mu.Unlock()
		return
	}

	go func() {
		for relayerID := range ready {
			c.mu.Lock()
			wake := c.wake[relayerID]
			c.mu.Unlock()
			if wake == nil {
				continue
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}()
}

func since(t time.Time) zap.Field {
	return zap.Duration("elapsed", time.Since(t))
}

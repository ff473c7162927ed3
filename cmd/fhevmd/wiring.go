package main

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/layer-3/fhevm/adapters/chain"
	"github.com/layer-3/fhevm/adapters/events"
	"github.com/layer-3/fhevm/adapters/relayer"
	"github.com/layer-3/fhevm/adapters/store"
	"github.com/layer-3/fhevm/adapters/tokenizer"
	"github.com/layer-3/fhevm/adapters/wallet"
	"github.com/layer-3/fhevm/config"
	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/service"
	httpapi "github.com/layer-3/fhevm/transport/http"
)

// devAccount is the account of the wallet in dev mode
const devAccount = "0x00000000000000000000000000000000000000D0"

const relayerSubject = "fhevmd"

type app struct {
	client  *service.Client
	router  httpapi.RouterOptions
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires the adapters selected by cfg into a client
func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	key, err := tokenizer.LoadKey(cfg.AuthKeyFile)
	if err != nil {
		return nil, err
	}
	tok := tokenizer.NewJWTTokenizer(key)

	opts := service.Options{
		Logger:            logger,
		DecryptionTimeout: cfg.DecryptionTimeout,
		PollInterval:      cfg.PollInterval,
		MaxPollInterval:   cfg.MaxPollInterval,
		ResultTTL:         cfg.ResultTTL,
		AutoConnect:       cfg.AutoConnect,
	}

	if cfg.Dev {
		r, err := relayer.NewMemoryRelayer(0)
		if err != nil {
			return nil, err
		}
		m := chain.NewMemoryChain()
		opts.Relayer, opts.Notifier = r, r
		opts.Chain, opts.Network = m, m
		opts.Wallet = wallet.NewStaticProvider(devAccount, chain.DefaultChainID)
		logger.Warn("dev mode: values are not FHE encrypted", zap.String("wallet", devAccount))
	} else {
		r, err := relayer.DialRPCRelayer(ctx, cfg.RelayerURL, tok, relayerSubject)
		if err != nil {
			return nil, fmt.Errorf("failed to dial relayer: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		opts.Relayer = r

		eth := chain.NewEthChain(cfg.RPCURL, logger)
		a.closers = append(a.closers, eth.Close)
		opts.Chain, opts.Network = eth, eth
	}

	if cfg.WalletRPCURL != "" {
		w, err := wallet.Dial(ctx, cfg.WalletRPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial wallet: %w", err)
		}
		a.closers = append(a.closers, w.Close)
		opts.Wallet = w
	}

	wmLogger := watermill.NewStdLogger(false, false)
	var publisher message.Publisher

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		a.closers = append(a.closers, func() { _ = redisClient.Close() })

		opts.Results = store.NewRedisStore(redisClient)

		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		publisher = pub

		if cfg.NotifyTopic != "" {
			sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        redisClient,
				ConsumerGroup: relayerSubject,
			}, wmLogger)
			if err != nil {
				return nil, fmt.Errorf("failed to create Redis subscriber: %w", err)
			}
			a.closers = append(a.closers, func() { _ = sub.Close() })
			opts.Notifier = relayer.NewWatermillNotifier(sub, cfg.NotifyTopic, logger)
		}
	} else {
		opts.Results = store.NewMemoryStore()
		publisher = gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
	}
	a.closers = append(a.closers, func() { _ = publisher.Close() })
	opts.Events = events.NewWatermillPublisher(publisher, cfg.EventsTopic)

	client, err := service.New(opts)
	if err != nil {
		return nil, err
	}
	a.client = client

	a.router = httpapi.RouterOptions{
		DialWallet: dialWallet,
		Logger:     logger,
	}
	if cfg.GatewayAuth {
		a.router.Tokenizer = tok
		a.router.Audience = tokenizer.AudienceGateway
	}

	ok = true
	return a, nil
}

func dialWallet(ctx context.Context, url string) (core.WalletProvider, error) {
	w, err := wallet.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return w, nil
}

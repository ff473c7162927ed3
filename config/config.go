package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/service"
)

const (
	defaultLogLevel          = "info"
	defaultHTTPAddr          = ":8080"
	defaultEventsTopic       = "fhevm"
	defaultDecryptionTimeout = service.DefaultDecryptionTimeout
	defaultPollInterval      = service.DefaultPollInterval
	defaultMaxPollInterval   = service.DefaultMaxPollInterval
	defaultResultTTL         = service.DefaultResultTTL
)

// Config is the configuration of the fhevmd daemon
type Config struct {
	LogLevel string `mapstructure:"log-level" json:"log-level"`
	HTTPAddr string `mapstructure:"http-addr" json:"http-addr"`

	ChainID      uint64 `mapstructure:"chain-id" json:"chain-id"`
	RPCURL       string `mapstructure:"rpc-url" json:"rpc-url"`
	RelayerURL   string `mapstructure:"relayer-url" json:"relayer-url"`
	WalletRPCURL string `mapstructure:"wallet-rpc-url" json:"wallet-rpc-url"`

	AuthKeyFile string `mapstructure:"auth-key-file" json:"auth-key-file"`
	GatewayAuth bool   `mapstructure:"gateway-auth" json:"gateway-auth"`

	RedisURL    string `mapstructure:"redis-url" json:"redis-url"`
	EventsTopic string `mapstructure:"events-topic" json:"events-topic"`
	NotifyTopic string `mapstructure:"notify-topic" json:"notify-topic"`

	DecryptionTimeout time.Duration `mapstructure:"decryption-timeout" json:"decryption-timeout"`
	PollInterval      time.Duration `mapstructure:"poll-interval" json:"poll-interval"`
	MaxPollInterval   time.Duration `mapstructure:"max-poll-interval" json:"max-poll-interval"`
	ResultTTL         time.Duration `mapstructure:"result-ttl" json:"result-ttl"`

	AutoConnect bool `mapstructure:"auto-connect" json:"auto-connect"`
	Dev         bool `mapstructure:"dev" json:"dev"`
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid %s: %w", LogLevelKey, err)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("%s is required", HTTPAddrKey)
	}
	if !c.Dev {
		if c.RelayerURL == "" {
			return fmt.Errorf("%s is required unless %s is set", RelayerURLKey, DevKey)
		}
		if c.RPCURL == "" {
			return fmt.Errorf("%s is required unless %s is set", RPCURLKey, DevKey)
		}
	}

	for key, value := range map[string]string{
		RPCURLKey:       c.RPCURL,
		RelayerURLKey:   c.RelayerURL,
		WalletRPCURLKey: c.WalletRPCURL,
		RedisURLKey:     c.RedisURL,
	} {
		if value == "" {
			continue
		}
		if _, err := url.ParseRequestURI(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.DecryptionTimeout <= 0 {
		return fmt.Errorf("%s must be positive", DecryptionTimeoutKey)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%s must be positive", PollIntervalKey)
	}
	if c.MaxPollInterval < c.PollInterval {
		return fmt.Errorf("%s must not be below %s", MaxPollIntervalKey, PollIntervalKey)
	}
	if c.ResultTTL <= 0 {
		return fmt.Errorf("%s must be positive", ResultTTLKey)
	}
	if c.NotifyTopic != "" && c.RedisURL == "" {
		return errors.New("notifications need a redis-url")
	}
	if c.AutoConnect && c.WalletRPCURL == "" && !c.Dev {
		return fmt.Errorf("%s needs %s", AutoConnectKey, WalletRPCURLKey)
	}
	return nil
}

// Session returns the session config passed to Initialize
func (c *Config) Session() core.Config {
	return core.Config{ChainID: c.ChainID, RPCURL: c.RPCURL}
}

// Logger builds the production logger at the configured level
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Environment variables are the upper-cased keys with this prefix
	EnvPrefix = "FHEVM"

	// Top-level configuration keys
	LogLevelKey          = "log-level"
	HTTPAddrKey          = "http-addr"
	ChainIDKey           = "chain-id"
	RPCURLKey            = "rpc-url"
	RelayerURLKey        = "relayer-url"
	WalletRPCURLKey      = "wallet-rpc-url"
	AuthKeyFileKey       = "auth-key-file"
	GatewayAuthKey       = "gateway-auth"
	RedisURLKey          = "redis-url"
	EventsTopicKey       = "events-topic"
	NotifyTopicKey       = "notify-topic"
	DecryptionTimeoutKey = "decryption-timeout"
	PollIntervalKey      = "poll-interval"
	MaxPollIntervalKey   = "max-poll-interval"
	ResultTTLKey         = "result-ttl"
	AutoConnectKey       = "auto-connect"
	DevKey               = "dev"
)

package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// BuildFlagSet declares every configuration key as a command line flag
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("fhevmd", pflag.ContinueOnError)
	AddFlags(fs)
	fs.Bool(VersionKey, false, "Display version and exit")
	fs.Bool(HelpKey, false, "Display help text and exit")
	return fs
}

// AddFlags adds the configuration flags to fs
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Path to a JSON, YAML or TOML config file")
	fs.String(LogLevelKey, defaultLogLevel, "Log level: debug, info, warn or error")
	fs.String(HTTPAddrKey, defaultHTTPAddr, "Listen address of the HTTP gateway")
	fs.Uint64(ChainIDKey, 0, "Expected chain id, 0 accepts what the endpoint reports")
	fs.String(RPCURLKey, "", "Ethereum JSON-RPC endpoint")
	fs.String(RelayerURLKey, "", "Relayer JSON-RPC endpoint")
	fs.String(WalletRPCURLKey, "", "JSON-RPC endpoint of the default wallet")
	fs.String(AuthKeyFileKey, "", "PEM EC key signing relayer and gateway tokens, empty generates one")
	fs.Bool(GatewayAuthKey, false, "Require bearer tokens on the HTTP gateway")
	fs.String(RedisURLKey, "", "Redis URL for the result archive and event streams")
	fs.String(EventsTopicKey, defaultEventsTopic, "Topic prefix of published events")
	fs.String(NotifyTopicKey, "", "Topic of relayer decryption-ready notifications")
	fs.Duration(DecryptionTimeoutKey, defaultDecryptionTimeout, "Default decryption wait timeout")
	fs.Duration(PollIntervalKey, defaultPollInterval, "Initial relayer poll interval")
	fs.Duration(MaxPollIntervalKey, defaultMaxPollInterval, "Maximum relayer poll interval")
	fs.Duration(ResultTTLKey, defaultResultTTL, "How long settled decryptions stay queryable")
	fs.Bool(AutoConnectKey, false, "Connect the default wallet once the session is ready")
	fs.Bool(DevKey, false, "Use the in-memory relayer, chain and wallet")
}

// DisplayUsageText prints the usage of the flags
func DisplayUsageText() {
	fmt.Fprintf(os.Stderr, "Usage: fhevmd [flags]\n\nEvery flag can also be set in the config file or as %s_<FLAG> in the environment.\n\n", EnvPrefix)
	BuildFlagSet().PrintDefaults()
}

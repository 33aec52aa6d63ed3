package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"rocketwatch/internal/clock"
	"rocketwatch/internal/normalize"
	"rocketwatch/internal/sources"
)

// Rocket Pool mainnet deployment.
const (
	MainnetStorage      = "0x1d8f8f00cfa6758d7bE78336684788Fb0ee0Fa46"
	MainnetMulticall    = "0xcA11bde05977b3631167028862bE2a173976CA11"
	MainnetENSRegistry  = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"
	MainnetETHUSDFeed   = "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"
	MainnetLidoUnstETH  = "0x889edC2eDab5f40e902b864aD4d7AdE8E412F9B1"
	DefaultSnapshotLink = "https://vote.rocketpool.net/#/proposal"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPC               []string
	Beacon            string
	RelayAPI          string
	SnapshotAPI       string
	SnapshotSpace     string
	SnapshotLink      string
	OrdersAPI         string
	ExplorerURL       string
	BeaconExplorerURL string
	PGDSN             string
	RedisURL          string
	ABIDir            string

	StorageAddress   common.Address
	MulticallAddress common.Address
	// StaticContracts pins contracts the storage contract does not know.
	StaticContracts map[string]common.Address
	Clock           clock.Params

	Lookback            uint64
	MaxWindow           uint64
	TickInterval        time.Duration
	DispatchBatch       int
	DispatchMaxAttempts int
	FinalityThreshold   uint64
	Thresholds          normalize.Thresholds

	Destinations  map[string][]string
	ErrorChannel  string
	ErrorCooldown time.Duration
	DiscordToken  string

	SourcesEnabled  []string
	SourcesDisabled []string
	LogEvents       []sources.LogEvent
	GlobalEvents    []sources.LogEvent
	TxFunctions     []sources.TxFunction
	Milestones      []sources.Milestone

	BreakerFailures int
	BreakerRecovery time.Duration
	MetricsAddr     string
	LogLevel        string
}

// SourceEnabled applies the enable and disable lists. An empty enable list
// means every source.
func (c Config) SourceEnabled(name string) bool {
	for _, d := range c.SourcesDisabled {
		if d == name {
			return false
		}
	}
	if len(c.SourcesEnabled) == 0 {
		return true
	}
	for _, e := range c.SourcesEnabled {
		if e == name {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay-api", "https://beaconcha.in")
	v.SetDefault("snapshot-api", "https://hub.snapshot.org")
	v.SetDefault("snapshot-space", "rocketpool-dao.eth")
	v.SetDefault("snapshot-link", DefaultSnapshotLink)
	v.SetDefault("explorer-url", "https://etherscan.io")
	v.SetDefault("beacon-explorer-url", "https://beaconcha.in")
	v.SetDefault("storage-address", MainnetStorage)
	v.SetDefault("multicall-address", MainnetMulticall)
	v.SetDefault("ens-registry", MainnetENSRegistry)
	v.SetDefault("eth-usd-feed", MainnetETHUSDFeed)
	v.SetDefault("lido-withdrawal-queue", MainnetLidoUnstETH)
	v.SetDefault("beacon-genesis", uint64(clock.MainnetGenesis))
	v.SetDefault("slot-seconds", uint64(clock.MainnetSlotSeconds))
	v.SetDefault("slots-per-epoch", uint64(clock.MainnetSlotsPerEpoch))
	v.SetDefault("lookback", uint64(16))
	v.SetDefault("max-window", uint64(2000))
	v.SetDefault("tick-interval", 15*time.Second)
	v.SetDefault("dispatch-batch", 50)
	v.SetDefault("dispatch-max-attempts", 5)
	v.SetDefault("finality-threshold", uint64(3))
	v.SetDefault("error-cooldown", 10*time.Minute)
	v.SetDefault("breaker-failures", 5)
	v.SetDefault("breaker-recovery", time.Minute)
	v.SetDefault("log-level", "info")
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROCKETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Beacon:            v.GetString("beacon"),
		RelayAPI:          v.GetString("relay-api"),
		SnapshotAPI:       v.GetString("snapshot-api"),
		SnapshotSpace:     v.GetString("snapshot-space"),
		SnapshotLink:      v.GetString("snapshot-link"),
		OrdersAPI:         v.GetString("orders-api"),
		ExplorerURL:       v.GetString("explorer-url"),
		BeaconExplorerURL: v.GetString("beacon-explorer-url"),
		PGDSN:             v.GetString("pg-dsn"),
		RedisURL:          v.GetString("redis-url"),
		ABIDir:            v.GetString("abi-dir"),
		Clock: clock.Params{
			Genesis:       v.GetUint64("beacon-genesis"),
			SlotSeconds:   v.GetUint64("slot-seconds"),
			SlotsPerEpoch: v.GetUint64("slots-per-epoch"),
		},
		Lookback:            v.GetUint64("lookback"),
		MaxWindow:           v.GetUint64("max-window"),
		TickInterval:        v.GetDuration("tick-interval"),
		DispatchBatch:       v.GetInt("dispatch-batch"),
		DispatchMaxAttempts: v.GetInt("dispatch-max-attempts"),
		FinalityThreshold:   v.GetUint64("finality-threshold"),
		ErrorChannel:        v.GetString("error-channel"),
		ErrorCooldown:       v.GetDuration("error-cooldown"),
		DiscordToken:        v.GetString("discord-token"),
		SourcesEnabled:      getStringSlice(v, "sources.enabled"),
		SourcesDisabled:     getStringSlice(v, "sources.disabled"),
		BreakerFailures:     v.GetInt("breaker-failures"),
		BreakerRecovery:     v.GetDuration("breaker-recovery"),
		MetricsAddr:         v.GetString("metrics-addr"),
		LogLevel:            v.GetString("log-level"),
	}

	if primary := v.GetString("rpc"); primary != "" {
		cfg.RPC = append(cfg.RPC, primary)
	}
	cfg.RPC = append(cfg.RPC, getStringSlice(v, "rpc-fallbacks")...)

	var err error
	if cfg.StorageAddress, err = address(v, "storage-address"); err != nil {
		return Config{}, err
	}
	if cfg.MulticallAddress, err = address(v, "multicall-address"); err != nil {
		return Config{}, err
	}
	cfg.StaticContracts = make(map[string]common.Address)
	for name, key := range map[string]string{
		"ensRegistry":         "ens-registry",
		"chainlinkFeed":       "eth-usd-feed",
		"lidoWithdrawalQueue": "lido-withdrawal-queue",
	} {
		addr, err := address(v, key)
		if err != nil {
			return Config{}, err
		}
		cfg.StaticContracts[name] = addr
	}

	if cfg.Destinations, err = destinations(v); err != nil {
		return Config{}, err
	}
	if cfg.Thresholds, err = thresholds(v); err != nil {
		return Config{}, err
	}

	cfg.LogEvents = sources.DefaultLogEvents()
	cfg.GlobalEvents = sources.DefaultGlobalEvents()
	cfg.TxFunctions = sources.DefaultTxFunctions()
	cfg.Milestones = sources.DefaultMilestones()

	// A configured list replaces the defaults entirely.
	var logEvents, globalEvents []sources.LogEvent
	var txFunctions []sources.TxFunction
	var milestones []sources.Milestone
	lists := []struct {
		key    string
		out    interface{}
		assign func()
	}{
		{"log-events", &logEvents, func() { cfg.LogEvents = logEvents }},
		{"global-events", &globalEvents, func() { cfg.GlobalEvents = globalEvents }},
		{"tx-functions", &txFunctions, func() { cfg.TxFunctions = txFunctions }},
		{"milestones", &milestones, func() { cfg.Milestones = milestones }},
	}
	for _, l := range lists {
		if !v.IsSet(l.key) {
			continue
		}
		if err := v.UnmarshalKey(l.key, l.out, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			decimalHook(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		))); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", l.key, err)
		}
		l.assign()
	}
	return cfg, nil
}

func address(v *viper.Viper, key string) (common.Address, error) {
	s := strings.TrimSpace(v.GetString(key))
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, s)
	}
	return common.HexToAddress(s), nil
}

// destinations reads the prefix → channels table. A channel may be given
// as a single string or a list.
func destinations(v *viper.Viper) (map[string][]string, error) {
	raw := v.GetStringMap("destinations")
	out := make(map[string][]string, len(raw))
	for prefix, val := range raw {
		var channels []string
		switch typed := val.(type) {
		case string:
			channels = splitAndClean(typed)
		case []string:
			channels = cleanStrings(typed)
		case []interface{}:
			for _, item := range typed {
				channels = append(channels, fmt.Sprintf("%v", item))
			}
			channels = cleanStrings(channels)
		default:
			return nil, fmt.Errorf("destinations.%s: unsupported value %T", prefix, val)
		}
		if len(channels) > 0 {
			out[prefix] = channels
		}
	}
	return out, nil
}

func thresholds(v *viper.Viper) (normalize.Thresholds, error) {
	t := normalize.DefaultThresholds()
	fields := map[string]*decimal.Decimal{
		"thresholds.reth-transfer":         &t.RETHTransfer,
		"thresholds.rpl-transfer-eth":      &t.RPLTransferETH,
		"thresholds.merkle-claim":          &t.MerkleClaim,
		"thresholds.steth-withdrawal":      &t.StETHWithdrawal,
		"thresholds.reth-ratio-decrease":   &t.RETHRatioDecrease,
		"thresholds.mev-reward":            &t.MEVReward,
		"thresholds.snapshot-voting-power": &t.SnapshotVotingPower,
	}
	for key, dst := range fields {
		if !v.IsSet(key) {
			continue
		}
		d, err := decimal.NewFromString(v.GetString(key))
		if err != nil {
			return normalize.Thresholds{}, fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return t, nil
}

// decimalHook lets YAML numbers and strings decode into decimal.Decimal.
func decimalHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(decimal.Decimal{})
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}
		switch typed := data.(type) {
		case string:
			return decimal.NewFromString(typed)
		case int:
			return decimal.NewFromInt(int64(typed)), nil
		case int64:
			return decimal.NewFromInt(typed), nil
		case uint64:
			return decimal.NewFromInt(int64(typed)), nil
		case float64:
			return decimal.NewFromFloat(typed), nil
		default:
			return data, nil
		}
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

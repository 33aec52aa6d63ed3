package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketwatch/internal/clock"
	"rocketwatch/internal/sources"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "rpc: http://localhost:8545\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:8545"}, cfg.RPC)
	assert.Equal(t, common.HexToAddress(MainnetStorage), cfg.StorageAddress)
	assert.Equal(t, common.HexToAddress(MainnetETHUSDFeed), cfg.StaticContracts["chainlinkFeed"])
	assert.Equal(t, common.HexToAddress(MainnetLidoUnstETH), cfg.StaticContracts["lidoWithdrawalQueue"])
	assert.Equal(t, uint64(clock.MainnetGenesis), cfg.Clock.Genesis)
	assert.Equal(t, uint64(32), cfg.Clock.SlotsPerEpoch)
	assert.Equal(t, 15*time.Second, cfg.TickInterval)
	assert.Equal(t, 5, cfg.DispatchMaxAttempts)
	assert.Equal(t, DefaultSnapshotLink, cfg.SnapshotLink)
	assert.True(t, cfg.Thresholds.RETHTransfer.Equal(decimal.NewFromInt(1000)))
	assert.NotEmpty(t, cfg.LogEvents)
	assert.Len(t, cfg.Milestones, 3)
	assert.Empty(t, cfg.Destinations)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
rpc: http://primary
rpc-fallbacks: [http://backup1, http://backup2]
lookback: 32
tick-interval: 30s
destinations:
  default: "111"
  odao_: ["222", "333"]
  mev_: ""
sources:
  disabled: [orders]
thresholds:
  reth-transfer: "5000"
milestones:
  - id: minipool_count
    contract: rocketMinipoolManager
    method: getMinipoolCount
    min: 2000
    step: "500"
tx-functions:
  - contract: rocketNodeDeposit
    function: deposit
    name: minipool_deposit_failed_event
    only_reverted: true
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://primary", "http://backup1", "http://backup2"}, cfg.RPC)
	assert.Equal(t, uint64(32), cfg.Lookback)
	assert.Equal(t, 30*time.Second, cfg.TickInterval)
	assert.Equal(t, map[string][]string{
		"default": {"111"},
		"odao_":   {"222", "333"},
	}, cfg.Destinations)
	assert.True(t, cfg.Thresholds.RETHTransfer.Equal(decimal.NewFromInt(5000)))
	assert.True(t, cfg.Thresholds.MEVReward.Equal(decimal.NewFromInt(1)))

	require.Len(t, cfg.Milestones, 1)
	assert.True(t, cfg.Milestones[0].Min.Equal(decimal.NewFromInt(2000)))
	assert.True(t, cfg.Milestones[0].Step.Equal(decimal.NewFromInt(500)))

	require.Len(t, cfg.TxFunctions, 1)
	assert.True(t, cfg.TxFunctions[0].OnlyReverted)

	assert.False(t, cfg.SourceEnabled("orders"))
	assert.True(t, cfg.SourceEnabled("logs"))
}

func TestLoadListReplacesDefaults(t *testing.T) {
	path := writeConfig(t, `
tx-functions:
  - contract: rocketNodeDeposit
    function: deposit
    name: custom_event
milestones:
  - id: only_one
    contract: rocketNodeManager
    method: getNodeCount
    min: 10
    step: 10
global-events: []
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	require.Len(t, cfg.TxFunctions, 1)
	assert.Equal(t, "custom_event", cfg.TxFunctions[0].Name)
	assert.False(t, cfg.TxFunctions[0].OnlyReverted)

	require.Len(t, cfg.Milestones, 1)
	assert.Equal(t, "only_one", cfg.Milestones[0].ID)
	assert.Equal(t, int32(0), cfg.Milestones[0].Decimals)

	assert.Empty(t, cfg.GlobalEvents)
	assert.Equal(t, len(sources.DefaultLogEvents()), len(cfg.LogEvents))
}

func TestLoadFlagsAndEnv(t *testing.T) {
	t.Setenv("ROCKETWATCH_PG_DSN", "postgres://env")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "debug"}))

	cfg, err := Load(writeConfig(t, "log-level: warn\n"), flags)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://env", cfg.PGDSN)
}

func TestLoadRejectsBadAddress(t *testing.T) {
	_, err := Load(writeConfig(t, "storage-address: nope\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage-address")
}

func TestSourceEnabledAllowList(t *testing.T) {
	cfg := Config{SourcesEnabled: []string{"logs", "beacon"}, SourcesDisabled: []string{"beacon"}}
	assert.True(t, cfg.SourceEnabled("logs"))
	assert.False(t, cfg.SourceEnabled("beacon"))
	assert.False(t, cfg.SourceEnabled("snapshot"))
}

package normalize

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rocketwatch/internal/chain"
	"rocketwatch/internal/event"
)

var (
	rethAddr  = common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393")
	rplAddr   = common.HexToAddress("0xD33526068D116cE69F19A9ee46F0bd304F21A51f")
	vaultAddr = common.HexToAddress("0x3bDC69C4E5e13E52A65f5583c23EFB9636b469d6")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob       = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fakeChain struct {
	receipt *types.Receipt
	err     error
}

func (f *fakeChain) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return f.receipt, f.err
}

type fakeContracts struct {
	bigs     map[string]*big.Int
	ethPrice *big.Int
	decimals map[common.Address]uint8
}

func (f *fakeContracts) ResolveContract(_ context.Context, name string) (common.Address, error) {
	if name == rplToken {
		return rplAddr, nil
	}
	return common.Address{}, chain.ErrContractNotFound
}

func (f *fakeContracts) Call(_ context.Context, name, method string, _ *big.Int, _ ...interface{}) ([]interface{}, error) {
	if name == ethUsdFeed && method == "latestRoundData" && f.ethPrice != nil {
		return []interface{}{big.NewInt(1), f.ethPrice, big.NewInt(0), big.NewInt(0), big.NewInt(1)}, nil
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeContracts) CallBig(_ context.Context, name, method string, _ *big.Int, _ ...interface{}) (*big.Int, error) {
	if v, ok := f.bigs[name+"."+method]; ok {
		return v, nil
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeContracts) TokenMeta(_ context.Context, _ *chain.TokenMetaCache, token common.Address, _ *zap.Logger) chain.TokenMeta {
	d, ok := f.decimals[token]
	if !ok {
		d = 18
	}
	return chain.TokenMeta{Address: token, Decimals: d}
}

type fakeLabels struct {
	protocol map[common.Address]bool
}

func (f *fakeLabels) Fancy(_ context.Context, addr common.Address) string {
	return "[" + addr.Hex()[:6] + "](x)"
}

func (f *fakeLabels) Validator(id string) string { return "[v" + id + "](y)" }

func (f *fakeLabels) Tx(hash common.Hash) string { return "[tx](" + hash.Hex() + ")" }

func (f *fakeLabels) IsProtocol(addr common.Address) bool { return f.protocol[addr] }

func newTestNormalizer(c *fakeChain, contracts *fakeContracts) *Normalizer {
	if c == nil {
		c = &fakeChain{err: errors.New("not found")}
	}
	if contracts == nil {
		contracts = &fakeContracts{}
	}
	labels := &fakeLabels{protocol: map[common.Address]bool{vaultAddr: true, rethAddr: true}}
	return New(c, contracts, labels, nil, DefaultThresholds(), nil)
}

func transferEvent(name string, token common.Address, from, to common.Address, value *big.Int) *event.Event {
	return &event.Event{
		UniqueID:    "0xabc:" + name,
		Topic:       event.TopicEvents,
		Name:        name,
		BlockNumber: 1000,
		Address:     token.Hex(),
		Args:        event.Args{"from": from, "to": to, "value": value},
	}
}

func process(t *testing.T, n *Normalizer, e *event.Event) error {
	t.Helper()
	require.NoError(t, n.Prepare(context.Background(), e))
	_ = n.Enrich(context.Background(), e)
	return Filter(e, n.thresholds)
}

func TestRETHTransferThreshold(t *testing.T) {
	n := newTestNormalizer(nil, nil)

	small := transferEvent("reth_transfer_event", rethAddr, alice, bob, ether(500))
	assert.ErrorIs(t, process(t, n, small), ErrFilteredOut)

	large := transferEvent("reth_transfer_event", rethAddr, alice, bob, ether(1500))
	require.NoError(t, process(t, n, large))
	value, ok := large.Args.Decimal("value")
	require.True(t, ok)
	assert.True(t, value.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, "[0x1111](x)", large.Args["from_fancy"])
}

func TestTokenDecimalsFromEmitter(t *testing.T) {
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	n := newTestNormalizer(nil, &fakeContracts{decimals: map[common.Address]uint8{usdc: 6}})
	e := transferEvent("reth_transfer_event", usdc, alice, bob, big.NewInt(2_500_000))
	require.NoError(t, n.Prepare(context.Background(), e))
	value, _ := e.Args.Decimal("value")
	assert.Equal(t, "2.5", value.String())
}

func TestProtocolInternalTransferDropped(t *testing.T) {
	n := newTestNormalizer(nil, nil)
	e := transferEvent("reth_transfer_event", rethAddr, vaultAddr, rethAddr, ether(5000))
	assert.ErrorIs(t, process(t, n, e), ErrFilteredOut)
}

func TestRPLTransferJudgedInEth(t *testing.T) {
	contracts := &fakeContracts{bigs: map[string]*big.Int{
		"rocketNetworkPrices.getRPLPrice": new(big.Int).Div(ether(1), big.NewInt(100)), // 0.01 ETH
	}}
	n := newTestNormalizer(nil, contracts)

	e := transferEvent("rpl_transfer_event", rplAddr, alice, bob, ether(1000)) // 10 ETH
	assert.ErrorIs(t, process(t, n, e), ErrFilteredOut)

	e = transferEvent("rpl_transfer_event", rplAddr, alice, bob, ether(2000)) // 20 ETH
	assert.NoError(t, process(t, n, e))
}

func TestMerkleClaim(t *testing.T) {
	n := newTestNormalizer(nil, nil)
	claim := func(rpl, eth []*big.Int) *event.Event {
		return &event.Event{Name: "rewards_claimed_event", Args: event.Args{"claimer": alice, "amountRPL": rpl, "amountETH": eth}}
	}

	small := claim([]*big.Int{ether(2), ether(2)}, []*big.Int{ether(1)})
	assert.ErrorIs(t, process(t, n, small), ErrFilteredOut)

	summed := claim([]*big.Int{ether(3), ether(3)}, []*big.Int{ether(1)})
	require.NoError(t, process(t, n, summed))
	rpl, _ := summed.Args.Decimal("amountRPL")
	assert.Equal(t, "6", rpl.String())
}

func TestDecisions(t *testing.T) {
	n := newTestNormalizer(nil, nil)

	odao := &event.Event{Name: "odao_proposal_vote_event", Args: event.Args{"voter": alice, "supported": false}}
	require.NoError(t, n.Prepare(context.Background(), odao))
	assert.Equal(t, "against", odao.Args["decision"])

	for dir, want := range map[uint8]string{0: "invalid", 1: "abstain", 2: "for", 3: "against", 4: "against-with-veto", 9: "invalid"} {
		pdao := &event.Event{Name: "pdao_proposal_vote_event", Args: event.Args{"voter": alice, "direction": dir, "votingPower": ether(1)}}
		require.NoError(t, n.Prepare(context.Background(), pdao))
		assert.Equal(t, want, pdao.Args["decision"], "direction %d", dir)
	}
}

func TestPrepareRejectsBadAddress(t *testing.T) {
	n := newTestNormalizer(nil, nil)
	e := &event.Event{Name: "pool_deposit_event", Args: event.Args{"from": 42, "amount": ether(1)}}
	assert.ErrorIs(t, n.Prepare(context.Background(), e), event.ErrDecodeMismatch)
}

func TestRatioDecrease(t *testing.T) {
	contracts := &fakeContracts{bigs: map[string]*big.Int{
		"rocketTokenRETH.getExchangeRate": new(big.Int).Div(new(big.Int).Mul(ether(11), big.NewInt(1)), big.NewInt(10)), // 1.1
	}}
	n := newTestNormalizer(nil, contracts)
	update := func(total, supply *big.Int) *event.Event {
		return &event.Event{Name: "reth_ratio_decrease_event", BlockNumber: 500, Args: event.Args{"totalEth": total, "rethSupply": supply}}
	}

	// 1.2 is an increase.
	assert.ErrorIs(t, process(t, n, update(ether(12), ether(10))), ErrFilteredOut)
	// 1.0 is a decrease of 0.1.
	e := update(ether(10), ether(10))
	require.NoError(t, process(t, n, e))
	change, _ := e.Args.Decimal("ratio_change")
	assert.Equal(t, "-0.1", change.String())
}

func TestPriceUpdateSchedule(t *testing.T) {
	contracts := &fakeContracts{bigs: map[string]*big.Int{
		"rocketDAOProtocolSettingsNetwork.getSubmitPricesFrequency": big.NewInt(86400),
		"rocketRewardsPool.getClaimIntervalTimeStart":               big.NewInt(1_000_000),
		"rocketRewardsPool.getClaimIntervalTime":                    big.NewInt(28 * 86400),
	}}
	n := newTestNormalizer(nil, contracts)

	early := &event.Event{Name: "price_update_event", BlockNumber: 10, Args: event.Args{"rplPrice": ether(1), "time": big.NewInt(1_100_000)}}
	assert.ErrorIs(t, process(t, n, early), ErrFilteredOut)

	last := &event.Event{Name: "price_update_event", BlockNumber: 10, Args: event.Args{"rplPrice": ether(1), "time": big.NewInt(1_000_000 + 28*86400 - 3600)}}
	assert.NoError(t, process(t, n, last))
}

func TestTxFeeEnrichment(t *testing.T) {
	receipt := &types.Receipt{GasUsed: 100_000, EffectiveGasPrice: big.NewInt(20_000_000_000)}
	contracts := &fakeContracts{ethPrice: big.NewInt(2000_00000000)}
	n := newTestNormalizer(&fakeChain{receipt: receipt}, contracts)

	e := transferEvent("reth_transfer_event", rethAddr, alice, bob, ether(2000))
	e.TxHash = "0x" + common.Bytes2Hex(make([]byte, 32))
	require.NoError(t, n.Prepare(context.Background(), e))
	require.NoError(t, n.Enrich(context.Background(), e))

	fee, _ := e.Args.Decimal("tx_fee")
	assert.Equal(t, "0.002", fee.String())
	usd, _ := e.Args.Decimal("tx_fee_usd")
	assert.Equal(t, "4", usd.String())
	assert.Contains(t, e.Args.Text("tx_link"), "[tx]")
}

func TestEnrichmentMissingKeepsEvent(t *testing.T) {
	n := newTestNormalizer(&fakeChain{err: errors.New("receipt unavailable")}, nil)
	e := transferEvent("reth_transfer_event", rethAddr, alice, bob, ether(2000))
	e.TxHash = "0x01"
	require.NoError(t, n.Prepare(context.Background(), e))

	err := n.Enrich(context.Background(), e)
	assert.ErrorIs(t, err, ErrEnrichmentMissing)
	assert.NotContains(t, e.Args, "tx_fee")
	assert.NoError(t, Filter(e, n.thresholds))
}

func TestOTCOrders(t *testing.T) {
	n := newTestNormalizer(nil, nil)
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	rplOrder := &event.Event{Name: "otc_order_event", Args: event.Args{"owner": alice, "sell_token": rplAddr, "buy_token": weth}}
	assert.NoError(t, process(t, n, rplOrder))

	other := &event.Event{Name: "otc_order_event", Args: event.Args{"owner": alice, "sell_token": usdc, "buy_token": weth}}
	assert.ErrorIs(t, process(t, n, other), ErrFilteredOut)
}

func TestValidatorLinks(t *testing.T) {
	n := newTestNormalizer(nil, nil)
	pubkey := make([]byte, 48)
	pubkey[0] = 0xab
	e := &event.Event{Name: "minipool_prestake_event", Address: alice.Hex(), Args: event.Args{"validatorPubkey": pubkey, "amount": ether(1), "minipool": alice}}
	require.NoError(t, n.Prepare(context.Background(), e))
	_ = n.Enrich(context.Background(), e)
	assert.Equal(t, "[v0xab"+common.Bytes2Hex(make([]byte, 47))+"](y)", e.Args["validatorPubkey_fancy"])

	slash := &event.Event{Name: "minipool_slash_event", Args: event.Args{"validator": uint64(42)}}
	require.NoError(t, n.Prepare(context.Background(), slash))
	_ = n.Enrich(context.Background(), slash)
	assert.Equal(t, "[v42](y)", slash.Args["validator_fancy"])
}

// Raising any threshold never lets a previously suppressed event through.
func TestFilterMonotonic(t *testing.T) {
	loose := DefaultThresholds()
	strict := loose
	strict.RETHTransfer = decimal.NewFromInt(5000)
	strict.MerkleClaim = decimal.NewFromInt(50)
	strict.StETHWithdrawal = decimal.NewFromInt(50000)
	strict.RETHRatioDecrease = decimal.New(1, -2)
	strict.SnapshotVotingPower = decimal.NewFromInt(10000)

	events := []*event.Event{
		{Name: "reth_transfer_event", Args: event.Args{"value": decimal.NewFromInt(800)}},
		{Name: "reth_transfer_event", Args: event.Args{"value": decimal.NewFromInt(3000)}},
		{Name: "reth_transfer_event", Args: event.Args{"value": decimal.NewFromInt(9000)}},
		{Name: "rewards_claimed_event", Args: event.Args{"amountRPL": decimal.NewFromInt(20), "amountETH": decimal.NewFromInt(1)}},
		{Name: "steth_withdrawal_requested_event", Args: event.Args{"amountOfStETH": decimal.NewFromInt(20000)}},
		{Name: "reth_ratio_decrease_event", Args: event.Args{"ratio_change": decimal.RequireFromString("-0.001")}},
		{Name: "snapshot_vote_event", Args: event.Args{"vp": 1200.5}},
	}
	for _, e := range events {
		if errors.Is(Filter(e, loose), ErrFilteredOut) {
			assert.ErrorIs(t, Filter(e, strict), ErrFilteredOut, "%s %v", e.Name, e.Args)
		}
	}
	assert.NoError(t, Filter(events[1], loose))
	assert.ErrorIs(t, Filter(events[1], strict), ErrFilteredOut)
}

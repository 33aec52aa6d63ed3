package normalize

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rocketwatch/internal/chain"
	"rocketwatch/internal/event"
)

const (
	ethUsdFeed   = "chainlinkFeed"
	rplToken     = "rocketTokenRPL"
	rethToken    = "rocketTokenRETH"
	feedDecimals = 8
)

// Enrich attaches labels, links, transaction fees and the inputs the
// materiality filters need. Failed lookups are logged and reported as
// ErrEnrichmentMissing; the event stays usable.
func (n *Normalizer) Enrich(ctx context.Context, e *event.Event) error {
	var errs []error
	missing := func(what string, err error) {
		n.logger.Warn("enrichment skipped",
			zap.String("event", e.Name),
			zap.String("unique_id", e.UniqueID),
			zap.String("what", what),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%w: %s: %v", ErrEnrichmentMissing, what, err))
	}

	n.labelArgs(ctx, e)

	if e.TxHash != "" {
		hash := common.HexToHash(e.TxHash)
		e.Args["tx_link"] = n.labels.Tx(hash)
		if err := n.txFee(ctx, e, hash); err != nil {
			missing("tx fee", err)
		}
	}

	switch e.Name {
	case "reth_transfer_event", "rpl_transfer_event":
		from, okFrom := e.Args.Address("from")
		to, okTo := e.Args.Address("to")
		e.Args["protocol_internal"] = okFrom && okTo && n.labels.IsProtocol(from) && n.labels.IsProtocol(to)
		if e.Name == "rpl_transfer_event" {
			if err := n.rplValueInEth(ctx, e); err != nil {
				missing("rpl price", err)
			}
		}
	case "reth_ratio_decrease_event":
		if err := n.ratioChange(ctx, e); err != nil {
			missing("exchange rate", err)
		}
	case "price_update_event":
		if err := n.priceSchedule(ctx, e); err != nil {
			missing("price schedule", err)
		}
	case "otc_order_event":
		rpl, err := n.contracts.ResolveContract(ctx, rplToken)
		if err != nil {
			missing("rpl address", err)
			break
		}
		sell, _ := e.Args.Address("sell_token")
		buy, _ := e.Args.Address("buy_token")
		e.Args["involves_rpl"] = sell == rpl || buy == rpl
	}

	return errors.Join(errs...)
}

func (n *Normalizer) labelArgs(ctx context.Context, e *event.Event) {
	schema := n.schemas[e.Name]
	names := make([]string, 0, len(e.Args))
	for name := range e.Args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch v := e.Args[name].(type) {
		case common.Address:
			e.Args[name+"_fancy"] = n.labels.Fancy(ctx, v)
		case string:
			if schema[name] == PubKey {
				e.Args[name+"_fancy"] = n.labels.Validator(v)
			}
		}
	}
	if idx, ok := e.Args["validator"].(uint64); ok {
		e.Args["validator_fancy"] = n.labels.Validator(fmt.Sprintf("%d", idx))
	}
}

func (n *Normalizer) txFee(ctx context.Context, e *event.Event, hash common.Hash) error {
	receipt, err := n.chain.TransactionReceipt(ctx, hash)
	if err != nil {
		return err
	}
	if receipt.EffectiveGasPrice == nil {
		return fmt.Errorf("receipt has no effective gas price")
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
	fee := decimal.NewFromBigInt(wei, -18)
	e.Args["tx_fee"] = fee

	price, err := n.ethUsd(ctx)
	if err != nil {
		return fmt.Errorf("eth price: %w", err)
	}
	e.Args["tx_fee_usd"] = fee.Mul(price).Round(2)
	return nil
}

// ethUsd reads the ETH/USD price from the Chainlink aggregator.
func (n *Normalizer) ethUsd(ctx context.Context) (decimal.Decimal, error) {
	values, err := n.contracts.Call(ctx, ethUsdFeed, "latestRoundData", nil)
	if err != nil {
		return decimal.Zero, err
	}
	if len(values) < 2 {
		return decimal.Zero, fmt.Errorf("latestRoundData: %d values", len(values))
	}
	answer, err := chain.AsBigInt(values[1])
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(answer, -feedDecimals), nil
}

func (n *Normalizer) rplValueInEth(ctx context.Context, e *event.Event) error {
	value, ok := e.Args.Decimal("value")
	if !ok {
		return nil
	}
	price, err := n.contracts.CallBig(ctx, "rocketNetworkPrices", "getRPLPrice", blockOf(e))
	if err != nil {
		return err
	}
	e.Args["value_eth"] = value.Mul(decimal.NewFromBigInt(price, -18))
	return nil
}

// ratioChange compares the rate implied by the balances update with the
// rETH exchange rate one block earlier.
func (n *Normalizer) ratioChange(ctx context.Context, e *event.Event) error {
	total, okTotal := e.Args.Decimal("totalEth")
	supply, okSupply := e.Args.Decimal("rethSupply")
	if !okTotal || !okSupply || supply.IsZero() {
		return fmt.Errorf("%w: balances update without totals", event.ErrDecodeMismatch)
	}
	ratio := total.DivRound(supply, 18)
	e.Args["ratio"] = ratio

	if e.BlockNumber == 0 {
		return fmt.Errorf("no block for previous rate")
	}
	prev, err := n.contracts.CallBig(ctx, rethToken, "getExchangeRate", new(big.Int).SetUint64(e.BlockNumber-1))
	if err != nil {
		return err
	}
	prevRatio := decimal.NewFromBigInt(prev, -18)
	e.Args["prev_ratio"] = prevRatio
	e.Args["ratio_change"] = ratio.Sub(prevRatio)
	return nil
}

// priceSchedule computes when the next price update is due and when the
// current rewards period ends.
func (n *Normalizer) priceSchedule(ctx context.Context, e *event.Event) error {
	ts, ok := e.Args.Big("time")
	if !ok {
		ts = new(big.Int).SetUint64(e.Timestamp)
	}
	block := blockOf(e)
	frequency, err := n.contracts.CallBig(ctx, "rocketDAOProtocolSettingsNetwork", "getSubmitPricesFrequency", block)
	if err != nil {
		return err
	}
	start, err := n.contracts.CallBig(ctx, "rocketRewardsPool", "getClaimIntervalTimeStart", block)
	if err != nil {
		return err
	}
	interval, err := n.contracts.CallBig(ctx, "rocketRewardsPool", "getClaimIntervalTime", block)
	if err != nil {
		return err
	}
	e.Args["next_update"] = new(big.Int).Add(ts, frequency).Int64()
	e.Args["reward_period_end"] = new(big.Int).Add(start, interval).Int64()
	return nil
}

func blockOf(e *event.Event) *big.Int {
	if e.BlockNumber == 0 {
		return nil
	}
	return new(big.Int).SetUint64(e.BlockNumber)
}

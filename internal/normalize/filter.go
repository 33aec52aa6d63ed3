package normalize

import (
	"fmt"

	"github.com/shopspring/decimal"

	"rocketwatch/internal/event"
)

// Thresholds are the materiality minima. Raising any of them only ever
// suppresses more events.
type Thresholds struct {
	RETHTransfer        decimal.Decimal
	RPLTransferETH      decimal.Decimal
	MerkleClaim         decimal.Decimal
	StETHWithdrawal     decimal.Decimal
	RETHRatioDecrease   decimal.Decimal
	MEVReward           decimal.Decimal
	SnapshotVotingPower decimal.Decimal
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		RETHTransfer:        decimal.NewFromInt(1000),
		RPLTransferETH:      decimal.NewFromInt(16),
		MerkleClaim:         decimal.NewFromInt(5),
		StETHWithdrawal:     decimal.NewFromInt(10000),
		RETHRatioDecrease:   decimal.New(1, -5),
		MEVReward:           decimal.NewFromInt(1),
		SnapshotVotingPower: decimal.NewFromInt(250),
	}
}

func filtered(e *event.Event, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrFilteredOut, e.Name, fmt.Sprintf(format, args...))
}

// Filter returns a wrapped ErrFilteredOut when the event is below its
// materiality threshold. It only reads arguments set by Prepare and Enrich.
func Filter(e *event.Event, t Thresholds) error {
	args := e.Args
	switch e.Name {
	case "reth_transfer_event":
		if internal, _ := args.Bool("protocol_internal"); internal {
			return filtered(e, "transfer between protocol contracts")
		}
		if v, ok := args.Decimal("value"); ok && v.LessThan(t.RETHTransfer) {
			return filtered(e, "%s rETH below %s", v, t.RETHTransfer)
		}
	case "rpl_transfer_event":
		if internal, _ := args.Bool("protocol_internal"); internal {
			return filtered(e, "transfer between protocol contracts")
		}
		// Without a price the amount is judged as if 1 RPL were 1 ETH.
		v, ok := args.Decimal("value_eth")
		if !ok {
			v, ok = args.Decimal("value")
		}
		if ok && v.LessThan(t.RPLTransferETH) {
			return filtered(e, "%s ETH worth of RPL below %s", v, t.RPLTransferETH)
		}
	case "rewards_claimed_event":
		rpl, _ := args.Decimal("amountRPL")
		eth, _ := args.Decimal("amountETH")
		if rpl.LessThan(t.MerkleClaim) && eth.LessThan(t.MerkleClaim) {
			return filtered(e, "claim of %s RPL and %s ETH", rpl, eth)
		}
	case "steth_withdrawal_requested_event":
		if v, ok := args.Decimal("amountOfStETH"); ok && v.LessThan(t.StETHWithdrawal) {
			return filtered(e, "%s stETH below %s", v, t.StETHWithdrawal)
		}
	case "otc_order_event":
		if involves, ok := args.Bool("involves_rpl"); !ok || !involves {
			return filtered(e, "order does not involve RPL")
		}
	case "reth_ratio_decrease_event":
		change, ok := args.Decimal("ratio_change")
		if !ok {
			return filtered(e, "exchange rate change unknown")
		}
		if decrease := change.Neg(); decrease.LessThan(t.RETHRatioDecrease) {
			return filtered(e, "rate change %s", change)
		}
	case "price_update_event":
		next, okNext := args.Big("next_update")
		end, okEnd := args.Big("reward_period_end")
		if okNext && okEnd && next.Cmp(end) < 0 {
			return filtered(e, "next update %s before period end %s", next, end)
		}
	case "mev_proposal_event", "mev_proposal_smoothie_event":
		if v, ok := args.Decimal("reward"); !ok || !v.GreaterThan(t.MEVReward) {
			return filtered(e, "reward %s not above %s", v, t.MEVReward)
		}
	case "snapshot_vote_event":
		if v, ok := args.Decimal("vp"); ok && v.LessThan(t.SnapshotVotingPower) {
			return filtered(e, "voting power %s below %s", v, t.SnapshotVotingPower)
		}
	}
	return nil
}

// Filter applies the normalizer's thresholds.
func (n *Normalizer) Filter(e *event.Event) error {
	return Filter(e, n.thresholds)
}

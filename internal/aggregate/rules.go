package aggregate

import (
	"github.com/shopspring/decimal"
)

// SumWithdrawalRequests folds every stETH withdrawal request of a
// transaction into the first one.
func SumWithdrawalRequests(b *Bucket) {
	idx := b.Indexes("steth_withdrawal_requested_event")
	if len(idx) < 2 {
		return
	}
	b.sumInto(idx, "amountOfStETH", "amountOfShares")
	b.At(idx[0]).Args["request_count"] = len(idx)
	for _, i := range idx[1:] {
		b.Drop(i)
	}
}

// DropBurnedTransfers removes rETH transfers that belong to a burn and
// keeps only the largest of several transfers.
func DropBurnedTransfers(b *Bucket) {
	idx := b.Indexes("reth_transfer_event")
	if len(idx) == 0 {
		return
	}
	if b.Has("reth_burn_event") {
		for _, i := range idx {
			b.Drop(i)
		}
		return
	}
	if len(idx) < 2 {
		return
	}
	largest := idx[0]
	best := transferValue(b, largest)
	for _, i := range idx[1:] {
		if v := transferValue(b, i); v.GreaterThan(best) {
			largest, best = i, v
		}
	}
	for _, i := range idx {
		if i != largest {
			b.Drop(i)
		}
	}
}

func transferValue(b *Bucket, i int) decimal.Decimal {
	v, _ := b.At(i).Args.Decimal("value")
	return v
}

// DropOverriddenVotes drops the vote an override replaces. The override
// takes over the decision of the vote it replaced.
func DropOverriddenVotes(b *Bucket) {
	for _, o := range b.Indexes("pdao_proposal_vote_overridden_event") {
		override := b.At(o)
		for _, v := range b.Indexes("pdao_proposal_vote_event") {
			if v > o {
				break
			}
			vote := b.At(v)
			if !sameProposal(vote.Args.Text("proposalID"), override.Args.Text("proposalID")) {
				continue
			}
			for _, key := range []string{"direction", "decision"} {
				if val, ok := vote.Args[key]; ok {
					if _, set := override.Args[key]; !set {
						override.Args[key] = val
					}
				}
			}
			b.Drop(v)
			break
		}
	}
}

func sameProposal(a, b string) bool {
	return a == "" || b == "" || a == b
}

// DropPrestakeAssignments drops one deposit assignment per prestake, since
// the prestake already reports the deposit that funded it.
func DropPrestakeAssignments(b *Bucket) {
	prestakes := len(b.Indexes("minipool_prestake_event"))
	for _, i := range b.Indexes("pool_deposit_assigned_event") {
		if prestakes == 0 {
			return
		}
		b.Drop(i)
		prestakes--
	}
}

// CoalesceAssignments folds deposit assignments into one event carrying
// assignmentCount. A lone assignment switches to the singular variant.
func CoalesceAssignments(b *Bucket) {
	idx := b.Indexes("pool_deposit_assigned_event")
	switch len(idx) {
	case 0:
		return
	case 1:
		b.At(idx[0]).Name = "pool_deposit_assigned_single_event"
		return
	}
	b.sumInto(idx, "amount")
	first := b.At(idx[0])
	first.Args["assignmentCount"] = len(idx)
	for _, i := range idx[1:] {
		b.Drop(i)
	}
}

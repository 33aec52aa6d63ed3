package aggregate

import (
	"go.uber.org/zap"

	"rocketwatch/internal/event"
)

// Rule rewrites one transaction bucket in place.
type Rule func(b *Bucket)

// Aggregator coalesces related events emitted by the same transaction.
type Aggregator struct {
	rules  []Rule
	logger *zap.Logger
}

// New returns an aggregator running rules in order. With no rules the
// default protocol rules apply.
func New(logger *zap.Logger, rules ...Rule) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Aggregator{rules: rules, logger: logger.With(zap.String("component", "aggregate"))}
}

func DefaultRules() []Rule {
	return []Rule{
		SumWithdrawalRequests,
		DropBurnedTransfers,
		DropOverriddenVotes,
		DropPrestakeAssignments,
		CoalesceAssignments,
	}
}

// Aggregate buckets events by transaction hash, applies the rules and
// returns the survivors. Events without a transaction pass through. The
// output keeps the input order.
func (a *Aggregator) Aggregate(events []*event.Event) []*event.Event {
	buckets := make(map[string]*Bucket)
	order := make([]interface{}, 0, len(events))
	for _, e := range events {
		if e.TxHash == "" {
			order = append(order, e)
			continue
		}
		b, ok := buckets[e.TxHash]
		if !ok {
			b = NewBucket(e.TxHash)
			buckets[e.TxHash] = b
			order = append(order, b)
		}
		b.Add(e)
	}

	out := make([]*event.Event, 0, len(events))
	for _, item := range order {
		switch v := item.(type) {
		case *event.Event:
			out = append(out, v)
		case *Bucket:
			before := len(v.events)
			for _, rule := range a.rules {
				rule(v)
			}
			live := v.Live()
			if len(live) != before {
				a.logger.Debug("transaction coalesced",
					zap.String("tx", v.TxHash),
					zap.Int("in", before),
					zap.Int("out", len(live)))
			}
			out = append(out, live...)
		}
	}
	return out
}

package aggregate

import (
	"github.com/shopspring/decimal"

	"rocketwatch/internal/event"
)

// Bucket holds the events of one transaction while the rules run over it.
// Dropped events keep their slot so the surviving order is stable.
type Bucket struct {
	TxHash  string
	events  []*event.Event
	dropped []bool
}

func NewBucket(txHash string) *Bucket {
	return &Bucket{TxHash: txHash}
}

func (b *Bucket) Add(e *event.Event) {
	b.events = append(b.events, e)
	b.dropped = append(b.dropped, false)
}

// Indexes returns the live positions of events named name, in order.
func (b *Bucket) Indexes(name string) []int {
	var out []int
	for i, e := range b.events {
		if !b.dropped[i] && e.Name == name {
			out = append(out, i)
		}
	}
	return out
}

func (b *Bucket) Has(name string) bool {
	return len(b.Indexes(name)) > 0
}

func (b *Bucket) Drop(i int) {
	b.dropped[i] = true
}

func (b *Bucket) At(i int) *event.Event {
	return b.events[i]
}

// Live returns the surviving events in their original order.
func (b *Bucket) Live() []*event.Event {
	out := make([]*event.Event, 0, len(b.events))
	for i, e := range b.events {
		if !b.dropped[i] {
			out = append(out, e)
		}
	}
	return out
}

// sumInto adds the named decimal argument of every event at idx into the
// first one.
func (b *Bucket) sumInto(idx []int, names ...string) {
	first := b.events[idx[0]]
	for _, name := range names {
		total := decimal.Zero
		seen := false
		for _, i := range idx {
			if v, ok := b.events[i].Args.Decimal(name); ok {
				total = total.Add(v)
				seen = true
			}
		}
		if seen {
			first.Args[name] = total
		}
	}
}

package clock

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// Mainnet beacon chain parameters.
const (
	MainnetGenesis       = 1606824023
	MainnetSlotSeconds   = 12
	MainnetSlotsPerEpoch = 32
)

// Blocks is the chain access the clock needs.
type Blocks interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Params are the consensus layer timing constants.
type Params struct {
	Genesis       uint64
	SlotSeconds   uint64
	SlotsPerEpoch uint64
}

// Clock converts between wall time, EL block numbers and CL slots.
type Clock struct {
	blocks Blocks
	params Params
	cache  *lru.Cache
}

func New(blocks Blocks, params Params, cacheSize int) (*Clock, error) {
	if params.SlotSeconds == 0 || params.SlotsPerEpoch == 0 {
		return nil, fmt.Errorf("clock: slot seconds and slots per epoch must be positive")
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Clock{blocks: blocks, params: params, cache: cache}, nil
}

// SlotAt returns the slot containing ts. Times before genesis map to 0.
func (c *Clock) SlotAt(ts uint64) uint64 {
	if ts < c.params.Genesis {
		return 0
	}
	return (ts - c.params.Genesis) / c.params.SlotSeconds
}

// TimeAt returns the start time of slot.
func (c *Clock) TimeAt(slot uint64) uint64 {
	return c.params.Genesis + slot*c.params.SlotSeconds
}

func (c *Clock) Epoch(slot uint64) uint64 {
	return slot / c.params.SlotsPerEpoch
}

func (c *Clock) Params() Params {
	return c.params
}

// BlockAt returns the block whose timestamp is closest to ts; ties go to
// the earlier block. Block 0 has no meaningful timestamp, so the search
// runs over [1, latest] and times before block 1 return 0.
func (c *Clock) BlockAt(ctx context.Context, ts uint64) (uint64, error) {
	if v, ok := c.cache.Get(ts); ok {
		return v.(uint64), nil
	}

	latest, err := c.blocks.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if latest == 0 {
		return 0, nil
	}

	first, err := c.blocks.BlockTimestamp(ctx, 1)
	if err != nil {
		return 0, err
	}
	if ts < first {
		return 0, nil
	}

	// Smallest block with timestamp >= ts.
	lo, hi := uint64(1), latest
	for lo < hi {
		mid := lo + (hi-lo)/2
		midTs, err := c.blocks.BlockTimestamp(ctx, mid)
		if err != nil {
			return 0, err
		}
		if midTs < ts {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	result := lo
	loTs, err := c.blocks.BlockTimestamp(ctx, lo)
	if err != nil {
		return 0, err
	}
	// loTs < ts means ts lies beyond the head.
	if loTs >= ts && lo > 1 {
		prevTs, err := c.blocks.BlockTimestamp(ctx, lo-1)
		if err != nil {
			return 0, err
		}
		if ts-prevTs <= loTs-ts {
			result = lo - 1
		}
	}

	// Answers at the head can move as blocks arrive.
	if result < latest {
		c.cache.Add(ts, result)
	}
	return result, nil
}

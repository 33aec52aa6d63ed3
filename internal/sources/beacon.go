package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"rocketwatch/internal/consensus"
	"rocketwatch/internal/event"
)

const smoothingPool = "rocketSmoothingPool"

// Relay reads builder payload data for EL blocks.
type Relay interface {
	ExecutionBlock(ctx context.Context, number uint64) ([]consensus.RelayPayload, error)
}

// SlotClock converts between timestamps, slots and epochs.
type SlotClock interface {
	SlotAt(ts uint64) uint64
	TimeAt(slot uint64) uint64
	Epoch(slot uint64) uint64
}

// FinalityStore persists the last observed finality delay.
type FinalityStore interface {
	LastFinality(ctx context.Context) (epoch, delay uint64, ok bool, err error)
	SaveFinality(ctx context.Context, epoch, delay uint64) error
}

type BeaconConfig struct {
	FinalityThreshold uint64
	Interval          time.Duration
}

type finalityObservation struct {
	epoch uint64
	delay uint64
}

// BeaconSource watches CL blocks for slashings and large proposals of
// tracked validators, and the chain for finality delays.
type BeaconSource struct {
	cfg       BeaconConfig
	chain     Chain
	contracts Contracts
	beacon    Beacon
	relay     Relay
	clock     SlotClock
	tracker   *Tracker
	finality  FinalityStore
	logger    *zap.Logger

	smoothing common.Address
	staged    *finalityObservation
}

func NewBeaconSource(
	cfg BeaconConfig,
	chainClient Chain,
	contracts Contracts,
	beacon Beacon,
	relay Relay,
	clock SlotClock,
	tracker *Tracker,
	finality FinalityStore,
	logger *zap.Logger,
) *BeaconSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FinalityThreshold == 0 {
		cfg.FinalityThreshold = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &BeaconSource{
		cfg:       cfg,
		chain:     chainClient,
		contracts: contracts,
		beacon:    beacon,
		relay:     relay,
		clock:     clock,
		tracker:   tracker,
		finality:  finality,
		logger:    logger.With(zap.String("source", "beacon")),
	}
}

func (s *BeaconSource) Name() string            { return "beacon" }
func (s *BeaconSource) Interval() time.Duration { return s.cfg.Interval }

func (s *BeaconSource) Init(ctx context.Context) error {
	s.staged = nil
	addr, err := s.contracts.ResolveContract(ctx, smoothingPool)
	if err != nil {
		return fmt.Errorf("beacon source: %w", err)
	}
	s.smoothing = addr
	return s.tracker.Refresh(ctx)
}

func (s *BeaconSource) Run(ctx context.Context, w Window) (Result, error) {
	var res Result
	if err := s.tracker.Refresh(ctx); err != nil {
		// The previous set is still good enough for this window.
		res.soft(fmt.Errorf("refresh validators: %w", err))
	}

	first, last, err := s.slotRange(ctx, w)
	if err != nil {
		return res, err
	}
	for slot := first; slot <= last; slot++ {
		block, err := s.beacon.Block(ctx, slot)
		if errors.Is(err, consensus.ErrBlockNotFound) {
			continue
		}
		if err != nil {
			return res, err
		}
		res.Events = append(res.Events, s.slashings(block, w)...)
		e, err := s.proposal(ctx, block)
		if err != nil {
			res.soft(err)
		} else if e != nil {
			res.Events = append(res.Events, e)
		}
	}

	e, err := s.checkFinality(ctx, w)
	if err != nil {
		res.soft(err)
	} else if e != nil {
		res.Events = append(res.Events, e)
	}
	return res, nil
}

// slotRange maps the EL window onto the slots whose blocks it covers.
func (s *BeaconSource) slotRange(ctx context.Context, w Window) (uint64, uint64, error) {
	var first uint64
	if w.From > 0 {
		ts, err := s.chain.BlockTimestamp(ctx, w.From-1)
		if err != nil {
			return 0, 0, err
		}
		first = s.clock.SlotAt(ts) + 1
	}
	ts, err := s.chain.BlockTimestamp(ctx, w.To)
	if err != nil {
		return 0, 0, err
	}
	return first, s.clock.SlotAt(ts), nil
}

func (s *BeaconSource) slashings(block *consensus.Block, w Window) []*event.Event {
	type slashing struct {
		victim uint64
		kind   string
	}
	var found []slashing
	for _, ps := range block.Body.ProposerSlashings {
		found = append(found, slashing{victim: uint64(ps.SignedHeader1.Message.ProposerIndex), kind: "Proposal"})
	}
	for _, as := range block.Body.AttesterSlashings {
		for _, idx := range as.Slashed() {
			found = append(found, slashing{victim: idx, kind: "Attestation"})
		}
	}

	slot := uint64(block.Slot)
	slasher := uint64(block.ProposerIndex)
	ts := s.clock.TimeAt(slot)
	elBlock := executionBlock(block, w)
	var out []*event.Event
	for _, sl := range found {
		v, ok := s.tracker.Lookup(sl.victim)
		if !ok {
			continue
		}
		out = append(out, &event.Event{
			UniqueID:    fmt.Sprintf("slash-%d:slasher-%d:slashing-type-%s:%d", sl.victim, slasher, sl.kind, ts),
			Topic:       event.TopicBeacon,
			Name:        "minipool_slash_event",
			Score:       event.BlockScore(elBlock),
			BlockNumber: elBlock,
			Timestamp:   ts,
			Args: event.Args{
				"validator":     sl.victim,
				"slasher":       slasher,
				"slashing_type": sl.kind,
				"node":          v.Node,
				"minipool":      v.Minipool,
				"pubkey":        v.Pubkey,
				"slot":          slot,
			},
		})
	}
	return out
}

// proposal reports a block built by a tracked validator. The reward
// threshold is applied later by the materiality filter.
func (s *BeaconSource) proposal(ctx context.Context, block *consensus.Block) (*event.Event, error) {
	payload := block.Body.ExecutionPayload
	if payload == nil {
		return nil, nil
	}
	proposer := uint64(block.ProposerIndex)
	v, ok := s.tracker.Lookup(proposer)
	if !ok {
		return nil, nil
	}
	number := uint64(payload.BlockNumber)
	relays, err := s.relay.ExecutionBlock(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("relay data for block %d: %w", number, err)
	}
	if len(relays) == 0 {
		return nil, nil
	}
	best := relays[0]
	for _, r := range relays[1:] {
		if r.ProducerReward.GreaterThan(best.ProducerReward) {
			best = r
		}
	}

	recipient := common.HexToAddress(best.Recipient())
	name := "mev_proposal_event"
	if recipient == s.smoothing {
		name = "mev_proposal_smoothie_event"
	}
	return &event.Event{
		UniqueID:    fmt.Sprintf("%s:%s", strings.ToLower(payload.BlockHash), name),
		Topic:       event.TopicMEV,
		Name:        name,
		Score:       event.BlockScore(number),
		BlockNumber: number,
		Timestamp:   uint64(payload.Timestamp),
		Args: event.Args{
			"validator":     proposer,
			"node":          v.Node,
			"minipool":      v.Minipool,
			"fee_recipient": recipient,
			"reward":        best.ProducerReward.Shift(-18),
			"relay":         best.Relay.Tag,
			"slot":          uint64(block.Slot),
		},
	}, nil
}

// checkFinality compares the delay at the head with the last stored one.
// The new observation is staged and only persisted by Commit.
func (s *BeaconSource) checkFinality(ctx context.Context, w Window) (*event.Event, error) {
	head, err := s.beacon.HeadSlot(ctx)
	if err != nil {
		return nil, err
	}
	cp, err := s.beacon.FinalityCheckpoints(ctx, "head")
	if err != nil {
		return nil, err
	}
	epoch := s.clock.Epoch(head)
	var delay uint64
	if finalized := uint64(cp.Finalized.Epoch); epoch > finalized {
		delay = epoch - finalized
	}

	prevEpoch, prevDelay, ok, err := s.finality.LastFinality(ctx)
	if err != nil {
		return nil, err
	}
	if ok && epoch <= prevEpoch {
		return nil, nil
	}
	s.staged = &finalityObservation{epoch: epoch, delay: delay}
	if !ok {
		return nil, nil
	}

	name, id := finalityTransition(prevDelay, delay, s.cfg.FinalityThreshold)
	if name == "" {
		return nil, nil
	}
	s.logger.Info("finality transition",
		zap.String("event", name),
		zap.Uint64("epoch", epoch),
		zap.Uint64("delay", delay))
	return &event.Event{
		UniqueID:    fmt.Sprintf("%s:%d", id, epoch),
		Topic:       event.TopicFinality,
		Name:        name,
		Score:       event.BlockScore(w.To),
		BlockNumber: w.To,
		Timestamp:   s.clock.TimeAt(head),
		Args: event.Args{
			"epoch": epoch,
			"delay": delay,
		},
	}, nil
}

// finalityTransition fires when the delay crosses threshold upward or
// falls back below it.
func finalityTransition(prev, delay, threshold uint64) (name, id string) {
	switch {
	case prev < threshold && delay >= threshold:
		return "finality_delay_event", "finality_delay"
	case prev >= threshold && delay < threshold:
		return "finality_delay_recover_event", "finality_recover"
	}
	return "", ""
}

// Commit persists the staged finality observation.
func (s *BeaconSource) Commit(ctx context.Context) error {
	if s.staged == nil {
		return nil
	}
	if err := s.finality.SaveFinality(ctx, s.staged.epoch, s.staged.delay); err != nil {
		return err
	}
	s.staged = nil
	return nil
}

func executionBlock(block *consensus.Block, w Window) uint64 {
	if block.Body.ExecutionPayload != nil {
		return uint64(block.Body.ExecutionPayload.BlockNumber)
	}
	return w.From
}

var _ Committer = (*BeaconSource)(nil)

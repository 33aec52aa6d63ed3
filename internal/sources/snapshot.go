package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rocketwatch/internal/event"
	"rocketwatch/internal/offchain"
)

// Snapshot is the off-chain governance API.
type Snapshot interface {
	Proposals(ctx context.Context, space string, since, until int64) ([]offchain.Proposal, error)
	Votes(ctx context.Context, proposals []string, since, until int64) ([]offchain.Vote, error)
}

type SnapshotConfig struct {
	Space    string
	LinkBase string
	Interval time.Duration
}

// SnapshotSource reports proposals opening and closing and the votes cast
// on them. The EL window is mapped onto block timestamps.
type SnapshotSource struct {
	cfg    SnapshotConfig
	chain  Chain
	api    Snapshot
	logger *zap.Logger
}

func NewSnapshotSource(cfg SnapshotConfig, chainClient Chain, api Snapshot, logger *zap.Logger) *SnapshotSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.LinkBase == "" {
		cfg.LinkBase = "https://vote.rocketpool.net/#/proposal"
	}
	return &SnapshotSource{cfg: cfg, chain: chainClient, api: api, logger: logger.With(zap.String("source", "snapshot"))}
}

func (s *SnapshotSource) Name() string            { return "snapshot" }
func (s *SnapshotSource) Interval() time.Duration { return s.cfg.Interval }

func (s *SnapshotSource) Init(context.Context) error {
	if s.cfg.Space == "" {
		return fmt.Errorf("snapshot source: space is required")
	}
	return nil
}

func (s *SnapshotSource) Run(ctx context.Context, w Window) (Result, error) {
	var res Result
	since, until, err := windowTimes(ctx, s.chain, w)
	if err != nil {
		return res, err
	}
	proposals, err := s.api.Proposals(ctx, s.cfg.Space, since, until)
	if err != nil {
		return res, err
	}
	if len(proposals) == 0 {
		return res, nil
	}

	byID := make(map[string]offchain.Proposal, len(proposals))
	ids := make([]string, 0, len(proposals))
	for _, p := range proposals {
		byID[p.ID] = p
		ids = append(ids, p.ID)
		if p.Start > since && p.Start <= until {
			res.Events = append(res.Events, s.proposalEvent(p, "snapshot_proposal_start", w.To))
		}
		if p.End > since && p.End <= until {
			res.Events = append(res.Events, s.proposalEvent(p, "snapshot_proposal_end", w.To))
		}
	}

	votes, err := s.api.Votes(ctx, ids, since, until)
	if err != nil {
		return res, err
	}
	for _, v := range votes {
		p, ok := byID[v.Proposal.ID]
		if !ok {
			continue
		}
		res.Events = append(res.Events, &event.Event{
			UniqueID:    "snapshot_vote:" + v.ID,
			Topic:       event.TopicSnapshot,
			Name:        "snapshot_vote_event",
			Score:       event.BlockScore(w.To),
			BlockNumber: w.To,
			Timestamp:   uint64(v.Created),
			Args: event.Args{
				"voter":  common.HexToAddress(v.Voter),
				"choice": choiceText(p, v.Choice),
				"vp":     decimal.NewFromFloat(v.VP),
				"reason": v.Reason,
				"title":  p.Title,
				"link":   s.link(p),
			},
		})
	}
	return res, nil
}

func (s *SnapshotSource) proposalEvent(p offchain.Proposal, kind string, block uint64) *event.Event {
	ts := p.Start
	if kind == "snapshot_proposal_end" {
		ts = p.End
	}
	return &event.Event{
		UniqueID:    kind + ":" + p.ID,
		Topic:       event.TopicSnapshot,
		Name:        kind + "_event",
		Score:       event.BlockScore(block),
		BlockNumber: block,
		Timestamp:   uint64(ts),
		Args: event.Args{
			"author":  common.HexToAddress(p.Author),
			"title":   p.Title,
			"link":    s.link(p),
			"end":     uint64(p.End),
			"choices": strings.Join(p.Choices, ", "),
			"winner":  p.Winner(),
		},
	}
}

func (s *SnapshotSource) link(p offchain.Proposal) string {
	return strings.TrimRight(s.cfg.LinkBase, "/") + "/" + p.ID
}

// choiceText renders a ballot. Single choice ballots are 1-based indexes;
// weighted and ranked ballots are shown by choice name.
func choiceText(p offchain.Proposal, raw json.RawMessage) string {
	name := func(i int) string {
		if i >= 1 && i <= len(p.Choices) {
			return p.Choices[i-1]
		}
		return fmt.Sprintf("#%d", i)
	}
	var single int
	if err := json.Unmarshal(raw, &single); err == nil {
		return name(single)
	}
	var ranked []int
	if err := json.Unmarshal(raw, &ranked); err == nil {
		parts := make([]string, 0, len(ranked))
		for _, i := range ranked {
			parts = append(parts, name(i))
		}
		return strings.Join(parts, ", ")
	}
	var weighted map[string]float64
	if err := json.Unmarshal(raw, &weighted); err == nil {
		parts := make([]string, 0, len(weighted))
		for i := 1; i <= len(p.Choices); i++ {
			if w, ok := weighted[fmt.Sprint(i)]; ok && w > 0 {
				parts = append(parts, fmt.Sprintf("%s (%g)", name(i), w))
			}
		}
		return strings.Join(parts, ", ")
	}
	return string(raw)
}

// windowTimes maps an EL window onto the half-open time range
// (ts(From-1), ts(To)].
func windowTimes(ctx context.Context, chainClient Chain, w Window) (int64, int64, error) {
	var since uint64
	if w.From > 0 {
		ts, err := chainClient.BlockTimestamp(ctx, w.From-1)
		if err != nil {
			return 0, 0, err
		}
		since = ts
	}
	until, err := chainClient.BlockTimestamp(ctx, w.To)
	if err != nil {
		return 0, 0, err
	}
	return int64(since), int64(until), nil
}

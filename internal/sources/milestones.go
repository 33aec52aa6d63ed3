package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rocketwatch/internal/event"
)

// Milestone is a scalar read from a contract that fires each time it
// passes another multiple of Step above Min.
type Milestone struct {
	ID       string          `mapstructure:"id"`
	Contract string          `mapstructure:"contract"`
	Method   string          `mapstructure:"method"`
	Args     []interface{}   `mapstructure:"args"`
	Decimals int32           `mapstructure:"decimals"`
	Min      decimal.Decimal `mapstructure:"min"`
	Step     decimal.Decimal `mapstructure:"step"`
}

// GoalStore persists the next goal of each milestone.
type GoalStore interface {
	LoadGoal(ctx context.Context, id string) (decimal.Decimal, bool, error)
	SaveGoal(ctx context.Context, id string, goal decimal.Decimal) error
}

func DefaultMilestones() []Milestone {
	return []Milestone{
		{ID: "minipool_count", Contract: "rocketMinipoolManager", Method: "getMinipoolCount", Min: decimal.NewFromInt(1000), Step: decimal.NewFromInt(1000)},
		{ID: "node_count", Contract: "rocketNodeManager", Method: "getNodeCount", Min: decimal.NewFromInt(1000), Step: decimal.NewFromInt(500)},
		{ID: "reth_supply", Contract: "rocketTokenRETH", Method: "totalSupply", Decimals: 18, Min: decimal.NewFromInt(10000), Step: decimal.NewFromInt(10000)},
	}
}

type MilestoneConfig struct {
	Milestones []Milestone
	Interval   time.Duration
}

// MilestoneSource emits an event when a milestone value reaches its next
// goal.
type MilestoneSource struct {
	cfg       MilestoneConfig
	contracts Contracts
	goals     GoalStore
	logger    *zap.Logger

	staged map[string]decimal.Decimal
}

func NewMilestoneSource(cfg MilestoneConfig, contracts Contracts, goals GoalStore, logger *zap.Logger) *MilestoneSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &MilestoneSource{
		cfg:       cfg,
		contracts: contracts,
		goals:     goals,
		logger:    logger.With(zap.String("source", "milestones")),
		staged:    make(map[string]decimal.Decimal),
	}
}

func (s *MilestoneSource) Name() string            { return "milestones" }
func (s *MilestoneSource) Interval() time.Duration { return s.cfg.Interval }

func (s *MilestoneSource) Init(context.Context) error {
	for _, m := range s.cfg.Milestones {
		if !m.Step.IsPositive() {
			return fmt.Errorf("milestone %s: step must be positive", m.ID)
		}
	}
	s.staged = make(map[string]decimal.Decimal)
	return nil
}

func (s *MilestoneSource) Run(ctx context.Context, w Window) (Result, error) {
	var res Result
	for _, m := range s.cfg.Milestones {
		e, err := s.check(ctx, m, w.To)
		if err != nil {
			res.soft(fmt.Errorf("milestone %s: %w", m.ID, err))
			continue
		}
		if e != nil {
			res.Events = append(res.Events, e)
		}
	}
	return res, nil
}

func (s *MilestoneSource) check(ctx context.Context, m Milestone, block uint64) (*event.Event, error) {
	raw, err := s.contracts.CallBig(ctx, m.Contract, m.Method, blockBig(block), m.Args...)
	if err != nil {
		return nil, err
	}
	value := decimal.NewFromBigInt(raw, -m.Decimals)
	if value.LessThan(m.Min) {
		return nil, nil
	}
	goal := NextGoal(value, m.Step)

	stored, ok, err := s.goals.LoadGoal(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info("milestone first observed", zap.String("id", m.ID), zap.String("goal", goal.String()))
		s.staged[m.ID] = goal
		return nil, nil
	}
	if !goal.GreaterThan(stored) {
		return nil, nil
	}
	s.staged[m.ID] = goal
	return &event.Event{
		UniqueID:    fmt.Sprintf("%s:%s", m.ID, stored.String()),
		Topic:       event.TopicMilestones,
		Name:        m.ID,
		Score:       event.BlockScore(block),
		BlockNumber: block,
		Args: event.Args{
			"result_value": value,
			"goal":         stored,
		},
	}, nil
}

// NextGoal is the first multiple of step strictly above value.
func NextGoal(value, step decimal.Decimal) decimal.Decimal {
	return value.Div(step).Floor().Mul(step).Add(step)
}

func (s *MilestoneSource) Commit(ctx context.Context) error {
	for id, goal := range s.staged {
		if err := s.goals.SaveGoal(ctx, id, goal); err != nil {
			return err
		}
		delete(s.staged, id)
	}
	return nil
}

var _ Committer = (*MilestoneSource)(nil)

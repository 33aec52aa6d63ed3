package sources

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketwatch/internal/event"
	"rocketwatch/internal/storage/memory"
)

func TestNextGoal(t *testing.T) {
	step := decimal.NewFromInt(1000)
	assert.Equal(t, "4000", NextGoal(decimal.NewFromInt(3050), step).String())
	assert.Equal(t, "5000", NextGoal(decimal.NewFromInt(4000), step).String())
	assert.Equal(t, "5000", NextGoal(decimal.NewFromInt(4100), step).String())
}

func TestMilestoneFiresOncePerGoal(t *testing.T) {
	ctx := context.Background()
	contracts := newFakeContracts()
	value := int64(3050)
	contracts.calls["rocketMinipoolManager.getMinipoolCount"] = func([]interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(value)}, nil
	}
	store := memory.New()
	src := NewMilestoneSource(MilestoneConfig{Milestones: DefaultMilestones()[:1]}, contracts, store, nil)
	require.NoError(t, src.Init(ctx))

	run := func() []*event.Event {
		res, err := src.Run(ctx, Window{From: 10, To: 20})
		require.NoError(t, err)
		require.Empty(t, res.SoftErrors)
		require.NoError(t, src.Commit(ctx))
		return res.Events
	}

	// First observation only records the next goal.
	assert.Empty(t, run())
	goal, ok, err := store.LoadGoal(ctx, "minipool_count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "4000", goal.String())

	assert.Empty(t, run())

	value = 4100
	events := run()
	require.Len(t, events, 1)
	assert.Equal(t, "minipool_count", events[0].Name)
	assert.Equal(t, event.TopicMilestones, events[0].Topic)
	assert.Equal(t, "minipool_count:4000", events[0].UniqueID)
	assert.Equal(t, event.BlockScore(20), events[0].Score)
	assert.True(t, decimal.NewFromInt(4100).Equal(events[0].Args["result_value"].(decimal.Decimal)))

	goal, _, _ = store.LoadGoal(ctx, "minipool_count")
	assert.Equal(t, "5000", goal.String())

	// Staying above the goal does not fire again.
	assert.Empty(t, run())
	assert.Empty(t, run())
}

func TestMilestoneBelowMinimum(t *testing.T) {
	ctx := context.Background()
	contracts := newFakeContracts()
	contracts.calls["rocketMinipoolManager.getMinipoolCount"] = func([]interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(999)}, nil
	}
	store := memory.New()
	src := NewMilestoneSource(MilestoneConfig{Milestones: DefaultMilestones()[:1]}, contracts, store, nil)
	require.NoError(t, src.Init(ctx))

	res, err := src.Run(ctx, Window{To: 1})
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	require.NoError(t, src.Commit(ctx))
	_, ok, _ := store.LoadGoal(ctx, "minipool_count")
	assert.False(t, ok)
}

func TestMilestoneGoalNotSavedWithoutCommit(t *testing.T) {
	ctx := context.Background()
	contracts := newFakeContracts()
	contracts.calls["rocketMinipoolManager.getMinipoolCount"] = func([]interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(4100)}, nil
	}
	store := memory.New()
	require.NoError(t, store.SaveGoal(ctx, "minipool_count", decimal.NewFromInt(4000)))
	src := NewMilestoneSource(MilestoneConfig{Milestones: DefaultMilestones()[:1]}, contracts, store, nil)
	require.NoError(t, src.Init(ctx))

	res, err := src.Run(ctx, Window{To: 1})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)

	// A restart before the event is queued fires it again.
	require.NoError(t, src.Init(ctx))
	res, err = src.Run(ctx, Window{To: 1})
	require.NoError(t, err)
	assert.Len(t, res.Events, 1)
}

func TestMilestoneCallFailureIsSoft(t *testing.T) {
	src := NewMilestoneSource(MilestoneConfig{Milestones: DefaultMilestones()[:1]}, newFakeContracts(), memory.New(), nil)
	require.NoError(t, src.Init(context.Background()))
	res, err := src.Run(context.Background(), Window{To: 1})
	require.NoError(t, err)
	assert.Len(t, res.SoftErrors, 1)
}

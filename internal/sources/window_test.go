package sources

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowBatchesCatchUp(t *testing.T) {
	// A source 2000 blocks behind with the default log batch size.
	w := Window{From: 18_000_001, To: 18_002_000}
	batches, err := w.Batches(defaultLogBatchSize)
	require.NoError(t, err)

	assert.Equal(t, []Window{
		{From: 18_000_001, To: 18_001_000},
		{From: 18_001_001, To: 18_002_000},
	}, batches)
	assert.Equal(t, uint64(2000), w.Blocks())
}

func TestWindowBatchesLookbackTick(t *testing.T) {
	// A steady tick re-scans the lookback plus the new head block.
	w := Window{From: 985, To: 1001}
	batches, err := w.Batches(defaultLogBatchSize)
	require.NoError(t, err)
	assert.Equal(t, []Window{w}, batches)

	batches, err = w.Batches(5)
	require.NoError(t, err)
	require.Len(t, batches, 4)
	assert.Equal(t, Window{From: 985, To: 989}, batches[0])
	assert.Equal(t, Window{From: 1000, To: 1001}, batches[3])

	var covered uint64
	for i, b := range batches {
		covered += b.Blocks()
		if i > 0 {
			assert.Equal(t, batches[i-1].To+1, b.From)
		}
	}
	assert.Equal(t, w.Blocks(), covered)
}

func TestWindowBatchesSingleBlock(t *testing.T) {
	batches, err := Window{From: 5, To: 5}.Batches(1)
	require.NoError(t, err)
	assert.Equal(t, []Window{{From: 5, To: 5}}, batches)
}

func TestWindowBatchesMaxBlock(t *testing.T) {
	top := ^uint64(0)
	batches, err := Window{From: top - 2, To: top}.Batches(2)
	require.NoError(t, err)
	assert.Equal(t, []Window{{From: top - 2, To: top - 1}, {From: top, To: top}}, batches)
}

func TestWindowBatchesInvalid(t *testing.T) {
	_, err := Window{From: 10, To: 9}.Batches(1)
	assert.Error(t, err)
	_, err = Window{From: 1, To: 10}.Batches(0)
	assert.Error(t, err)
	assert.Equal(t, uint64(0), Window{From: 10, To: 9}.Blocks())
}

func TestLogSourceScansInBatches(t *testing.T) {
	contracts := newFakeContracts()
	chainClient := &fakeChain{logs: []types.Log{
		buildLog(t, contracts, "rocketTokenRETH", "Transfer", rethAddr, 995, 0, 0, common.HexToHash("0x01"),
			[]common.Hash{addrTopic(alice), addrTopic(bob)}, ether(1500)),
		buildLog(t, contracts, "rocketTokenRETH", "Transfer", rethAddr, 1005, 0, 0, common.HexToHash("0x02"),
			[]common.Hash{addrTopic(bob), addrTopic(alice)}, ether(2500)),
	}}
	src := NewLogSource(LogConfig{Events: DefaultLogEvents()[:1], BatchSize: 10}, chainClient, contracts, nil)
	require.NoError(t, src.Init(context.Background()))

	res, err := src.Run(context.Background(), Window{From: 990, To: 1010})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, uint64(995), res.Events[0].BlockNumber)
	assert.Equal(t, uint64(1005), res.Events[1].BlockNumber)
	assert.Equal(t, []Window{
		{From: 990, To: 999},
		{From: 1000, To: 1009},
		{From: 1010, To: 1010},
	}, chainClient.queries)
}

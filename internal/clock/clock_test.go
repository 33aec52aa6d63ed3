package clock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBlocks has block n at time 1000 + 12n, with a gap after block 5.
type fakeBlocks struct {
	latest uint64
	calls  int
}

func (f *fakeBlocks) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeBlocks) BlockTimestamp(_ context.Context, n uint64) (uint64, error) {
	f.calls++
	ts := 1000 + 12*n
	if n > 5 {
		ts += 60
	}
	return ts, nil
}

func newTestClock(t *testing.T, latest uint64) (*Clock, *fakeBlocks) {
	t.Helper()
	blocks := &fakeBlocks{latest: latest}
	c, err := New(blocks, Params{Genesis: MainnetGenesis, SlotSeconds: MainnetSlotSeconds, SlotsPerEpoch: MainnetSlotsPerEpoch}, 16)
	require.NoError(t, err)
	return c, blocks
}

func TestSlotConversions(t *testing.T) {
	c, _ := newTestClock(t, 10)
	assert.Equal(t, uint64(0), c.SlotAt(MainnetGenesis-5))
	assert.Equal(t, uint64(0), c.SlotAt(MainnetGenesis+11))
	assert.Equal(t, uint64(1), c.SlotAt(MainnetGenesis+12))
	assert.Equal(t, uint64(MainnetGenesis+120), c.TimeAt(10))
	assert.Equal(t, uint64(3), c.Epoch(96))
	assert.Equal(t, uint64(2), c.Epoch(95))
}

func TestBlockAt(t *testing.T) {
	c, _ := newTestClock(t, 100)
	ctx := context.Background()

	cases := []struct {
		ts   uint64
		want uint64
	}{
		{ts: 900, want: 0},  // before block 1
		{ts: 1012, want: 1}, // exact
		{ts: 1030, want: 2}, // tie between 2 (1024) and 3 (1036) goes early
		{ts: 1031, want: 3}, // closer to 3
		{ts: 1090, want: 5}, // inside the gap, closer to 5 (1060) than 6 (1132)
		{ts: 1120, want: 6}, // inside the gap, closer to 6
		{ts: 99999, want: 100},
	}
	for _, tc := range cases {
		got, err := c.BlockAt(ctx, tc.ts)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "ts=%d", tc.ts)
	}
}

func TestBlockAtCaches(t *testing.T) {
	c, blocks := newTestClock(t, 100)
	ctx := context.Background()

	_, err := c.BlockAt(ctx, 1500)
	require.NoError(t, err)
	calls := blocks.calls
	_, err = c.BlockAt(ctx, 1500)
	require.NoError(t, err)
	assert.Equal(t, calls, blocks.calls)
}

func TestNewValidates(t *testing.T) {
	_, err := New(&fakeBlocks{}, Params{}, 0)
	assert.Error(t, err)
}

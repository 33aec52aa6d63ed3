package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketwatch/internal/event"
	"rocketwatch/internal/storage/memory"
)

func newEvent(id string, score uint64) *event.Event {
	return &event.Event{UniqueID: id, Topic: event.TopicEvents, Name: "reth_transfer_event", Score: score}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := New(memory.New(), nil)

	inserted, err := q.Enqueue(ctx, newEvent("a", 1))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = q.Enqueue(ctx, newEvent("a", 1))
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same id on another topic is a different fact.
	other := newEvent("a", 1)
	other.Topic = event.TopicTransactions
	inserted, err = q.Enqueue(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestEnqueueRequiresIdentity(t *testing.T) {
	_, err := New(memory.New(), nil).Enqueue(context.Background(), &event.Event{Name: "x"})
	assert.Error(t, err)
}

func TestPeekOrdered(t *testing.T) {
	ctx := context.Background()
	q := New(memory.New(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, e := range []*event.Event{newEvent("c", 30), newEvent("a", 10), newEvent("b2", 20), newEvent("b1", 20)} {
		e.TimeSeen = base.Add(time.Duration(4-i) * time.Second)
		_, err := q.Enqueue(ctx, e)
		require.NoError(t, err)
	}

	head, err := q.PeekOrdered(ctx, 3)
	require.NoError(t, err)
	require.Len(t, head, 3)
	assert.Equal(t, []string{"a", "b1", "b2"}, []string{head[0].UniqueID, head[1].UniqueID, head[2].UniqueID})
}

func TestDeliveredEventsAreNeverResent(t *testing.T) {
	ctx := context.Background()
	q := New(memory.New(), nil)
	e := newEvent("a", 1)
	_, err := q.Enqueue(ctx, e)
	require.NoError(t, err)

	require.NoError(t, q.MarkDelivered(ctx, e, "chan-1"))
	head, err := q.PeekOrdered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, head, 1)
	assert.Equal(t, []string{"chan-1"}, head[0].DeliveredTo)

	require.NoError(t, q.Complete(ctx, e))
	head, err = q.PeekOrdered(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, head)

	// Re-observing after delivery is absorbed.
	inserted, err := q.Enqueue(ctx, newEvent("a", 1))
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestMarkFailed(t *testing.T) {
	ctx := context.Background()
	q := New(memory.New(), nil)
	e := newEvent("a", 1)
	_, err := q.Enqueue(ctx, e)
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(ctx, e, "timeout", 1, false))
	head, _ := q.PeekOrdered(ctx, 10)
	require.Len(t, head, 1)
	assert.Equal(t, 1, head[0].Attempts)
	assert.Equal(t, "timeout", head[0].LastError)

	require.NoError(t, q.MarkFailed(ctx, e, "unknown channel", 2, true))
	head, _ = q.PeekOrdered(ctx, 10)
	assert.Empty(t, head)
}

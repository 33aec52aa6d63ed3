package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketwatch/internal/chat"
	"rocketwatch/internal/event"
	"rocketwatch/internal/queue"
	"rocketwatch/internal/storage/memory"
)

type sent struct {
	channel string
	title   string
}

type fakeBackend struct {
	sent []sent
	// failures per title, consumed in order
	failures map[string][]error
}

func (f *fakeBackend) SendMessage(_ context.Context, channel string, body event.Body) (string, error) {
	if errs := f.failures[body.Title]; len(errs) > 0 {
		f.failures[body.Title] = errs[1:]
		if errs[0] != nil {
			return "", errs[0]
		}
	}
	f.sent = append(f.sent, sent{channel: channel, title: body.Title})
	return "m", nil
}

type fakeReporter struct{ errs []error }

func (f *fakeReporter) Report(_ context.Context, _ string, err error) { f.errs = append(f.errs, err) }

func titles(s []sent) []string {
	out := make([]string, len(s))
	for i, m := range s {
		out[i] = m.title
	}
	return out
}

type harness struct {
	store    *memory.Store
	queue    *queue.Queue
	backend  *fakeBackend
	reporter *fakeReporter
	d        *Dispatcher
}

func newHarness(t *testing.T, table map[string][]string, events ...*event.Event) *harness {
	t.Helper()
	h := &harness{
		store:    memory.New(),
		backend:  &fakeBackend{failures: map[string][]error{}},
		reporter: &fakeReporter{},
	}
	h.queue = queue.New(h.store, nil)
	for _, e := range events {
		_, err := h.queue.Enqueue(context.Background(), e)
		require.NoError(t, err)
	}
	h.d = New(Config{BatchSize: 10, MaxAttempts: 3}, h.queue, NewRouter(table), h.backend, h.reporter, nil)
	return h
}

func ev(id, name, topic string, score uint64) *event.Event {
	return &event.Event{UniqueID: id, Name: name, Topic: topic, Score: score, Body: event.Body{Title: id}}
}

func TestRouterLongestPrefix(t *testing.T) {
	r := NewRouter(map[string][]string{
		"odao":               {"dao"},
		"odao_proposal_kick": {"kicks"},
		"beacon_events":      {"beacon"},
		"default":            {"general"},
	})
	assert.Equal(t, []string{"kicks"}, r.Destinations(&event.Event{Name: "odao_proposal_kick_event"}))
	assert.Equal(t, []string{"dao"}, r.Destinations(&event.Event{Name: "odao_proposal_vote_event"}))
	assert.Equal(t, []string{"beacon"}, r.Destinations(&event.Event{Name: "minipool_slash_event", Topic: "beacon_events"}))
	assert.Equal(t, []string{"general"}, r.Destinations(&event.Event{Name: "reth_transfer_event", Topic: "events"}))
	assert.Empty(t, NewRouter(nil).Destinations(&event.Event{Name: "x"}))
}

func TestDispatchInScoreOrder(t *testing.T) {
	h := newHarness(t, map[string][]string{"default": {"general"}},
		ev("c", "x", "events", 30), ev("a", "x", "events", 10), ev("b", "x", "events", 20))

	n, err := h.d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "c"}, titles(h.backend.sent))

	// Nothing is sent twice.
	n, err = h.d.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, h.backend.sent, 3)
}

func TestTransientFailureStopsBatch(t *testing.T) {
	h := newHarness(t, map[string][]string{"default": {"general"}},
		ev("a", "x", "events", 10), ev("b", "x", "events", 20))
	h.backend.failures["a"] = []error{&chat.Error{Kind: chat.Transient, Err: errors.New("502")}}

	n, err := h.d.Tick(context.Background())
	assert.ErrorIs(t, err, ErrRetryable)
	assert.Zero(t, n)
	assert.Empty(t, h.backend.sent, "b must not overtake a")

	n, err = h.d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, titles(h.backend.sent))
}

func TestFatalFailureSkipsEvent(t *testing.T) {
	h := newHarness(t, map[string][]string{"default": {"general"}},
		ev("a", "x", "events", 10), ev("b", "x", "events", 20))
	h.backend.failures["a"] = []error{&chat.Error{Kind: chat.NotFound, Err: errors.New("unknown channel")}}

	n, err := h.d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b"}, titles(h.backend.sent))
	require.Len(t, h.reporter.errs, 1)
	assert.ErrorIs(t, h.reporter.errs[0], ErrFatal)

	for _, e := range h.store.Events() {
		if e.UniqueID == "a" {
			assert.Equal(t, event.StateFailed, e.State)
		}
	}
}

func TestMaxAttempts(t *testing.T) {
	h := newHarness(t, map[string][]string{"default": {"general"}}, ev("a", "x", "events", 10))
	transient := &chat.Error{Kind: chat.Transient, Err: errors.New("timeout")}
	h.backend.failures["a"] = []error{transient, transient, transient}

	for i := 0; i < 2; i++ {
		_, err := h.d.Tick(context.Background())
		assert.ErrorIs(t, err, ErrRetryable)
	}
	_, err := h.d.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.reporter.errs, 1)

	head, err := h.queue.PeekOrdered(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, head)
}

func TestPartialDeliveryIsNotRepeated(t *testing.T) {
	h := newHarness(t, map[string][]string{"default": {"one", "two"}}, ev("a", "x", "events", 10))
	// First destination succeeds, second fails once.
	h.backend.failures["a"] = []error{nil, &chat.Error{Kind: chat.Transient, Err: errors.New("502")}}

	_, err := h.d.Tick(context.Background())
	assert.ErrorIs(t, err, ErrRetryable)
	_, err = h.d.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []sent{{"one", "a"}, {"two", "a"}}, h.backend.sent)
}

func TestNoRouteFails(t *testing.T) {
	h := newHarness(t, nil, ev("a", "x", "events", 10))
	n, err := h.d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, h.reporter.errs, 1)
}

func TestFailedBatchCountsAsProgress(t *testing.T) {
	h := newHarness(t, nil, ev("a", "x", "events", 10), ev("b", "x", "events", 20), ev("c", "x", "events", 30))
	h.d = New(Config{BatchSize: 2, MaxAttempts: 3}, h.queue, NewRouter(nil), h.backend, h.reporter, nil)
	ctx := context.Background()

	// Every event in the first batch fails for good; the caller must keep draining.
	n, err := h.d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = h.d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.d.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, h.reporter.errs, 3)
}

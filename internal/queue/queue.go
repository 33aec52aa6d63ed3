package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rocketwatch/internal/event"
	"rocketwatch/internal/metrics"
)

// Store is the persistence the queue runs on. InsertEvent must be a no-op
// returning false when (topic, unique_id) already exists, whatever its
// delivery state.
type Store interface {
	InsertEvent(ctx context.Context, e *event.Event) (bool, error)
	PendingEvents(ctx context.Context, limit int) ([]*event.Event, error)
	UpdateEvent(ctx context.Context, e *event.Event) error
}

// Queue is the durable hand-off between the pipeline and the dispatcher.
type Queue struct {
	store  Store
	logger *zap.Logger
	nowFn  func() time.Time
}

func New(store Store, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{store: store, logger: logger.With(zap.String("component", "queue")), nowFn: time.Now}
}

// Enqueue persists a pending event. It reports inserted=false when the
// event was already queued, which is how re-scanned blocks are absorbed.
func (q *Queue) Enqueue(ctx context.Context, e *event.Event) (bool, error) {
	if e.UniqueID == "" || e.Topic == "" {
		return false, fmt.Errorf("enqueue %s: unique id and topic are required", e.Name)
	}
	if e.TimeSeen.IsZero() {
		e.TimeSeen = q.nowFn().UTC()
	}
	e.State = event.StatePending
	e.Attempts = 0
	e.DeliveredTo = nil

	inserted, err := q.store.InsertEvent(ctx, e)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", e.Key(), err)
	}
	if !inserted {
		metrics.EventsDuplicate.WithLabelValues(e.Topic).Inc()
		q.logger.Debug("event already queued", zap.String("key", e.Key()))
		return false, nil
	}
	metrics.EventsEnqueued.WithLabelValues(e.Topic).Inc()
	return true, nil
}

// PeekOrdered returns up to limit pending events by (score, time_seen).
func (q *Queue) PeekOrdered(ctx context.Context, limit int) ([]*event.Event, error) {
	events, err := q.store.PendingEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("peek queue: %w", err)
	}
	metrics.QueueDepth.Set(float64(len(events)))
	return events, nil
}

// MarkDelivered records delivery to one destination. The event stays
// pending until Complete is called.
func (q *Queue) MarkDelivered(ctx context.Context, e *event.Event, destination string) error {
	if e.Delivered(destination) {
		return nil
	}
	e.DeliveredTo = append(e.DeliveredTo, destination)
	if err := q.store.UpdateEvent(ctx, e); err != nil {
		return fmt.Errorf("mark delivered %s: %w", e.Key(), err)
	}
	return nil
}

// Complete marks the event delivered to every destination.
func (q *Queue) Complete(ctx context.Context, e *event.Event) error {
	e.State = event.StateDelivered
	e.LastError = ""
	if err := q.store.UpdateEvent(ctx, e); err != nil {
		return fmt.Errorf("complete %s: %w", e.Key(), err)
	}
	return nil
}

// MarkFailed records a failed attempt. A final failure takes the event out
// of the pending set for good.
func (q *Queue) MarkFailed(ctx context.Context, e *event.Event, reason string, attempts int, final bool) error {
	e.Attempts = attempts
	e.LastError = reason
	if final {
		e.State = event.StateFailed
	}
	if err := q.store.UpdateEvent(ctx, e); err != nil {
		return fmt.Errorf("mark failed %s: %w", e.Key(), err)
	}
	return nil
}

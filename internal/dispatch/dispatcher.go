package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rocketwatch/internal/chat"
	"rocketwatch/internal/event"
	"rocketwatch/internal/metrics"
)

var (
	// ErrRetryable marks a send that failed transiently; the event stays
	// pending and the batch stops.
	ErrRetryable = errors.New("dispatch retryable")
	// ErrFatal marks a send that can never succeed; the event is failed.
	ErrFatal = errors.New("dispatch fatal")
)

// Queue is the part of the queue the dispatcher drives.
type Queue interface {
	PeekOrdered(ctx context.Context, limit int) ([]*event.Event, error)
	MarkDelivered(ctx context.Context, e *event.Event, destination string) error
	Complete(ctx context.Context, e *event.Event) error
	MarkFailed(ctx context.Context, e *event.Event, reason string, attempts int, final bool) error
}

// Reporter receives permanent failures.
type Reporter interface {
	Report(ctx context.Context, where string, err error)
}

type Config struct {
	BatchSize   int
	MaxAttempts int
}

// Dispatcher drains the queue in score order.
type Dispatcher struct {
	cfg      Config
	queue    Queue
	router   *Router
	backend  chat.Backend
	reporter Reporter
	logger   *zap.Logger
}

func New(cfg Config, queue Queue, router *Router, backend chat.Backend, reporter Reporter, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:      cfg,
		queue:    queue,
		router:   router,
		backend:  backend,
		reporter: reporter,
		logger:   logger.With(zap.String("component", "dispatch")),
	}
}

// Tick sends one batch. It returns the number of events taken off the queue,
// delivered or failed for good, and a wrapped ErrRetryable when the batch
// stopped on a transient failure.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	batch, err := d.queue.PeekOrdered(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, e := range batch {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		err := d.deliver(ctx, e)
		switch {
		case err == nil:
			done++
		case errors.Is(err, ErrFatal):
			// Failed for good and off the queue; later events may still go out.
			done++
		default:
			return done, err
		}
	}
	return done, nil
}

func (d *Dispatcher) deliver(ctx context.Context, e *event.Event) error {
	destinations := d.router.Destinations(e)
	if len(destinations) == 0 {
		return d.fail(ctx, e, "no destination", fmt.Errorf("%w: no destination for %s", ErrFatal, e.Key()))
	}
	for _, dest := range destinations {
		if e.Delivered(dest) {
			continue
		}
		if _, err := d.backend.SendMessage(ctx, dest, e.Body); err != nil {
			return d.sendFailed(ctx, e, dest, err)
		}
		metrics.DispatchSent.WithLabelValues(e.Topic).Inc()
		if err := d.queue.MarkDelivered(ctx, e, dest); err != nil {
			// The send went out; stop so the state is retried before
			// anything later is sent.
			return err
		}
	}
	if err := d.queue.Complete(ctx, e); err != nil {
		return err
	}
	d.logger.Debug("event delivered", zap.String("key", e.Key()), zap.Strings("destinations", destinations))
	return nil
}

func (d *Dispatcher) sendFailed(ctx context.Context, e *event.Event, dest string, sendErr error) error {
	kind := chat.Classify(sendErr)
	attempts := e.Attempts + 1
	if kind == chat.NotFound || kind == chat.Forbidden {
		return d.fail(ctx, e, kind.String(), fmt.Errorf("%w: %s to %s: %v", ErrFatal, e.Key(), dest, sendErr))
	}
	if attempts >= d.cfg.MaxAttempts {
		e.Attempts = attempts
		return d.fail(ctx, e, "max_attempts", fmt.Errorf("%w: %s gave up after %d attempts: %v", ErrFatal, e.Key(), attempts, sendErr))
	}

	metrics.DispatchRetried.Inc()
	d.logger.Warn("send failed, will retry",
		zap.String("key", e.Key()),
		zap.String("destination", dest),
		zap.Int("attempts", attempts),
		zap.Error(sendErr))
	if err := d.queue.MarkFailed(ctx, e, sendErr.Error(), attempts, false); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrRetryable, e.Key(), sendErr)
}

func (d *Dispatcher) fail(ctx context.Context, e *event.Event, reason string, err error) error {
	metrics.DispatchFailed.WithLabelValues(reason).Inc()
	d.logger.Error("event failed", zap.String("key", e.Key()), zap.String("reason", reason), zap.Error(err))
	if markErr := d.queue.MarkFailed(ctx, e, err.Error(), e.Attempts, true); markErr != nil {
		return markErr
	}
	if d.reporter != nil {
		d.reporter.Report(ctx, "dispatch", err)
	}
	return err
}

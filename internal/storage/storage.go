package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"rocketwatch/internal/event"
	"rocketwatch/internal/labels"
)

// ErrNotFound is returned when updating a record that was never stored.
var ErrNotFound = errors.New("record not found")

// Cursor is the persisted progress of one source.
type Cursor struct {
	Source    string    `json:"source"`
	LastBlock uint64    `json:"last_served_block"`
	Lookback  uint64    `json:"lookback_distance"`
	LastRunAt time.Time `json:"last_run_at"`
}

// ResumeFrom is the first block a source scans after a restart.
func (c Cursor) ResumeFrom() uint64 {
	next := c.LastBlock + 1
	if next < c.Lookback {
		return 0
	}
	return next - c.Lookback
}

// Storage is everything the daemon persists. The Postgres and in-memory
// stores both implement it.
type Storage interface {
	InsertEvent(ctx context.Context, e *event.Event) (bool, error)
	PendingEvents(ctx context.Context, limit int) ([]*event.Event, error)
	UpdateEvent(ctx context.Context, e *event.Event) error

	LoadCursor(ctx context.Context, source string) (Cursor, bool, error)
	SaveCursor(ctx context.Context, c Cursor) error

	LoadGoal(ctx context.Context, id string) (decimal.Decimal, bool, error)
	SaveGoal(ctx context.Context, id string, goal decimal.Decimal) error

	LastFinality(ctx context.Context) (epoch, delay uint64, ok bool, err error)
	SaveFinality(ctx context.Context, epoch, delay uint64) error

	labels.Store

	Close()
}

// Package memory keeps every store in process memory. It backs tests and
// runs without a database; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"rocketwatch/internal/event"
	"rocketwatch/internal/labels"
	"rocketwatch/internal/storage"
)

type Store struct {
	mu         sync.Mutex
	events     map[string]*event.Event
	cursors    map[string]storage.Cursor
	milestones map[string]decimal.Decimal
	finality   map[uint64]uint64
	labels     map[common.Address]labels.Entry
}

func New() *Store {
	return &Store{
		events:     make(map[string]*event.Event),
		cursors:    make(map[string]storage.Cursor),
		milestones: make(map[string]decimal.Decimal),
		finality:   make(map[uint64]uint64),
		labels:     make(map[common.Address]labels.Entry),
	}
}

func (s *Store) InsertEvent(_ context.Context, e *event.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.Key()]; ok {
		return false, nil
	}
	s.events[e.Key()] = e.Clone()
	return true, nil
}

func (s *Store) PendingEvents(_ context.Context, limit int) ([]*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*event.Event
	for _, e := range s.events {
		if e.State == event.StatePending {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].TimeSeen.Before(out[j].TimeSeen)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateEvent(_ context.Context, e *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.events[e.Key()]
	if !ok {
		return storage.ErrNotFound
	}
	stored.State = e.State
	stored.Attempts = e.Attempts
	stored.LastError = e.LastError
	stored.DeliveredTo = append([]string(nil), e.DeliveredTo...)
	return nil
}

// Events returns every stored event regardless of state, by score.
func (s *Store) Events() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*event.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

func (s *Store) LoadCursor(_ context.Context, source string) (storage.Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[source]
	return c, ok, nil
}

func (s *Store) SaveCursor(_ context.Context, c storage.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[c.Source] = c
	return nil
}

func (s *Store) LoadGoal(_ context.Context, id string) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, ok := s.milestones[id]
	return goal, ok, nil
}

func (s *Store) SaveGoal(_ context.Context, id string, goal decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.milestones[id] = goal
	return nil
}

func (s *Store) LastFinality(_ context.Context) (uint64, uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		epoch, delay uint64
		found        bool
	)
	for e, d := range s.finality {
		if !found || e > epoch {
			epoch, delay, found = e, d, true
		}
	}
	return epoch, delay, found, nil
}

func (s *Store) SaveFinality(_ context.Context, epoch, delay uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finality[epoch] = delay
	return nil
}

func (s *Store) GetLabel(_ context.Context, addr common.Address) (labels.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.labels[addr]
	return entry, ok, nil
}

func (s *Store) PutLabel(_ context.Context, addr common.Address, entry labels.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels[addr] = entry
	return nil
}

func (s *Store) Close() {}

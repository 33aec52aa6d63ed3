package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"rocketwatch/internal/event"
	"rocketwatch/internal/metrics"
	"rocketwatch/internal/normalize"
	"rocketwatch/internal/sources"
	"rocketwatch/internal/storage"
)

// State is the lifecycle position of one source.
type State int

const (
	StateInit State = iota
	StateRunning
	StateOK
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateOK:
		return "ok"
	default:
		return "unknown"
	}
}

// Head reports the EL head block.
type Head interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

type CursorStore interface {
	LoadCursor(ctx context.Context, source string) (storage.Cursor, bool, error)
	SaveCursor(ctx context.Context, c storage.Cursor) error
}

type Normalizer interface {
	Prepare(ctx context.Context, e *event.Event) error
	Enrich(ctx context.Context, e *event.Event) error
	Filter(e *event.Event) error
}

type Aggregator interface {
	Aggregate(events []*event.Event) []*event.Event
}

type Renderer interface {
	Render(e *event.Event) error
}

type Queue interface {
	Enqueue(ctx context.Context, e *event.Event) (bool, error)
}

type Dispatcher interface {
	Tick(ctx context.Context) (int, error)
}

type Reporter interface {
	Report(ctx context.Context, where string, err error)
	ReportPanic(ctx context.Context, where string, v interface{})
}

type Config struct {
	TickInterval time.Duration
	Lookback     uint64
	// MaxWindow caps the blocks one run may cover so a source that fell
	// behind catches up over several ticks.
	MaxWindow uint64
	// MaxDispatchRounds bounds how many dispatcher batches run per tick.
	MaxDispatchRounds int
}

type Deps struct {
	Head       Head
	Cursors    CursorStore
	Normalizer Normalizer
	Aggregator Aggregator
	Renderer   Renderer
	Queue      Queue
	Dispatcher Dispatcher
	Reporter   Reporter
}

type sourceState struct {
	source  sources.Source
	state   State
	lastRun time.Time
}

// Scheduler runs every source on its interval, pushes the results through
// the pipeline into the queue, then drains the queue. Sources run one after
// another and share one view of the head.
type Scheduler struct {
	cfg     Config
	deps    Deps
	sources []*sourceState
	logger  *zap.Logger
	nowFn   func() time.Time
}

func New(cfg Config, deps Deps, srcs []sources.Source, logger *zap.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 15 * time.Second
	}
	if cfg.MaxWindow == 0 {
		cfg.MaxWindow = 2000
	}
	if cfg.MaxDispatchRounds <= 0 {
		cfg.MaxDispatchRounds = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	states := make([]*sourceState, 0, len(srcs))
	for _, src := range srcs {
		states = append(states, &sourceState{source: src, state: StateInit})
	}
	return &Scheduler{
		cfg:     cfg,
		deps:    deps,
		sources: states,
		logger:  logger.With(zap.String("component", "scheduler")),
		nowFn:   time.Now,
	}
}

// Run loops until ctx is cancelled. Pending queue entries from a previous
// process are dispatched before any source runs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Int("sources", len(s.sources)),
		zap.Duration("tick", s.cfg.TickInterval),
		zap.Uint64("lookback", s.cfg.Lookback))
	s.dispatch(ctx)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs due sources and then the dispatcher once.
func (s *Scheduler) Tick(ctx context.Context) {
	head, err := s.deps.Head.LatestBlockNumber(ctx)
	if err != nil {
		s.logger.Warn("head unavailable, skipping sources", zap.Error(err))
	} else {
		now := s.nowFn()
		for _, st := range s.sources {
			if ctx.Err() != nil {
				return
			}
			if !st.lastRun.IsZero() && now.Sub(st.lastRun) < st.source.Interval() {
				continue
			}
			st.lastRun = now
			s.runSource(ctx, st, head)
		}
	}
	s.dispatch(ctx)
}

// States returns the lifecycle state of every source by name.
func (s *Scheduler) States() map[string]State {
	out := make(map[string]State, len(s.sources))
	for _, st := range s.sources {
		out[st.source.Name()] = st.state
	}
	return out
}

func (s *Scheduler) runSource(ctx context.Context, st *sourceState, head uint64) {
	name := st.source.Name()
	logger := s.logger.With(zap.String("source", name))
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			st.state = StateInit
			metrics.SourceErrorsTotal.WithLabelValues(name, "panic").Inc()
			s.deps.Reporter.ReportPanic(ctx, "source "+name, v)
		}
		metrics.SourceRunLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	metrics.SourceRunsTotal.WithLabelValues(name).Inc()

	if st.state == StateInit {
		if err := st.source.Init(ctx); err != nil {
			s.fail(ctx, st, fmt.Errorf("init: %w", err))
			return
		}
		logger.Info("source initialized")
	}

	w, err := s.window(ctx, name, head)
	if err != nil {
		s.fail(ctx, st, err)
		return
	}

	st.state = StateRunning
	res, err := st.source.Run(ctx, w)
	if err != nil {
		s.fail(ctx, st, fmt.Errorf("run %d-%d: %w", w.From, w.To, err))
		return
	}
	for _, softErr := range res.SoftErrors {
		metrics.SourceErrorsTotal.WithLabelValues(name, "soft").Inc()
		logger.Warn("soft error", zap.Error(softErr))
		s.deps.Reporter.Report(ctx, "source "+name, softErr)
	}

	events := s.process(ctx, res.Events)
	inserted := 0
	for _, e := range events {
		ok, err := s.deps.Queue.Enqueue(ctx, e)
		if err != nil {
			// Cursor and source state stay put so the window is rescanned.
			s.fail(ctx, st, err)
			return
		}
		if ok {
			inserted++
		}
	}

	if c, ok := st.source.(sources.Committer); ok {
		if err := c.Commit(ctx); err != nil {
			s.fail(ctx, st, fmt.Errorf("commit: %w", err))
			return
		}
	}
	cursor := storage.Cursor{Source: name, LastBlock: w.To, Lookback: s.cfg.Lookback, LastRunAt: s.nowFn().UTC()}
	if err := s.deps.Cursors.SaveCursor(ctx, cursor); err != nil {
		s.fail(ctx, st, fmt.Errorf("save cursor: %w", err))
		return
	}
	st.state = StateOK
	metrics.SourceLastBlock.WithLabelValues(name).Set(float64(w.To))
	logger.Info("source run complete",
		zap.Uint64("from", w.From),
		zap.Uint64("to", w.To),
		zap.Int("found", len(res.Events)),
		zap.Int("kept", len(events)),
		zap.Int("queued", inserted),
		zap.Duration("took", time.Since(start)))
}

// window starts lookback blocks behind the cursor and ends at head.
func (s *Scheduler) window(ctx context.Context, name string, head uint64) (sources.Window, error) {
	cursor, ok, err := s.deps.Cursors.LoadCursor(ctx, name)
	if err != nil {
		return sources.Window{}, fmt.Errorf("load cursor: %w", err)
	}
	if !ok {
		cursor = storage.Cursor{Source: name, LastBlock: head}
	}
	cursor.Lookback = s.cfg.Lookback
	from := cursor.ResumeFrom()
	if from > head {
		from = head
	}
	to := head
	if to-from+1 > s.cfg.MaxWindow {
		to = from + s.cfg.MaxWindow - 1
	}
	return sources.Window{From: from, To: to}, nil
}

func (s *Scheduler) fail(ctx context.Context, st *sourceState, err error) {
	name := st.source.Name()
	st.state = StateInit
	metrics.SourceErrorsTotal.WithLabelValues(name, "hard").Inc()
	s.logger.Warn("source failed", zap.String("source", name), zap.Error(err))
	s.deps.Reporter.Report(ctx, "source "+name, err)
}

// process runs prepare, aggregation, enrichment, filtering and rendering.
// The survivors come back in score order.
func (s *Scheduler) process(ctx context.Context, events []*event.Event) []*event.Event {
	prepared := make([]*event.Event, 0, len(events))
	for _, e := range events {
		if err := s.deps.Normalizer.Prepare(ctx, e); err != nil {
			s.deps.Reporter.Report(ctx, "prepare "+e.Name, err)
			continue
		}
		prepared = append(prepared, e)
	}

	aggregated := s.deps.Aggregator.Aggregate(prepared)
	out := make([]*event.Event, 0, len(aggregated))
	for _, e := range aggregated {
		if err := s.deps.Normalizer.Enrich(ctx, e); err != nil && !errors.Is(err, normalize.ErrEnrichmentMissing) {
			s.deps.Reporter.Report(ctx, "enrich "+e.Name, err)
		}
		if err := s.deps.Normalizer.Filter(e); err != nil {
			metrics.EventsFiltered.WithLabelValues(e.Name).Inc()
			s.logger.Debug("event filtered", zap.String("unique_id", e.UniqueID), zap.Error(err))
			continue
		}
		if err := s.deps.Renderer.Render(e); err != nil {
			s.deps.Reporter.Report(ctx, "render "+e.Name, err)
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

// dispatch drains the queue until a batch comes back empty or stops on a
// transient failure.
func (s *Scheduler) dispatch(ctx context.Context) {
	for round := 0; round < s.cfg.MaxDispatchRounds; round++ {
		if ctx.Err() != nil {
			return
		}
		n, err := s.deps.Dispatcher.Tick(ctx)
		if err != nil {
			s.logger.Warn("dispatch stopped", zap.Error(err))
			return
		}
		if n == 0 {
			return
		}
	}
}
